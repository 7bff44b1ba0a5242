// Command defend hardens the functions of a YAML module against timing
// and memory-trace side channels.
//
//	defend [-config c.yaml] [-o out.yaml] [-verify] [-dump] module.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/sllvm-defend/config"
	"github.com/sarchlab/sllvm-defend/dma"
	"github.com/sarchlab/sllvm-defend/mir"
	"github.com/sarchlab/sllvm-defend/pipeline"
	"github.com/sarchlab/sllvm-defend/verify"
)

var (
	configPath = flag.String("config", "", "configuration file; defaults apply when empty")
	outPath    = flag.String("o", "", "where to write the hardened module; stdout when empty")
	logPath    = flag.String("log", "", "JSON log file; stderr when empty")
	trace      = flag.Bool("trace", false, "log pass decisions")
	dump       = flag.Bool("dump", false, "print analysis tables and hardened functions to stderr")
	check      = flag.Bool("verify", false, "check the hardened functions and print a report to stderr")
	reportPath = flag.String("report", "", "also save the verification report to this file")
)

var errVerificationFailed = errors.New("verification failed")

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: defend [flags] module.yaml")
		flag.PrintDefaults()
		atexit.Exit(2)
	}

	setupLogging()

	if err := run(flag.Arg(0)); err != nil {
		slog.Error("defend failed", "err", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func setupLogging() {
	var w io.Writer = os.Stderr

	if *logPath != "" {
		f, err := os.Create(*logPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			atexit.Exit(1)
		}

		atexit.Register(func() { f.Close() })
		w = f
	}

	level := slog.LevelInfo
	if *trace {
		level = mir.LevelTrace
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func run(module string) error {
	cfg := config.Default()

	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	fns, err := mir.LoadFile(module)
	if err != nil {
		return err
	}

	env, err := pipeline.NewEnv(cfg)
	if err != nil {
		return err
	}

	if *dump {
		env.Dump = os.Stderr
	}

	passes, err := pipeline.Default().Build(env, cfg.Passes)
	if err != nil {
		return err
	}

	diags := &pipeline.ListSink{}
	m := pipeline.NewManager(passes, pipeline.MultiSink{diags, pipeline.LogSink{}})
	m.AcceptHook(pipeline.TraceHook{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results := m.RunAll(ctx, fns, cfg.Workers)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	slog.Info("hardening done",
		"run", m.RunID(),
		"functions", len(fns),
		"failed", failed)

	if *dump {
		for _, fn := range fns {
			mir.WriteFunction(os.Stderr, fn)
		}
	}

	if err := writeModule(fns); err != nil {
		return err
	}

	if *check || *reportPath != "" {
		if err := report(cfg, env, fns, diags.Diagnostics()); err != nil {
			return err
		}
	}

	if failed > 0 {
		diags.WriteTable(os.Stderr)
		return fmt.Errorf("%d of %d functions could not be hardened", failed, len(fns))
	}

	return nil
}

func writeModule(fns []*mir.Function) error {
	data, err := mir.Marshal(fns)
	if err != nil {
		return err
	}

	if *outPath == "" {
		_, err = os.Stdout.Write(data)
		return err
	}

	return os.WriteFile(*outPath, data, 0o644)
}

func report(cfg config.Config, env *pipeline.Env, fns []*mir.Function, diags []*mir.Diagnostic) error {
	r := verify.GenerateReport(fns, verify.Options{
		Classifier: env.Classifier,
		Scratch:    cfg.ScratchLocations(),
		Traces:     slices.Contains(cfg.Passes, dma.ID),
	}, diags)

	if *check {
		r.WriteReport(os.Stderr)
	}

	if *reportPath != "" {
		if err := r.SaveReportToFile(*reportPath); err != nil {
			slog.Error("saving report", "err", err)
		}
	}

	if !r.Passed() {
		return errVerificationFailed
	}

	return nil
}
