// Command memtracegen prints the memory-trace table of a memory map, as
// Go source or as a table, and the dummy instructions available for
// each class.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/sllvm-defend/config"
	"github.com/sarchlab/sllvm-defend/memtrace"
)

var (
	configPath = flag.String("config", "", "configuration file with the memory map")
	format     = flag.String("format", "table", "output format: go, table or dummies")
	pkg        = flag.String("pkg", "memtrace", "package name for -format go")
	name       = flag.String("name", "traceClasses", "variable name for -format go")
	outPath    = flag.String("o", "", "output file; stdout when empty")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "memtracegen:", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func run() error {
	cfg := config.Default()

	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	var w io.Writer = os.Stdout

	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()

		w = f
	}

	switch *format {
	case "go":
		return cfg.Table().WriteGo(w, *pkg, *name)
	case "table":
		cfg.Table().WriteTable(w)
		return nil
	case "dummies":
		return writeDummies(w, cfg)
	}

	return fmt.Errorf("unknown format %q", *format)
}

func writeDummies(w io.Writer, cfg config.Config) error {
	cat, err := memtrace.NewCatalogue(cfg.Classifier(), cfg.ScratchLocations())
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Class", "Code", "Dummy"})

	for _, cls := range cat.Classes() {
		tpl, err := cat.Lookup(cls)
		if err != nil {
			return err
		}

		code, _ := memtrace.CodeOf(cls)
		t.AppendRow(table.Row{string(cls), int(code), tpl.String()})
	}

	t.Render()

	return nil
}
