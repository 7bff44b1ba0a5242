package nemesis

import "errors"

// Failures that stop the pass for a function.
var (
	ErrIndirectBranch = errors.New("indirect branch")
	ErrUnanalyzable   = errors.New("control flow cannot be analyzed")
	ErrUnboundedLoop  = errors.New("loop in a sensitive region has no static trip count")
	ErrSecretLoopExit = errors.New("loop exit depends on a secret")
	ErrMisaligned     = errors.New("branch arms differ in timing after alignment")
)
