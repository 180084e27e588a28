package ports

import (
	"context"

	"testrig/internal/domain/harness"
)

// RunSpec describes one execution of a compiled test artifact.
type RunSpec struct {
	// Program is the path of the compiled artifact on the host.
	Program string
	Args    []string
	// Env is injected into the child, after the dylib search path.
	Env []harness.EnvVar
	// AuxFiles are support libraries that must be reachable next to
	// the program when it runs.
	AuxFiles []string
	Stdin    string
}

// ProgramRunner executes compiled test artifacts. The local runner
// spawns a child process; the container runner ships the artifact into
// an isolated environment first.
type ProgramRunner interface {
	RunProgram(ctx context.Context, spec RunSpec) (*harness.ProcResult, error)
	Close() error
}
