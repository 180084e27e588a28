package harness

import "fmt"

// Exit codes with a fixed meaning for the toolchain under test.
const (
	// ExitRuntimeFailure is what the language runtime returns for an
	// uncaught error; run-fail tests must exit with exactly this code.
	ExitRuntimeFailure = 101
	// ExitAnalyzerFailure signals that an external analysis tool (a
	// memory checker wrapping the run) failed, which is a harness
	// error rather than a test failure.
	ExitAnalyzerFailure = 100
)

// ProcResult captures one child process: its exit status, both output
// streams after abbreviation, and the command line for diagnostics.
type ProcResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Cmdline  string
}

// Success reports whether the process exited zero.
func (r *ProcResult) Success() bool { return r.ExitCode == 0 }

// Dump renders the labeled report printed when a test fails: command,
// status, then both streams between rulers.
func (r *ProcResult) Dump() string {
	const ruler = "------------------------------------------"
	return fmt.Sprintf(
		"status: %d\ncommand: %s\nstdout:\n%s\n%s\n%s\nstderr:\n%s\n%s\n%s\n",
		r.ExitCode, r.Cmdline, ruler, r.Stdout, ruler, ruler, r.Stderr, ruler)
}
