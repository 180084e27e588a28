package harness

import "fmt"

// FailureKind names the fault classes a test case can end with.
type FailureKind string

const (
	ConfigError           FailureKind = "config"
	MissingFile           FailureKind = "missing-file"
	ProcessSpawn          FailureKind = "process-spawn"
	CompileOutcome        FailureKind = "compile-outcome"
	DiagnosticMismatch    FailureKind = "diagnostic-mismatch"
	OutputMismatch        FailureKind = "output-mismatch"
	InternalCompilerError FailureKind = "internal-compiler-error"
	AuxBuildFailed        FailureKind = "aux-build"
)

// Failure terminates a single test case. It carries the process record
// of the phase that faulted, when there is one, so the driver can print
// the full labeled dump. Failures never crash the harness process.
type Failure struct {
	Kind     FailureKind
	Msg      string
	Revision string
	Proc     *ProcResult
}

func (f *Failure) Error() string {
	if f.Revision != "" {
		return fmt.Sprintf("[%s] error in revision `%s`: %s", f.Kind, f.Revision, f.Msg)
	}
	return fmt.Sprintf("[%s] error: %s", f.Kind, f.Msg)
}

// Report renders the failure together with the captured process record.
func (f *Failure) Report() string {
	if f.Proc == nil {
		return f.Error() + "\n"
	}
	return f.Error() + "\n" + f.Proc.Dump()
}
