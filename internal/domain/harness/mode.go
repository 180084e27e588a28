package harness

import "fmt"

// Mode selects the outcome contract of a test and with it the phase
// sequence the harness drives: which compiles happen, whether the
// artifact is executed, and which checker classifies the result.
type Mode string

const (
	CompileFail Mode = "compile-fail"
	RunFail     Mode = "run-fail"
	RunPass     Mode = "run-pass"
	Pretty      Mode = "pretty"
	RunMake     Mode = "run-make"
	Ui          Mode = "ui"
)

// ParseMode maps a command-line mode token to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case CompileFail, RunFail, RunPass, Pretty, RunMake, Ui:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Disambiguator returns the suffix that keeps aux output directories of
// modes sharing a source tree from colliding. Pretty tests run over the
// same files as other suites, so they get their own suffix.
func (m Mode) Disambiguator() string {
	if m == Pretty {
		return ".pretty"
	}
	return ""
}

func (m Mode) String() string { return string(m) }
