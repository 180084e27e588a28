package runtest

import (
	"fmt"
	"path/filepath"
	"strings"

	"testrig/internal/diag"
	"testrig/internal/domain/harness"
)

// checkedOutput selects the stream assertions run against: stderr by
// default, both streams when the test asks for check-stdout.
func (c *caseContext) checkedOutput(res *harness.ProcResult) string {
	if c.props.CheckStdout {
		return res.Stdout + res.Stderr
	}
	return res.Stderr
}

// checkCorrectFailureStatus demands the runtime's conventional failure
// exit code, so a crash or signal never masquerades as expected failure.
func (c *caseContext) checkCorrectFailureStatus(res *harness.ProcResult) error {
	if res.ExitCode != harness.ExitRuntimeFailure {
		return c.failProc(harness.CompileOutcome,
			fmt.Sprintf("failure produced the wrong exit code: %d (expected %d)",
				res.ExitCode, harness.ExitRuntimeFailure), res)
	}
	return nil
}

// checkErrorPatterns verifies that every error-pattern appears in
// output, in directive order; the scan for each pattern resumes where
// the previous match ended.
func (c *caseContext) checkErrorPatterns(output string, res *harness.ProcResult) error {
	if len(c.props.ErrorPatterns) == 0 {
		if c.props.MustCompileSuccessfully {
			return nil
		}
		return c.failure(harness.ConfigError,
			fmt.Sprintf("no error pattern specified in %s", c.paths.File))
	}

	var missing []string
	rest := output
	for _, pat := range c.props.ErrorPatterns {
		idx := strings.Index(rest, pat)
		if idx < 0 {
			missing = append(missing, pat)
			continue
		}
		rest = rest[idx+len(pat):]
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	for _, pat := range missing {
		fmt.Fprintf(&b, "error pattern %q not found\n", pat)
	}
	if len(missing) < len(c.props.ErrorPatterns) {
		b.WriteString("(some patterns did match; order is significant)\n")
	}
	return c.failProc(harness.DiagnosticMismatch, strings.TrimRight(b.String(), "\n"), res)
}

// checkNoCompilerCrash turns a compiler panic into its own failure kind
// so it is never misread as the diagnostic a test was waiting for.
func (c *caseContext) checkNoCompilerCrash(res *harness.ProcResult) error {
	for _, line := range strings.Split(res.Stderr, "\n") {
		if strings.Contains(line, "error: internal compiler error") {
			return c.failProc(harness.InternalCompilerError,
				"compiler encountered internal error", res)
		}
	}
	return nil
}

// checkForbidOutput rejects output containing any forbid-output pattern.
func (c *caseContext) checkForbidOutput(output string, res *harness.ProcResult) error {
	for _, pat := range c.props.ForbidOutput {
		if strings.Contains(output, pat) {
			return c.failProc(harness.DiagnosticMismatch,
				fmt.Sprintf("forbidden pattern %q found in output", pat), res)
		}
	}
	return nil
}

// checkExpectedErrors matches in-file `//~` expectations against the
// compiler's JSON diagnostics. Every expectation must be met, and any
// unexpected error or warning fails the test; stray help and note
// diagnostics are tolerated unless the test declares expectations of
// that kind.
func (c *caseContext) checkExpectedErrors(expected []harness.Diagnostic, res *harness.ProcResult) error {
	if res.Success() {
		for _, e := range expected {
			if e.Kind == harness.KindError {
				return c.failProc(harness.CompileOutcome,
					"process did not return an error status", res)
			}
		}
	}

	fileName := filepath.ToSlash(c.paths.File)
	actual, err := diag.ParseOutput(fileName, res.Stderr)
	if err != nil {
		return c.failProc(harness.DiagnosticMismatch, err.Error(), res)
	}

	expectHelp := false
	expectNote := false
	for _, e := range expected {
		switch e.Kind {
		case harness.KindHelp:
			expectHelp = true
		case harness.KindNote:
			expectNote = true
		}
	}

	found := make([]bool, len(expected))
	var unexpected []harness.Diagnostic
	for _, a := range actual {
		matched := false
		for i, e := range expected {
			if found[i] {
				continue
			}
			if e.LineNum == a.LineNum && matchesKind(e.Kind, a.Kind) && strings.Contains(a.Msg, e.Msg) {
				found[i] = true
				matched = true
				break
			}
		}
		if !matched && !suppressed(a.Kind, expectHelp, expectNote) {
			unexpected = append(unexpected, a)
		}
	}

	var b strings.Builder
	for _, a := range unexpected {
		fmt.Fprintf(&b, "unexpected %s on line %d: %s\n", a.Kind.Label(), a.LineNum, a.Msg)
	}
	for i, e := range expected {
		if !found[i] {
			fmt.Fprintf(&b, "expected %s on line %d not found: %s\n", e.Kind.Label(), e.LineNum, e.Msg)
		}
	}
	if b.Len() == 0 {
		return nil
	}

	missing := 0
	for _, ok := range found {
		if !ok {
			missing++
		}
	}
	fmt.Fprintf(&b, "%d unexpected diagnostics, %d expected diagnostics not found", len(unexpected), missing)
	return c.failProc(harness.DiagnosticMismatch, b.String(), res)
}

// matchesKind accepts an actual kind for an expectation; an unspecified
// expectation kind matches anything.
func matchesKind(expected, actual harness.ErrorKind) bool {
	return expected == harness.KindUnspecified || expected == actual
}

// suppressed reports whether an unmatched diagnostic of this kind may
// be ignored. Errors and warnings always count; help and note entries
// only count when the test declares expectations of that kind, and
// synthesized suggestion entries never count on their own.
func suppressed(kind harness.ErrorKind, expectHelp, expectNote bool) bool {
	switch kind {
	case harness.KindError, harness.KindWarning:
		return false
	case harness.KindHelp:
		return !expectHelp
	case harness.KindNote:
		return !expectNote
	}
	return true
}
