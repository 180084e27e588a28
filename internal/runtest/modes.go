package runtest

import (
	"context"
	"fmt"

	"testrig/internal/domain/harness"
	"testrig/internal/expect"
)

// runCompileFailTest expects compilation to be rejected (unless the
// test opted into must-compile-successfully) and the emitted
// diagnostics to match the test's declarations. In-file expectations
// and error patterns are mutually exclusive ways to declare them.
func (c *caseContext) runCompileFailTest(ctx context.Context) error {
	res, err := c.compileTest(ctx)
	if err != nil {
		return err
	}

	if c.props.MustCompileSuccessfully {
		if !res.Success() {
			return c.failProc(harness.CompileOutcome, "test compilation failed", res)
		}
	} else {
		if res.Success() {
			return c.failProc(harness.CompileOutcome, "compile-fail test compiled successfully!", res)
		}
		if err := c.checkCorrectFailureStatus(res); err != nil {
			return err
		}
	}

	expected, err := expect.Load(c.paths.File, c.revision)
	if err != nil {
		return err
	}
	output := c.checkedOutput(res)

	if len(expected) > 0 {
		if len(c.props.ErrorPatterns) > 0 {
			return c.failure(harness.ConfigError,
				"both error pattern and expected errors specified")
		}
		if err := c.checkExpectedErrors(expected, res); err != nil {
			return err
		}
	} else if err := c.checkErrorPatterns(output, res); err != nil {
		return err
	}

	if err := c.checkNoCompilerCrash(res); err != nil {
		return err
	}
	return c.checkForbidOutput(output, res)
}

// runRunFailTest expects a clean compile followed by a run that fails
// with the runtime's conventional exit code and prints the declared
// error patterns.
func (c *caseContext) runRunFailTest(ctx context.Context) error {
	res, err := c.compileTest(ctx)
	if err != nil {
		return err
	}
	if !res.Success() {
		return c.failProc(harness.CompileOutcome, "compilation failed!", res)
	}

	res, err = c.execCompiled(ctx)
	if err != nil {
		return err
	}
	// The analyzer sentinel means the tool wrapping the run failed, not
	// the program under test.
	if res.ExitCode == harness.ExitAnalyzerFailure {
		return c.failProc(harness.CompileOutcome,
			fmt.Sprintf("run-fail test isn't valgrind-clean (exit code %d)",
				harness.ExitAnalyzerFailure), res)
	}
	if err := c.checkCorrectFailureStatus(res); err != nil {
		return err
	}
	return c.checkErrorPatterns(c.checkedOutput(res), res)
}

// runRunPassTest expects both the compile and the run to succeed.
func (c *caseContext) runRunPassTest(ctx context.Context) error {
	expected, err := expect.Load(c.paths.File, c.revision)
	if err != nil {
		return err
	}
	if len(expected) > 0 {
		return c.failure(harness.ConfigError,
			"run-pass tests with expected warnings should be moved to the UI suite")
	}

	res, err := c.compileTest(ctx)
	if err != nil {
		return err
	}
	if !res.Success() {
		return c.failProc(harness.CompileOutcome, "compilation failed!", res)
	}

	res, err = c.execCompiled(ctx)
	if err != nil {
		return err
	}
	if !res.Success() {
		return c.failProc(harness.CompileOutcome, "test run failed!", res)
	}
	return nil
}
