package runtest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"testrig/internal/directive"
	"testrig/internal/domain/harness"
)

// runUiTest compiles the test and compares its normalized output
// streams against the reference snapshots stored next to the source.
// With run-pass set the program must additionally build and run clean.
func (c *caseContext) runUiTest(ctx context.Context) error {
	res, err := c.compileTest(ctx)
	if err != nil {
		return err
	}

	expectedStdout, err := c.loadExpected("stdout")
	if err != nil {
		return err
	}
	expectedStderr, err := c.loadExpected("stderr")
	if err != nil {
		return err
	}

	normStdout := c.normalizeOutput(res.Stdout, c.props.NormalizeStdout)
	normStderr := c.normalizeOutput(res.Stderr, c.props.NormalizeStderr)

	mismatches := 0
	mismatches += c.compareOutput("stdout", normStdout, expectedStdout)
	mismatches += c.compareOutput("stderr", normStderr, expectedStderr)
	if mismatches > 0 {
		return c.failProc(harness.OutputMismatch,
			fmt.Sprintf("%d errors occurred comparing output", mismatches), res)
	}

	if c.props.RunPass {
		if !res.Success() {
			return c.failProc(harness.CompileOutcome, "compilation failed!", res)
		}
		run, err := c.execCompiled(ctx)
		if err != nil {
			return err
		}
		if !run.Success() {
			return c.failProc(harness.CompileOutcome, "test run failed!", run)
		}
	}
	return nil
}

// loadExpected reads one reference snapshot; a missing snapshot means
// the stream is expected to be empty.
func (c *caseContext) loadExpected(kind string) (string, error) {
	path := c.expectedOutputPath(kind)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", c.failure(harness.MissingFile,
			fmt.Sprintf("read expected %s %q: %v", kind, path, err))
	}
	return string(data), nil
}

// normalizeOutput makes captured output stable across machines and
// platforms: paths under the test's directory become $DIR, backslashes
// are undoubled and then turned into forward slashes, line endings and
// tabs are canonicalized. The built-in substitutions run first, in a
// fixed order, then the test's own normalize rules in directive order.
func (c *caseContext) normalizeOutput(output string, rules []directive.NormalizeRule) string {
	jsonOutput := false
	flags := strings.Join(c.props.CompileFlags, " ")
	if strings.Contains(flags, "--error-format json") ||
		strings.Contains(flags, "--error-format pretty-json") {
		jsonOutput = true
	}

	parentDir := filepath.Dir(c.paths.File)
	if jsonOutput {
		// Inside JSON strings the path separator arrives escaped.
		parentDir = strings.ReplaceAll(parentDir, `\`, `\\`)
	}
	normalized := strings.ReplaceAll(output, parentDir, "$DIR")

	if jsonOutput {
		normalized = strings.ReplaceAll(normalized, `\n`, "\n")
	}
	normalized = strings.ReplaceAll(normalized, `\\`, `\`)
	normalized = strings.ReplaceAll(normalized, `\`, "/")
	normalized = strings.ReplaceAll(normalized, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\t", `\t`)

	for _, rule := range rules {
		normalized = strings.ReplaceAll(normalized, rule.From, rule.To)
	}
	return normalized
}

// compareOutput checks one stream against its snapshot. On mismatch the
// actual text is written next to the build artifacts and a line diff is
// logged; the return value counts toward the case's mismatch total.
func (c *caseContext) compareOutput(kind, actual, expected string) int {
	if actual == expected {
		return 0
	}

	log.Printf("normalized %s different from expected %s", kind, kind)
	logLineDiff(expected, actual)

	path := c.outName(kind)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		if err := os.WriteFile(path, []byte(actual), 0o644); err != nil {
			log.Printf("write actual %s: %v", kind, err)
		} else {
			log.Printf("actual %s saved to %s", kind, path)
			log.Printf("to update the reference, run: cp %s %s",
				path, c.expectedOutputPath(kind))
		}
	}
	return 1
}

// logLineDiff prints a minimal line-oriented diff: lines only in the
// snapshot prefixed with `-`, lines only in the actual output with `+`.
func logLineDiff(expected, actual string) {
	expLines := strings.Split(expected, "\n")
	actLines := strings.Split(actual, "\n")
	expSet := make(map[string]bool, len(expLines))
	for _, ln := range expLines {
		expSet[ln] = true
	}
	actSet := make(map[string]bool, len(actLines))
	for _, ln := range actLines {
		actSet[ln] = true
	}
	for _, ln := range expLines {
		if !actSet[ln] {
			log.Printf("-%s", ln)
		}
	}
	for _, ln := range actLines {
		if !expSet[ln] {
			log.Printf("+%s", ln)
		}
	}
}
