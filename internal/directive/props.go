package directive

import (
	"os"
	"path/filepath"
	"strings"

	"testrig/internal/domain/harness"
)

// NormalizeRule is one user-supplied `"from" -> "to"` substitution
// applied to captured output before comparison.
type NormalizeRule struct {
	From string
	To   string
}

// TestProps is the full per-test, per-revision property set produced by
// folding the directive parser over the file header. Booleans are
// monotone within one parse, so directive order never matters; lists
// preserve source order.
type TestProps struct {
	// Patterns that must appear, in order, in the checked output.
	ErrorPatterns []string
	// Extra flags for the compile phase.
	CompileFlags []string
	// Extra flags for the run phase; only the first directive sticks.
	RunFlags string
	// Companion sources built as libraries before the primary compile.
	AuxBuilds []string
	// Environment for the compile and run phases respectively.
	CompileEnv []harness.EnvVar
	ExecEnv    []harness.EnvVar
	// Lines stored for the debugger-output checkers; not consumed here.
	CheckLines []string
	// Patterns that must not appear in the checked output.
	ForbidOutput []string
	// Named configuration variants; a non-empty list runs the test once
	// per entry under a distinct --cfg value.
	Revisions []string

	BuildAuxDocs              bool
	ForceHost                 bool
	CheckStdout               bool
	NoPreferDynamic           bool
	PrettyExpanded            bool
	PrettyCompareOnly         bool
	MustCompileSuccessfully   bool
	CheckTestLineNumbersMatch bool
	// RunPass asks a UI test to also build and execute the program.
	RunPass bool

	// PPExact names the reference file for exact pretty-print
	// comparison; the bare directive means the test file itself.
	PPExact string
	// PrettyMode selects the printer variant, "normal" by default.
	PrettyMode string
	// IncrementalDir, when set, adds the incremental cache flags to
	// every compile of this test.
	IncrementalDir string

	NormalizeStdout []NormalizeRule
	NormalizeStderr []NormalizeRule
}

// Reserved variables of the test runner runtime: when set in the
// ambient environment they are forwarded to executed tests unless the
// test already pinned them.
var forwardedEnv = []string{"RUST_TEST_NOCAPTURE", "RUST_TEST_THREADS"}

// ParseProps folds the directive header of testFile into a fresh
// property set. Directives tagged `//[rev]` apply only when revision
// equals rev; untagged directives apply on every revision.
func ParseProps(cfg *harness.Config, testFile, revision string) (*TestProps, error) {
	props := &TestProps{PrettyMode: "normal"}
	err := EachDirective(testFile, revision, func(ln string) {
		props.applyDirective(cfg, testFile, ln)
	})
	if err != nil {
		return nil, err
	}

	for _, key := range forwardedEnv {
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if !props.hasExecEnv(key) {
			props.ExecEnv = append(props.ExecEnv, harness.EnvVar{Key: key, Value: val})
		}
	}
	return props, nil
}

func (p *TestProps) hasExecEnv(key string) bool {
	for _, kv := range p.ExecEnv {
		if kv.Key == key {
			return true
		}
	}
	return false
}

func (p *TestProps) applyDirective(cfg *harness.Config, testFile, ln string) {
	if v, ok := nameValue(cfg, ln, "error-pattern"); ok {
		p.ErrorPatterns = append(p.ErrorPatterns, v)
	}
	if v, ok := nameValue(cfg, ln, "forbid-output"); ok {
		p.ForbidOutput = append(p.ForbidOutput, v)
	}
	if v, ok := nameValue(cfg, ln, "aux-build"); ok {
		p.AuxBuilds = append(p.AuxBuilds, v)
	}
	if v, ok := nameValue(cfg, ln, "compile-flags"); ok {
		p.CompileFlags = append(p.CompileFlags, strings.Fields(v)...)
	}
	if v, ok := nameValue(cfg, ln, "revisions"); ok {
		p.Revisions = append(p.Revisions, strings.Fields(v)...)
	}
	if p.RunFlags == "" {
		if v, ok := nameValue(cfg, ln, "run-flags"); ok {
			p.RunFlags = v
		}
	}
	if v, ok := nameValue(cfg, ln, "check"); ok {
		p.CheckLines = append(p.CheckLines, v)
	}
	if kv, ok := parseEnvDirective(cfg, ln, "exec-env"); ok {
		p.ExecEnv = append(p.ExecEnv, kv)
	}
	if kv, ok := parseEnvDirective(cfg, ln, "rustc-env"); ok {
		p.CompileEnv = append(p.CompileEnv, kv)
	}

	p.BuildAuxDocs = p.BuildAuxDocs || flagDirective(cfg, ln, "build-aux-docs")
	p.ForceHost = p.ForceHost || flagDirective(cfg, ln, "force-host")
	p.CheckStdout = p.CheckStdout || flagDirective(cfg, ln, "check-stdout")
	p.NoPreferDynamic = p.NoPreferDynamic || flagDirective(cfg, ln, "no-prefer-dynamic")
	p.PrettyExpanded = p.PrettyExpanded || flagDirective(cfg, ln, "pretty-expanded")
	p.PrettyCompareOnly = p.PrettyCompareOnly || flagDirective(cfg, ln, "pretty-compare-only")
	p.MustCompileSuccessfully = p.MustCompileSuccessfully ||
		flagDirective(cfg, ln, "must-compile-successfully")
	p.CheckTestLineNumbersMatch = p.CheckTestLineNumbersMatch ||
		flagDirective(cfg, ln, "check-test-line-numbers-match")
	p.RunPass = p.RunPass || flagDirective(cfg, ln, "run-pass")

	if p.PPExact == "" {
		if v, ok := nameValue(cfg, ln, "pp-exact"); ok {
			p.PPExact = v
		} else if isNameDirective(ln, "pp-exact") {
			p.PPExact = filepath.Base(testFile)
		}
	}
	if v, ok := nameValue(cfg, ln, "pretty-mode"); ok {
		p.PrettyMode = v
	}

	if rule, ok := parseNormalization(cfg, ln, "normalize-stdout"); ok {
		p.NormalizeStdout = append(p.NormalizeStdout, rule)
	}
	if rule, ok := parseNormalization(cfg, ln, "normalize-stderr"); ok {
		p.NormalizeStderr = append(p.NormalizeStderr, rule)
	}
}

// flagDirective accepts both the plain whole-word form and the
// config-gated `name-<tag>` form of a boolean directive.
func flagDirective(cfg *harness.Config, line, name string) bool {
	return isNameDirective(line, name) || matchesCfgName(cfg, line, name)
}

// parseEnvDirective reads `name: K=V` or `name: K`; the latter yields
// an empty value, preserved for compatibility with existing corpora.
func parseEnvDirective(cfg *harness.Config, line, name string) (harness.EnvVar, bool) {
	v, ok := nameValue(cfg, line, name)
	if !ok {
		return harness.EnvVar{}, false
	}
	key, value, _ := strings.Cut(v, "=")
	return harness.EnvVar{Key: key, Value: value}, true
}

// parseNormalization reads a config-gated `prefix-<tag>: "from" -> "to"`
// rule. Missing or unbalanced quotes silently skip the rule.
func parseNormalization(cfg *harness.Config, line, prefix string) (NormalizeRule, bool) {
	if !matchesCfgName(cfg, line, prefix) {
		return NormalizeRule{}, false
	}
	from, rest, ok := parseQuoted(line)
	if !ok {
		return NormalizeRule{}, false
	}
	to, _, ok := parseQuoted(rest)
	if !ok {
		return NormalizeRule{}, false
	}
	return NormalizeRule{From: from, To: to}, true
}
