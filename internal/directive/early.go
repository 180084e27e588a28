package directive

import (
	"strings"

	"testrig/internal/domain/harness"
)

// EarlyProps is the cheap pre-pass the driver runs before committing to
// a full parse: enough to register the case with the right skip and
// expected-failure flags and to know its auxiliaries.
type EarlyProps struct {
	Ignore     bool
	ShouldFail bool
	Aux        []string
}

// ParseEarlyProps scans the header of testFile for the reduced early
// directive set, including the LLVM version gates.
func ParseEarlyProps(cfg *harness.Config, testFile string) (EarlyProps, error) {
	var props EarlyProps
	var gateErr error
	err := EachDirective(testFile, "", func(ln string) {
		ignored, err := ignoreLLVM(cfg, ln)
		if err != nil && gateErr == nil {
			gateErr = err
		}
		props.Ignore = props.Ignore ||
			flagDirective(cfg, ln, "ignore") ||
			ignored
		props.ShouldFail = props.ShouldFail || isNameDirective(ln, "should-fail")
		if v, ok := nameValue(cfg, ln, "aux-build"); ok {
			props.Aux = append(props.Aux, v)
		}
	})
	if err != nil {
		return props, err
	}
	return props, gateErr
}

// ignoreLLVM applies the version gates: no-system-llvm skips the test
// under a system toolchain, and the two min-version directives skip it
// when the configured LLVM version string compares lexicographically
// below the required one.
func ignoreLLVM(cfg *harness.Config, line string) (bool, error) {
	if cfg.SystemLLVM && strings.HasPrefix(line, "no-system-llvm") {
		return true, nil
	}
	if cfg.LLVMVersion == "" {
		return false, nil
	}
	switch {
	case strings.HasPrefix(line, "min-system-llvm-version"):
		min, err := versionToken(line)
		if err != nil {
			return false, err
		}
		return cfg.SystemLLVM && cfg.LLVMVersion < min, nil
	case strings.HasPrefix(line, "min-llvm-version"):
		min, err := versionToken(line)
		if err != nil {
			return false, err
		}
		return cfg.LLVMVersion < min, nil
	}
	return false, nil
}

func versionToken(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", &harness.Failure{
			Kind: harness.ConfigError,
			Msg:  "malformed llvm version directive: " + line,
		}
	}
	return fields[len(fields)-1], nil
}
