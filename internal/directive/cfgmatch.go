package directive

import (
	"os"
	"strings"

	"testrig/internal/domain/harness"
)

// Triple-token tables mapping substrings of a target triple to the
// names directives may gate on.
var osTable = []struct{ fragment, name string }{
	{"android", "android"},
	{"bitrig", "bitrig"},
	{"darwin", "macos"},
	{"dragonfly", "dragonfly"},
	{"emscripten", "emscripten"},
	{"freebsd", "freebsd"},
	{"haiku", "haiku"},
	{"ios", "ios"},
	{"linux", "linux"},
	{"mingw32", "windows"},
	{"netbsd", "netbsd"},
	{"openbsd", "openbsd"},
	{"solaris", "solaris"},
	{"win32", "windows"},
	{"windows", "windows"},
}

var archTable = []struct{ fragment, name string }{
	{"aarch64", "aarch64"},
	{"amd64", "x86_64"},
	{"arm64", "aarch64"},
	{"arm", "arm"},
	{"hexagon", "hexagon"},
	{"i386", "x86"},
	{"i586", "x86"},
	{"i686", "x86"},
	{"mips", "mips"},
	{"msp430", "msp430"},
	{"powerpc64", "powerpc64"},
	{"powerpc", "powerpc"},
	{"s390x", "s390x"},
	{"sparc", "sparc"},
	{"wasm32", "wasm32"},
	{"x86_64", "x86_64"},
}

func matchesOS(triple, name string) bool {
	for _, entry := range osTable {
		if strings.Contains(triple, entry.fragment) {
			return entry.name == name
		}
	}
	return false
}

func tripleArch(triple string) string {
	for _, entry := range archTable {
		if strings.Contains(triple, entry.fragment) {
			return entry.name
		}
	}
	return ""
}

func triplePointerWidth(triple string) string {
	if (strings.Contains(triple, "64") && !strings.HasSuffix(triple, "gnux32")) ||
		strings.HasPrefix(triple, "s390x") {
		return "64bit"
	}
	return "32bit"
}

// tripleEnv returns the environment token of a triple, e.g. "gnu" in
// x86_64-unknown-linux-gnu, or "" when the triple has no fourth field.
func tripleEnv(triple string) string {
	parts := strings.Split(triple, "-")
	if len(parts) < 4 {
		return ""
	}
	return parts[3]
}

// matchesCfgName reports whether line begins with `prefix-<tag>` where
// tag names this run's configuration: the literal "test", the target
// OS, architecture or pointer width, the stage identifier's first
// token, the target environment, or "cross-compile" when host differs
// from target.
func matchesCfgName(cfg *harness.Config, line, prefix string) bool {
	if !strings.HasPrefix(line, prefix+"-") {
		return false
	}
	rest := line[len(prefix)+1:]
	name := rest
	if idx := strings.IndexAny(rest, ": "); idx >= 0 {
		name = rest[:idx]
	}

	stage, _, _ := strings.Cut(cfg.StageID, "-")
	return name == "test" ||
		matchesOS(cfg.Target, name) ||
		name == tripleArch(cfg.Target) ||
		name == triplePointerWidth(cfg.Target) ||
		name == stage ||
		(name != "" && name == tripleEnv(cfg.Target)) ||
		(cfg.Target != cfg.Host && name == "cross-compile")
}

// isNameDirective reports a whole-word flag match: "ignore-x86" must
// not match a line saying "ignore-x86_64".
func isNameDirective(line, name string) bool {
	if !strings.HasPrefix(line, name) {
		return false
	}
	if len(line) == len(name) {
		return true
	}
	return line[len(name)] == ' ' || line[len(name)] == ':'
}

// nameValue extracts the value of a `name: value` directive, expanded
// and trimmed, or ok=false when the line is some other directive.
func nameValue(cfg *harness.Config, line, name string) (string, bool) {
	if !strings.HasPrefix(line, name) || len(line) <= len(name) || line[len(name)] != ':' {
		return "", false
	}
	return expandVariables(strings.TrimSpace(line[len(name)+1:]), cfg), true
}

// expandVariables substitutes the three path literals a directive value
// may carry. It is a no-op on strings containing none of them.
func expandVariables(value string, cfg *harness.Config) string {
	if strings.Contains(value, "{{cwd}}") {
		cwd, err := os.Getwd()
		if err == nil {
			value = strings.ReplaceAll(value, "{{cwd}}", cwd)
		}
	}
	value = strings.ReplaceAll(value, "{{src-base}}", cfg.SrcBase)
	value = strings.ReplaceAll(value, "{{build-base}}", cfg.BuildBase)
	return value
}

// parseQuoted finds the next double-quoted string in line and returns
// its content plus the remainder after the closing quote. Escapes are
// not interpreted.
func parseQuoted(line string) (content, rest string, ok bool) {
	begin := strings.IndexByte(line, '"')
	if begin < 0 {
		return "", "", false
	}
	end := strings.IndexByte(line[begin+1:], '"')
	if end < 0 {
		return "", "", false
	}
	return line[begin+1 : begin+1+end], line[begin+2+end:], true
}
