package directive

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"testrig/internal/domain/harness"
)

func writeHeader(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case.rs")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func collectDirectives(t *testing.T, contents, revision string) []string {
	t.Helper()
	var lines []string
	err := EachDirective(writeHeader(t, contents), revision, func(ln string) {
		lines = append(lines, ln)
	})
	if err != nil {
		t.Fatalf("EachDirective returned error: %v", err)
	}
	return lines
}

func TestEachDirectiveStopsAtFirstDeclaration(t *testing.T) {
	t.Parallel()

	src := "// compile-flags: -O\nfn main() {\n// error-pattern:unreachable\n}\n"
	got := collectDirectives(t, src, "")
	want := []string{"compile-flags: -O"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("directives mismatch (-want +got):\n%s", diff)
	}
}

func TestEachDirectiveStopsAtModule(t *testing.T) {
	t.Parallel()

	src := "// first\nmod helpers;\n// second\n"
	got := collectDirectives(t, src, "")
	want := []string{"first"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("directives mismatch (-want +got):\n%s", diff)
	}
}

func TestEachDirectiveRevisionGating(t *testing.T) {
	t.Parallel()

	src := "// everyone\n//[fast] compile-flags: -O\n//[slow] compile-flags: -C opt-level=0\n"

	if got := collectDirectives(t, src, ""); len(got) != 1 || got[0] != "everyone" {
		t.Fatalf("base revision should only see untagged lines, got %v", got)
	}

	got := collectDirectives(t, src, "fast")
	want := []string{"everyone", "compile-flags: -O"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("directives mismatch (-want +got):\n%s", diff)
	}
}

func TestEachDirectiveMalformedTag(t *testing.T) {
	t.Parallel()

	err := EachDirective(writeHeader(t, "//[oops no closing bracket\n"), "", func(string) {})
	var failure *harness.Failure
	if !errors.As(err, &failure) || failure.Kind != harness.ConfigError {
		t.Fatalf("expected config error for malformed tag, got %v", err)
	}
}

func TestEachDirectiveMissingFile(t *testing.T) {
	t.Parallel()

	err := EachDirective(filepath.Join(t.TempDir(), "absent.rs"), "", func(string) {})
	var failure *harness.Failure
	if !errors.As(err, &failure) || failure.Kind != harness.MissingFile {
		t.Fatalf("expected missing file failure, got %v", err)
	}
}
