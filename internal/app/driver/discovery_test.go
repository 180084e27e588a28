package driver

import (
	"os"
	"path/filepath"
	"testing"

	"testrig/internal/domain/harness"
)

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("fn main() {}\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscoverTestsWalksSourceFiles(t *testing.T) {
	t.Parallel()

	srcBase := t.TempDir()
	mkdirAll(t, filepath.Join(srcBase, "borrowck"))
	mkdirAll(t, filepath.Join(srcBase, "borrowck", "auxiliary"))
	mkdirAll(t, filepath.Join(srcBase, "skipped"))

	touch(t, filepath.Join(srcBase, "top.rs"))
	touch(t, filepath.Join(srcBase, "notes.md"))
	touch(t, filepath.Join(srcBase, "borrowck", "two-mut.rs"))
	touch(t, filepath.Join(srcBase, "borrowck", "auxiliary", "helper.rs"))
	touch(t, filepath.Join(srcBase, "skipped", "old.rs"))
	touch(t, filepath.Join(srcBase, "skipped", ignoreDirMarker))

	cfg := &harness.Config{
		Mode:      harness.CompileFail,
		SrcBase:   srcBase,
		BuildBase: t.TempDir(),
	}
	tests, err := DiscoverTests(cfg)
	if err != nil {
		t.Fatalf("DiscoverTests returned error: %v", err)
	}

	got := make(map[string]harness.TestPaths)
	for _, tc := range tests {
		rel, _ := filepath.Rel(srcBase, tc.File)
		got[rel] = tc
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 tests, got %v", got)
	}
	if _, ok := got["top.rs"]; !ok {
		t.Fatalf("expected top.rs to be discovered: %v", got)
	}
	tc, ok := got[filepath.Join("borrowck", "two-mut.rs")]
	if !ok {
		t.Fatalf("expected borrowck/two-mut.rs to be discovered: %v", got)
	}
	if tc.RelativeDir != "borrowck" {
		t.Fatalf("expected relative dir borrowck, got %q", tc.RelativeDir)
	}

	// Build directories are pre-created for every discovered test.
	if _, err := os.Stat(filepath.Join(cfg.BuildBase, "borrowck")); err != nil {
		t.Fatalf("expected build dir to exist: %v", err)
	}
}

func TestDiscoverTestsFilter(t *testing.T) {
	t.Parallel()

	srcBase := t.TempDir()
	touch(t, filepath.Join(srcBase, "match-guard.rs"))
	touch(t, filepath.Join(srcBase, "other.rs"))

	cfg := &harness.Config{
		Mode:      harness.CompileFail,
		SrcBase:   srcBase,
		BuildBase: t.TempDir(),
		Filter:    "match-guard",
	}
	tests, err := DiscoverTests(cfg)
	if err != nil {
		t.Fatalf("DiscoverTests returned error: %v", err)
	}
	if len(tests) != 1 || filepath.Base(tests[0].File) != "match-guard.rs" {
		t.Fatalf("expected only match-guard.rs, got %v", tests)
	}
}

func TestDiscoverTestsRunMakeDirectories(t *testing.T) {
	t.Parallel()

	srcBase := t.TempDir()
	mkdirAll(t, filepath.Join(srcBase, "link-args"))
	touch(t, filepath.Join(srcBase, "link-args", "Makefile"))
	touch(t, filepath.Join(srcBase, "link-args", "main.rs"))
	mkdirAll(t, filepath.Join(srcBase, "no-makefile"))
	touch(t, filepath.Join(srcBase, "no-makefile", "readme.rs"))

	cfg := &harness.Config{
		Mode:      harness.RunMake,
		SrcBase:   srcBase,
		BuildBase: t.TempDir(),
	}
	tests, err := DiscoverTests(cfg)
	if err != nil {
		t.Fatalf("DiscoverTests returned error: %v", err)
	}
	if len(tests) != 1 {
		t.Fatalf("expected one make test, got %v", tests)
	}
	if filepath.Base(tests[0].File) != "link-args" {
		t.Fatalf("expected link-args directory, got %s", tests[0].File)
	}
}
