package driver

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"testrig/internal/domain/harness"
	"testrig/internal/runtest"
)

// fakeCompiler writes a shell script that prints a diagnostic and exits
// with the runtime failure code, standing in for a rejecting compiler.
func fakeCompiler(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler script requires a POSIX shell")
	}
	path := filepath.Join(dir, "fakecc")
	script := "#!/bin/sh\necho 'error: mismatched types' >&2\nexit 101\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake compiler: %v", err)
	}
	return path
}

func writeTest(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func testConfig(t *testing.T, srcBase string) *harness.Config {
	t.Helper()
	buildBase := t.TempDir()
	return &harness.Config{
		Mode:         harness.CompileFail,
		Target:       "x86_64-unknown-linux-gnu",
		Host:         "x86_64-unknown-linux-gnu",
		StageID:      "stage2",
		CompilerPath: fakeCompiler(t, t.TempDir()),
		SrcBase:      srcBase,
		BuildBase:    buildBase,
	}
}

func TestServiceRunCountsOutcomes(t *testing.T) {
	t.Parallel()

	srcBase := t.TempDir()
	cfg := testConfig(t, srcBase)

	passing := writeTest(t, srcBase, "reject.rs",
		"// error-pattern:mismatched types\nfn main() {}\n")
	ignored := writeTest(t, srcBase, "skipped.rs",
		"// ignore-test\nfn main() {}\n")
	failing := writeTest(t, srcBase, "wrong-pattern.rs",
		"// error-pattern:no such diagnostic\nfn main() {}\n")

	tests := []harness.TestPaths{
		{File: passing, Base: srcBase},
		{File: ignored, Base: srcBase},
		{File: failing, Base: srcBase},
	}

	sink := &recordingSink{}
	svc := NewService(cfg, runtest.New(cfg, nil), sink)
	summary := svc.Run(context.Background(), tests, 2)

	if summary.Passed != 1 {
		t.Fatalf("expected 1 pass, got %+v", summary)
	}
	if summary.Ignored != 1 {
		t.Fatalf("expected 1 ignored, got %+v", summary)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", summary)
	}
	if summary.Ok() {
		t.Fatalf("expected summary not ok with a failure")
	}

	if got := len(sink.reports()); got != 3 {
		t.Fatalf("expected 3 published reports, got %d", got)
	}

	stamp := filepath.Join(cfg.BuildBase, "reject.rs-stage2.stamp")
	if _, err := os.Stat(stamp); err != nil {
		t.Fatalf("expected stamp file for passing test: %v", err)
	}
}

func TestServiceRunShouldFailInversion(t *testing.T) {
	t.Parallel()

	srcBase := t.TempDir()
	cfg := testConfig(t, srcBase)

	// The fake compiler emits the pattern, so the case passes, which a
	// should-fail test reports as a failure.
	unexpected := writeTest(t, srcBase, "meta-pass.rs",
		"// should-fail\n// error-pattern:mismatched types\nfn main() {}\n")
	expected := writeTest(t, srcBase, "meta-fail.rs",
		"// should-fail\n// error-pattern:never printed\nfn main() {}\n")

	tests := []harness.TestPaths{
		{File: unexpected, Base: srcBase},
		{File: expected, Base: srcBase},
	}

	svc := NewService(cfg, runtest.New(cfg, nil), nil)
	summary := svc.Run(context.Background(), tests, 1)

	if summary.Passed != 1 || summary.Failed != 1 {
		t.Fatalf("expected one pass and one failure, got %+v", summary)
	}
}

func TestServiceRunNilSink(t *testing.T) {
	t.Parallel()

	srcBase := t.TempDir()
	cfg := testConfig(t, srcBase)
	passing := writeTest(t, srcBase, "ok.rs",
		"// error-pattern:mismatched types\nfn main() {}\n")

	svc := NewService(cfg, runtest.New(cfg, nil), nil)
	summary := svc.Run(context.Background(), []harness.TestPaths{{File: passing, Base: srcBase}}, 0)

	if summary.Passed != 1 {
		t.Fatalf("expected pass with nil sink, got %+v", summary)
	}
}

type recordingSink struct {
	mu   sync.Mutex
	recs []harness.CaseReport
}

func (s *recordingSink) PublishCaseReport(ctx context.Context, report harness.CaseReport) error {
	s.mu.Lock()
	s.recs = append(s.recs, report)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) reports() []harness.CaseReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]harness.CaseReport, len(s.recs))
	copy(cp, s.recs)
	return cp
}
