package runtest

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"testrig/internal/directive"
	"testrig/internal/domain/harness"
)

func TestNormalizeOutputBuiltins(t *testing.T) {
	t.Parallel()

	c := testContext(harness.Ui)
	dir := filepath.Dir(c.paths.File)

	in := "error at " + dir + "/case.rs:3\r\nnote:\tindented\n"
	got := c.normalizeOutput(in, nil)
	require.Equal(t, "error at $DIR/case.rs:3\nnote:\\tindented\n", got)
}

func TestNormalizeOutputJSON(t *testing.T) {
	t.Parallel()

	c := testContext(harness.Ui)
	c.props.CompileFlags = []string{"--error-format", "json"}
	dir := filepath.Dir(c.paths.File)

	in := `{"file":"` + dir + `/case.rs","rendered":"line one\nline two"}`
	got := c.normalizeOutput(in, nil)
	require.Contains(t, got, `"$DIR/case.rs"`)
	require.Contains(t, got, "line one\nline two")
}

func TestNormalizeOutputBackslashes(t *testing.T) {
	t.Parallel()

	c := testContext(harness.Ui)
	// Doubled separators are undoubled, then every backslash becomes a
	// forward slash.
	got := c.normalizeOutput(`error at dir\\sub\\case.rs and also dir\other.rs`, nil)
	require.Equal(t, "error at dir/sub/case.rs and also dir/other.rs", got)
}

func TestNormalizeOutputUserRules(t *testing.T) {
	t.Parallel()

	c := testContext(harness.Ui)
	rules := []directive.NormalizeRule{
		{From: "0xdeadbeef", To: "ADDR"},
		{From: "ADDR", To: "PTR"},
	}
	// Rules apply in directive order, each over the previous result.
	got := c.normalizeOutput("at 0xdeadbeef", rules)
	require.Equal(t, "at PTR", got)
}

func TestCompareOutputWritesActual(t *testing.T) {
	c := testContext(harness.Ui)
	c.cfg.BuildBase = t.TempDir()

	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	require.Zero(t, c.compareOutput("stderr", "same", "same"))

	require.Equal(t, 1, c.compareOutput("stderr", "actual text", "expected text"))
	saved, err := os.ReadFile(c.outName("stderr"))
	require.NoError(t, err)
	require.Equal(t, "actual text", string(saved))

	// The mismatch report tells the user how to refresh the snapshot.
	hint := "cp " + c.outName("stderr") + " " + c.expectedOutputPath("stderr")
	require.Contains(t, logged.String(), hint)
}

func TestLoadExpectedMissingSnapshot(t *testing.T) {
	t.Parallel()

	c := testContext(harness.Ui)
	c.paths.File = filepath.Join(t.TempDir(), "case.rs")

	got, err := c.loadExpected("stderr")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestLoadExpectedReadsSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := testContext(harness.Ui)
	c.paths.File = filepath.Join(dir, "case.rs")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "case.stderr"), []byte("expected\n"), 0o644))

	got, err := c.loadExpected("stderr")
	require.NoError(t, err)
	require.Equal(t, "expected\n", got)
}
