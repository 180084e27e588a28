package procio

import (
	"errors"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"

	"testrig/internal/domain/harness"
)

func TestSplitArgs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"-O -C debuginfo=2", []string{"-O", "-C", "debuginfo=2"}},
		{`--cfg 'feature="fast"'`, []string{"--cfg", `feature="fast"`}},
		// Unbalanced quotes fall back to whitespace fields.
		{`--flag "oops`, []string{"--flag", `"oops`}},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, SplitArgs(tc.in)); diff != "" {
			t.Errorf("SplitArgs(%q) (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestDylibEnvVar(t *testing.T) {
	t.Parallel()

	got := DylibEnvVar()
	switch runtime.GOOS {
	case "windows":
		if got != "PATH" {
			t.Fatalf("DylibEnvVar() = %q", got)
		}
	case "darwin":
		if got != "DYLD_LIBRARY_PATH" {
			t.Fatalf("DylibEnvVar() = %q", got)
		}
	default:
		if got != "LD_LIBRARY_PATH" {
			t.Fatalf("DylibEnvVar() = %q", got)
		}
	}
}

func TestCmdlineQuotes(t *testing.T) {
	t.Parallel()

	cmd := exec.Command("compiler", "input file.rs", "-O")
	if got := Cmdline(cmd); got != `compiler 'input file.rs' -O` {
		t.Fatalf("Cmdline() = %q", got)
	}
}

func TestRunCapturesStreamsAndExitCode(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	cmd := exec.Command("sh", "-c", "echo out; echo err >&2; exit 3")
	res, err := Run(cmd, "")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if res.Stdout != "out\n" || res.Stderr != "err\n" {
		t.Fatalf("streams = %q / %q", res.Stdout, res.Stderr)
	}
	if res.Cmdline == "" {
		t.Fatalf("expected a rendered command line")
	}
}

func TestRunFeedsStdin(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	res, err := Run(exec.Command("sh", "-c", "cat"), "fn main() {}\n")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 0 || res.Stdout != "fn main() {}\n" {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	t.Parallel()

	bogus := filepath.Join(t.TempDir(), "no-such-binary")
	_, err := Run(exec.Command(bogus), "")
	var failure *harness.Failure
	if !errors.As(err, &failure) || failure.Kind != harness.ProcessSpawn {
		t.Fatalf("expected process spawn failure, got %v", err)
	}
}
