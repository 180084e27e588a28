package procio

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/kballard/go-shellquote"

	"testrig/internal/domain/harness"
)

// DylibEnvVar is the name of the environment variable holding dynamic
// library locations on the host platform.
func DylibEnvVar() string {
	switch runtime.GOOS {
	case "windows":
		return "PATH"
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	case "haiku":
		return "LIBRARY_PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}

// Cmdline renders a command for diagnostics, quoting arguments that
// need it.
func Cmdline(cmd *exec.Cmd) string {
	return shellquote.Join(cmd.Args...)
}

// Run starts cmd with both streams captured through abbreviating
// buffers, feeds it stdin, and waits for it to exit. A process that
// cannot be started is a ProcessSpawn failure; a non-zero exit is not
// an error here, it is recorded in the result for the caller to judge.
func Run(cmd *exec.Cmd, stdin string) (*harness.ProcResult, error) {
	var outBuf, errBuf CaptureBuffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	cmdline := Cmdline(cmd)
	if err := cmd.Start(); err != nil {
		return nil, &harness.Failure{
			Kind: harness.ProcessSpawn,
			Msg:  fmt.Sprintf("failed to start `%s`: %v", cmdline, err),
		}
	}

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("wait for `%s`: %w", cmdline, err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &harness.ProcResult{
		ExitCode: exitCode,
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Cmdline:  cmdline,
	}, nil
}

// SplitArgs splits a flag string into an argv vector, honoring shell
// quoting. A string with unbalanced quotes falls back to whitespace
// fields so stray directives never abort a run.
func SplitArgs(s string) []string {
	if s == "" {
		return nil
	}
	args, err := shellquote.Split(s)
	if err != nil {
		return strings.Fields(s)
	}
	return args
}
