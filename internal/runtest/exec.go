package runtest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"testrig/internal/domain/harness"
	"testrig/internal/ports"
	"testrig/internal/procio"
)

// execCompiled runs the compiled test program. Three transports exist:
// a container runner when configured, the remote test client for
// cross-compiled targets, and a plain child process otherwise.
func (c *caseContext) execCompiled(ctx context.Context) (*harness.ProcResult, error) {
	if c.remote != nil {
		return c.execInContainer(ctx)
	}
	if c.cfg.RemoteClient != "" {
		return c.execRemote(ctx)
	}

	argv, err := c.makeRunArgs()
	if err != nil {
		return nil, err
	}
	return c.composeAndRun(ctx, argv[0], argv[1:], runEnv{
		libPath: c.cfg.RunLibPath,
		auxPath: c.auxOutputDirName(),
		extra:   c.props.ExecEnv,
		dir:     filepath.Dir(c.makeExeName()),
	}, "")
}

// makeRunArgs assembles the argv for a local run: optional run tool,
// the interpreter demanded by the target, the program, then the test's
// run-flags.
func (c *caseContext) makeRunArgs() ([]string, error) {
	argv := procio.SplitArgs(c.cfg.RunTool)

	if strings.Contains(c.cfg.Target, "wasm32") || strings.Contains(c.cfg.Target, "emscripten") {
		if c.cfg.NodeJS == "" {
			return nil, c.failure(harness.ConfigError,
				"no NodeJS binary configured for a JavaScript target")
		}
		argv = append(argv, c.cfg.NodeJS)
		if !strings.Contains(c.cfg.Target, "emscripten") {
			shim := filepath.Join(c.cfg.SrcBase, "..", "..", "..",
				"src", "etc", "wasm32-shim.js")
			argv = append(argv, shim)
		}
	}

	argv = append(argv, c.makeExeName())
	argv = append(argv, procio.SplitArgs(c.props.RunFlags)...)
	return argv, nil
}

// execRemote ships the program and its support libraries to the remote
// test client, which runs them on the target device.
func (c *caseContext) execRemote(ctx context.Context) (*harness.ProcResult, error) {
	prog := strings.Join(append([]string{c.makeExeName()}, c.auxFiles()...), ":")
	args := append([]string{"run", prog}, procio.SplitArgs(c.props.RunFlags)...)
	return c.composeAndRun(ctx, c.cfg.RemoteClient, args, runEnv{
		libPath: c.cfg.RunLibPath,
		extra:   c.props.ExecEnv,
	}, "")
}

func (c *caseContext) execInContainer(ctx context.Context) (*harness.ProcResult, error) {
	res, err := c.remote.RunProgram(ctx, ports.RunSpec{
		Program:  c.makeExeName(),
		Args:     procio.SplitArgs(c.props.RunFlags),
		Env:      c.props.ExecEnv,
		AuxFiles: c.auxFiles(),
	})
	if err != nil {
		if f, ok := err.(*harness.Failure); ok {
			f.Revision = c.revision
		}
		return nil, err
	}
	c.dumpOutput(res)
	return res, nil
}

// auxFiles lists the built auxiliary artifacts that must travel with
// the program.
func (c *caseContext) auxFiles() []string {
	entries, err := os.ReadDir(c.auxOutputDirName())
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(c.auxOutputDirName(), e.Name()))
		}
	}
	return files
}
