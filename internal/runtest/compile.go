package runtest

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"testrig/internal/domain/harness"
	"testrig/internal/procio"
)

// targetLocation tells the compiler where to put its artifact: a single
// output file, or an output directory when the compiler picks the
// names (library builds).
type targetLocation struct {
	file string
	dir  string
}

// compileTest compiles the primary source of this case, building its
// auxiliary crates first.
func (c *caseContext) compileTest(ctx context.Context) (*harness.ProcResult, error) {
	args := c.makeCompileArgs(c.paths.File, targetLocation{file: c.makeExeName()})
	args = append(args, "-L", c.auxOutputDirName())
	if c.cfg.Mode == harness.CompileFail || c.cfg.Mode == harness.Ui {
		// Headers of failure tests exercise one diagnostic; unrelated
		// lints would drown it.
		args = append(args, "-A", "unused")
	}
	return c.composeAndRunCompiler(ctx, args, "")
}

// makeCompileArgs builds the compiler argv for input, in a fixed order
// so user flags always win: base flags, mode flags, output location,
// per-run extra flags, then the test's own compile-flags.
func (c *caseContext) makeCompileArgs(input string, out targetLocation) []string {
	customTarget := false
	for _, f := range c.props.CompileFlags {
		if strings.HasPrefix(f, "--target") {
			customTarget = true
		}
	}

	args := []string{input, "-L", c.cfg.BuildBase}
	if !customTarget {
		triple := c.cfg.Target
		if c.props.ForceHost {
			triple = c.cfg.Host
		}
		args = append(args, "--target="+triple)
	}
	if c.revision != "" {
		args = append(args, "--cfg", c.revision)
	}
	if c.props.IncrementalDir != "" {
		args = append(args,
			"-Z", "incremental="+c.props.IncrementalDir,
			"-Z", "incremental-verify-ich",
			"-Z", "incremental-queries")
	}

	if c.cfg.Mode == harness.CompileFail && len(c.props.ErrorPatterns) == 0 {
		args = append(args, "--error-format", "json")
	}

	// wasm has no dynamic linking story; forcing it breaks every build.
	if !c.props.NoPreferDynamic && !strings.Contains(c.cfg.Target, "wasm32") {
		args = append(args, "-C", "prefer-dynamic")
	}

	if out.file != "" {
		args = append(args, "-o", out.file)
	} else {
		args = append(args, "--out-dir", out.dir)
	}

	if c.props.ForceHost {
		args = append(args, procio.SplitArgs(c.cfg.HostFlags)...)
	} else {
		args = append(args, procio.SplitArgs(c.cfg.TargetFlags)...)
	}
	if c.cfg.Linker != "" {
		args = append(args, "-C", "linker="+c.cfg.Linker)
	}
	return append(args, c.props.CompileFlags...)
}

// composeAndRunCompiler runs the compiler on the primary source after
// building every declared auxiliary crate. An auxiliary that fails to
// build aborts the case before the primary compile starts.
func (c *caseContext) composeAndRunCompiler(ctx context.Context, args []string, input string) (*harness.ProcResult, error) {
	if len(c.props.AuxBuilds) > 0 {
		if err := os.MkdirAll(c.auxOutputDirName(), 0o755); err != nil {
			return nil, fmt.Errorf("create aux output dir: %w", err)
		}
	}
	for _, aux := range c.props.AuxBuilds {
		if err := c.buildAuxiliary(ctx, aux); err != nil {
			return nil, err
		}
	}
	return c.composeAndRun(ctx, c.cfg.CompilerPath, args, runEnv{
		libPath: c.cfg.CompileLibPath,
		auxPath: c.auxOutputDirName(),
		extra:   c.props.CompileEnv,
	}, input)
}

// runEnv describes the environment of one child process: the dynamic
// library search path entries plus test-supplied variables.
type runEnv struct {
	libPath string
	auxPath string
	extra   []harness.EnvVar
	dir     string
}

// composeAndRun spawns prog with the harness environment: the platform
// dylib variable gets libPath and auxPath prepended, then test-supplied
// variables are layered on top of the ambient environment.
func (c *caseContext) composeAndRun(ctx context.Context, prog string, args []string, env runEnv, input string) (*harness.ProcResult, error) {
	cmd := exec.CommandContext(ctx, prog, args...)
	cmd.Dir = env.dir
	cmd.Env = composeEnv(os.Environ(), env)

	if c.cfg.Verbose {
		log.Printf("executing %s", procio.Cmdline(cmd))
	}
	res, err := procio.Run(cmd, input)
	if err != nil {
		if f, ok := err.(*harness.Failure); ok {
			f.Revision = c.revision
		}
		return nil, err
	}
	c.dumpOutput(res)
	return res, nil
}

// composeEnv layers the dylib search path and extra variables over the
// ambient environment. Later entries win, so extras override ambient
// values of the same name.
func composeEnv(ambient []string, env runEnv) []string {
	out := append([]string(nil), ambient...)

	dylibVar := procio.DylibEnvVar()
	parts := make([]string, 0, 3)
	if env.libPath != "" {
		parts = append(parts, env.libPath)
	}
	if env.auxPath != "" {
		parts = append(parts, env.auxPath)
	}
	for _, kv := range ambient {
		if k, v, ok := strings.Cut(kv, "="); ok && k == dylibVar && v != "" {
			parts = append(parts, v)
		}
	}
	out = append(out, dylibVar+"="+strings.Join(parts, string(os.PathListSeparator)))

	for _, kv := range env.extra {
		out = append(out, kv.Key+"="+kv.Value)
	}
	return out
}

// dumpOutput writes both captured streams next to the other build
// artifacts so failures can be inspected after the run.
func (c *caseContext) dumpOutput(res *harness.ProcResult) {
	if err := os.MkdirAll(filepath.Dir(c.outName("out")), 0o755); err != nil {
		log.Printf("dump output: %v", err)
		return
	}
	for ext, data := range map[string]string{"out": res.Stdout, "err": res.Stderr} {
		if err := os.WriteFile(c.outName(ext), []byte(data), 0o644); err != nil {
			log.Printf("dump %s: %v", ext, err)
		}
	}
	if c.cfg.Verbose {
		log.Printf("stdout:\n%s", res.Stdout)
		log.Printf("stderr:\n%s", res.Stderr)
	}
}
