package runtest

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"testrig/internal/domain/harness"
	"testrig/internal/procio"
)

// runRunMakeTest delegates to the makefile in the test's directory,
// handing it the toolchain under test through a fixed environment
// block. Cross-compiled runs are skipped: the recipes execute what
// they build.
func (c *caseContext) runRunMakeTest(ctx context.Context) error {
	if c.cfg.Host != c.cfg.Target {
		if c.cfg.Verbose {
			log.Printf("skipping make test %s under cross-compilation", c.paths.File)
		}
		return nil
	}

	tmpDir := c.outputBaseName()
	if err := os.RemoveAll(tmpDir); err != nil {
		return fmt.Errorf("clear make tmpdir: %w", err)
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("create make tmpdir: %w", err)
	}

	makeProg := "make"
	for _, bsd := range []string{"bitrig", "dragonfly", "freebsd", "netbsd", "openbsd"} {
		if strings.Contains(c.cfg.Host, bsd) {
			makeProg = "gmake"
		}
	}

	srcRoot := filepath.Join(c.cfg.SrcBase, "..", "..", "..")
	cmd := exec.CommandContext(ctx, makeProg)
	cmd.Dir = c.paths.File

	env := make([]string, 0, len(os.Environ())+20)
	for _, kv := range os.Environ() {
		// Ambient compiler flags would leak into every recipe.
		if strings.HasPrefix(kv, "RUSTFLAGS=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env,
		"TARGET="+c.cfg.Target,
		"PYTHON="+c.cfg.Python,
		"S="+srcRoot,
		"RUST_BUILD_STAGE="+c.cfg.StageID,
		"RUSTC="+c.cfg.CompilerPath,
		"RUSTDOC="+c.cfg.DocPath,
		"TMPDIR="+tmpDir,
		"LD_LIB_PATH_ENVVAR="+procio.DylibEnvVar(),
		"HOST_RPATH_DIR="+c.cfg.CompileLibPath,
		"TARGET_RPATH_DIR="+c.cfg.RunLibPath,
		"LLVM_COMPONENTS="+c.cfg.LLVMComponents,
		"LLVM_CXXFLAGS="+c.cfg.LLVMCXXFlags,
	)
	if c.cfg.Linker != "" {
		env = append(env, "RUSTC_LINKER="+c.cfg.Linker)
	}
	if runtime.GOOS == "windows" {
		env = append(env,
			"CC="+c.cfg.CC+" "+c.cfg.CFlags,
			"CXX="+c.cfg.CXX,
			"IS_WINDOWS=1",
		)
	} else {
		env = append(env,
			"CC="+c.cfg.CC+" "+c.cfg.CFlags,
			"CXX="+c.cfg.CXX+" "+c.cfg.CFlags,
			"AR="+c.cfg.AR,
		)
	}
	cmd.Env = env

	if c.cfg.Verbose {
		log.Printf("executing %s", procio.Cmdline(cmd))
	}
	res, err := procio.Run(cmd, "")
	if err != nil {
		if f, ok := err.(*harness.Failure); ok {
			f.Revision = c.revision
		}
		return err
	}
	if !res.Success() {
		return c.failProc(harness.CompileOutcome, "make failed", res)
	}
	return nil
}
