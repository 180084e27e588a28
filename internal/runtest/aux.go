package runtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"testrig/internal/directive"
	"testrig/internal/domain/harness"
)

// buildAuxiliary compiles one companion crate named by an aux-build
// directive. The source is resolved under the primary test's sibling
// auxiliary/ directory, parsed with its own directive header, and
// built into the primary's aux output directory.
func (c *caseContext) buildAuxiliary(ctx context.Context, rel string) error {
	file := filepath.Join(filepath.Dir(c.paths.File), "auxiliary", rel)
	if _, err := os.Stat(file); err != nil {
		return c.failure(harness.MissingFile,
			fmt.Sprintf("aux-build source %q not found: %v", rel, err))
	}

	auxProps, err := directive.ParseProps(c.cfg, file, c.revision)
	if err != nil {
		return err
	}
	auxCx := &caseContext{
		cfg:   c.cfg,
		props: auxProps,
		paths: harness.TestPaths{
			File:        file,
			Base:        c.paths.Base,
			RelativeDir: c.paths.RelativeDir,
		},
		revision: c.revision,
		remote:   c.remote,
	}

	outDir := c.auxOutputDirName()
	args := auxCx.makeCompileArgs(file, targetLocation{dir: outDir})
	if ct := c.auxCrateType(auxProps); ct != "" {
		args = append(args, "--crate-type", ct)
	}
	args = append(args, "-L", outDir)

	res, err := auxCx.composeAndRun(ctx, c.cfg.CompilerPath, args, runEnv{
		libPath: c.cfg.CompileLibPath,
		auxPath: outDir,
	}, "")
	if err != nil {
		return err
	}
	if !res.Success() {
		return c.failProc(harness.AuxBuildFailed,
			fmt.Sprintf("auxiliary build of %q failed to compile", file), res)
	}
	return nil
}

// auxCrateType picks the library flavor for an auxiliary crate. Dylibs
// are preferred so the dynamic path gets coverage, but targets without
// dynamic linking fall back to a plain library.
func (c *caseContext) auxCrateType(auxProps *directive.TestProps) string {
	if auxProps.NoPreferDynamic {
		return ""
	}
	static := strings.Contains(c.cfg.Target, "musl") && !auxProps.ForceHost ||
		strings.Contains(c.cfg.Target, "wasm32") ||
		strings.Contains(c.cfg.Target, "emscripten")
	if static {
		return "lib"
	}
	return "dylib"
}
