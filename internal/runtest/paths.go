package runtest

import (
	"path/filepath"
	"runtime"
	"strings"
)

// outputBaseName is the stem every artifact of this case derives from:
// <build-base>/<relative-dir>/<stem>.<stage>.
func (c *caseContext) outputBaseName() string {
	dir := filepath.Join(c.cfg.BuildBase, c.paths.RelativeDir)
	return filepath.Join(dir, fileStem(c.paths.File)+"."+c.cfg.StageID)
}

// auxOutputDirName is where auxiliary crates for this case are built.
// Pretty mode gets its own directory so the two modes never clobber
// each other's artifacts.
func (c *caseContext) auxOutputDirName() string {
	return c.outputBaseName() + c.cfg.Mode.Disambiguator() + ".aux"
}

// makeExeName names the compiled test program, with the extension the
// target's loader expects.
func (c *caseContext) makeExeName() string {
	base := c.outputBaseName()
	switch {
	case strings.Contains(c.cfg.Target, "emscripten"):
		return base + ".js"
	case strings.Contains(c.cfg.Target, "wasm32"):
		return base + ".wasm"
	case runtime.GOOS == "windows":
		return base + ".exe"
	}
	return base
}

// outName names the dump file for one captured stream, with the
// revision folded into the extension so revisions never overwrite each
// other: <stem>.<stage>.<rev.><ext>.
func (c *caseContext) outName(ext string) string {
	prefix := ""
	if c.revision != "" {
		prefix = c.revision + "."
	}
	return c.outputBaseName() + "." + prefix + ext
}

// expectedOutputPath locates a reference snapshot next to the source
// file: <test>.<rev.><kind>.
func (c *caseContext) expectedOutputPath(kind string) string {
	prefix := ""
	if c.revision != "" {
		prefix = c.revision + "."
	}
	stem := strings.TrimSuffix(c.paths.File, filepath.Ext(c.paths.File))
	return stem + "." + prefix + kind
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
