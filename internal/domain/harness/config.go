package harness

import "path/filepath"

// Config holds the run-wide settings shared read-only by every test
// case. It is constructed once by the driver and never mutated.
type Config struct {
	// Mode selects the suite contract for every case in this run.
	Mode Mode

	// Target is the triple code is compiled for; Host is the triple the
	// toolchain itself runs on. They differ under cross-compilation.
	Target string
	Host   string

	// StageID distinguishes artifacts produced by different build
	// stages of the compiler under test, e.g. "stage1-x86_64-unknown-linux-gnu".
	StageID string

	// Toolchain locations.
	CompilerPath string
	DocPath      string
	NodeJS       string
	RemoteClient string
	Linker       string
	Python       string

	// C toolchain handed to run-make tests.
	CC     string
	CXX    string
	CFlags string
	AR     string

	// SrcBase is the directory tests were discovered under; BuildBase
	// receives artifacts, mirrored by each test's relative directory.
	SrcBase   string
	BuildBase string

	// Library search paths for the compile and run phases.
	CompileLibPath string
	RunLibPath     string

	// Extra flag strings appended to every compile, chosen by whether
	// the compile targets the host or the target triple.
	TargetFlags string
	HostFlags   string

	// LLVM identity of the toolchain under test.
	SystemLLVM     bool
	LLVMVersion    string
	LLVMComponents string
	LLVMCXXFlags   string

	// RunTool optionally wraps executed programs (e.g. a memory checker).
	RunTool string

	// ContainerImage, when set, routes the execute phase through the
	// container runner instead of a direct child process.
	ContainerImage string

	Verbose bool
	Filter  string
}

// TestPaths locates one test case relative to the trees it lives in.
type TestPaths struct {
	// File is the absolute path of the test source file.
	File string
	// Base is the scan root the file was discovered under.
	Base string
	// RelativeDir mirrors the test's directory under the build root.
	RelativeDir string
}

// BuildDir is the per-test output directory under the build base.
func (p TestPaths) BuildDir(cfg *Config) string {
	return filepath.Join(cfg.BuildBase, p.RelativeDir)
}

// DirectiveFile is the file whose header carries the test's directives.
// Make tests are directories and keep theirs in the recipe Makefile.
func (p TestPaths) DirectiveFile(cfg *Config) string {
	if cfg.Mode == RunMake {
		return filepath.Join(p.File, "Makefile")
	}
	return p.File
}
