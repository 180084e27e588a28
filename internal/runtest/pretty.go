package runtest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"testrig/internal/domain/harness"
	"testrig/internal/procio"
)

// runPrettyTest round-trips the source through the pretty printer. With
// pp-exact one round must reproduce the reference file byte for byte;
// otherwise two rounds must converge to a fixed point. The final text
// must still typecheck unless the test opts out.
func (c *caseContext) runPrettyTest(ctx context.Context) error {
	src, err := os.ReadFile(c.paths.File)
	if err != nil {
		return c.failure(harness.MissingFile, fmt.Sprintf("read test source: %v", err))
	}

	rounds := 2
	if c.props.PPExact != "" {
		rounds = 1
	}

	srcs := []string{string(src)}
	for round := 0; round < rounds; round++ {
		res, err := c.printSource(ctx, srcs[round], c.props.PrettyMode)
		if err != nil {
			return err
		}
		if !res.Success() {
			return c.failProc(harness.CompileOutcome,
				fmt.Sprintf("pretty-printing failed in round %d", round), res)
		}
		srcs = append(srcs, res.Stdout)
	}

	var expected string
	if c.props.PPExact != "" {
		ref := filepath.Join(filepath.Dir(c.paths.File), c.props.PPExact)
		data, err := os.ReadFile(ref)
		if err != nil {
			return c.failure(harness.MissingFile,
				fmt.Sprintf("read pp-exact reference %q: %v", ref, err))
		}
		expected = string(data)
	} else {
		expected = srcs[len(srcs)-2]
	}
	actual := srcs[len(srcs)-1]

	if c.props.PPExact != "" {
		// A checked-out reference may carry platform line endings.
		expected = strings.ReplaceAll(expected, "\r", "")
		actual = strings.ReplaceAll(actual, "\r", "")
	}
	if expected != actual {
		log.Printf("expected:\n%s", expected)
		log.Printf("actual:\n%s", actual)
		return c.failure(harness.OutputMismatch, "pretty-printed source does not match expected source")
	}

	if c.props.PrettyCompareOnly {
		return nil
	}

	res, err := c.typecheckSource(ctx, actual)
	if err != nil {
		return err
	}
	if !res.Success() {
		return c.failProc(harness.CompileOutcome, "pretty-printed source does not typecheck", res)
	}

	if !c.props.PrettyExpanded {
		return nil
	}

	// The expanded form only has to survive the printer, not converge;
	// it chains on the output of the final round.
	res, err = c.printSource(ctx, srcs[len(srcs)-1], "expanded")
	if err != nil {
		return err
	}
	if !res.Success() {
		return c.failProc(harness.CompileOutcome, "pretty-printing (expanded) failed", res)
	}
	res, err = c.typecheckSource(ctx, res.Stdout)
	if err != nil {
		return err
	}
	if !res.Success() {
		return c.failProc(harness.CompileOutcome,
			"pretty-printed source (expanded) does not typecheck", res)
	}
	return nil
}

// printSource feeds src to the compiler's pretty printer on stdin and
// captures the printed form.
func (c *caseContext) printSource(ctx context.Context, src, prettyType string) (*harness.ProcResult, error) {
	args := []string{
		"-",
		"-Z", "unpretty=" + prettyType,
		"--target=" + c.cfg.Target,
		"-L", c.auxOutputDirName(),
	}
	args = append(args, procio.SplitArgs(c.cfg.TargetFlags)...)
	args = append(args, c.props.CompileFlags...)

	return c.composeAndRun(ctx, c.cfg.CompilerPath, args, runEnv{
		libPath: c.cfg.CompileLibPath,
		auxPath: c.auxOutputDirName(),
		extra:   c.props.ExecEnv,
	}, src)
}

// typecheckSource runs the analysis phases over src without producing
// code, using a scratch out-dir so nothing collides with real builds.
// Auxiliary crates are built first so the printed source resolves its
// extern declarations.
func (c *caseContext) typecheckSource(ctx context.Context, src string) (*harness.ProcResult, error) {
	outDir := c.outputBaseName() + ".pretty-out"
	if err := os.RemoveAll(outDir); err != nil {
		return nil, fmt.Errorf("clear pretty out-dir: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pretty out-dir: %w", err)
	}

	triple := c.cfg.Target
	if c.props.ForceHost {
		triple = c.cfg.Host
	}
	args := []string{
		"-",
		"-Z", "no-trans",
		"--out-dir", outDir,
		"--target=" + triple,
		"-L", c.cfg.BuildBase,
		"-L", c.auxOutputDirName(),
	}
	if c.revision != "" {
		args = append(args, "--cfg", c.revision)
	}
	args = append(args, procio.SplitArgs(c.cfg.TargetFlags)...)
	args = append(args, c.props.CompileFlags...)

	return c.composeAndRunCompiler(ctx, args, src)
}
