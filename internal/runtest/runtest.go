// Package runtest drives a single test case through its full pipeline:
// directive parsing, auxiliary builds, compilation, optional execution,
// output normalization, and outcome classification.
package runtest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"testrig/internal/directive"
	"testrig/internal/domain/harness"
	"testrig/internal/ports"
)

// Runner executes test cases against one immutable configuration.
type Runner struct {
	cfg    *harness.Config
	remote ports.ProgramRunner
}

// New constructs a Runner. remote may be nil; when set, the execute
// phase of run modes is routed through it instead of a direct child
// process.
func New(cfg *harness.Config, remote ports.ProgramRunner) *Runner {
	return &Runner{cfg: cfg, remote: remote}
}

// RunCase runs one test case to completion: once when the test declares
// no revisions, otherwise once per revision in directive order. A nil
// return means the case passed and its stamp file was written.
func (r *Runner) RunCase(ctx context.Context, paths harness.TestPaths) error {
	if r.cfg.Verbose {
		log.Printf("running %s", paths.File)
	}

	baseProps, err := directive.ParseProps(r.cfg, paths.DirectiveFile(r.cfg), "")
	if err != nil {
		return err
	}

	if len(baseProps.Revisions) == 0 {
		cx := &caseContext{cfg: r.cfg, props: baseProps, paths: paths, remote: r.remote}
		if err := cx.runRevision(ctx); err != nil {
			return err
		}
	} else {
		for _, revision := range baseProps.Revisions {
			revProps, err := directive.ParseProps(r.cfg, paths.DirectiveFile(r.cfg), revision)
			if err != nil {
				return err
			}
			cx := &caseContext{
				cfg:      r.cfg,
				props:    revProps,
				paths:    paths,
				revision: revision,
				remote:   r.remote,
			}
			if err := cx.runRevision(ctx); err != nil {
				return err
			}
		}
	}

	return r.writeStamp(paths)
}

// writeStamp records a completed run; the marker documents success but
// is never consulted for skipping in this layer.
func (r *Runner) writeStamp(paths harness.TestPaths) error {
	name := fmt.Sprintf("%s-%s.stamp", filepath.Base(paths.File), r.cfg.StageID)
	stamp := filepath.Join(r.cfg.BuildBase, name)
	if err := os.WriteFile(stamp, nil, 0o644); err != nil {
		return fmt.Errorf("write stamp file: %w", err)
	}
	return nil
}

// caseContext is the per-case, per-revision state every phase operates
// on. Auxiliary builds nest a fresh context with their own properties
// and paths; it never outlives the primary's.
type caseContext struct {
	cfg      *harness.Config
	props    *directive.TestProps
	paths    harness.TestPaths
	revision string
	remote   ports.ProgramRunner
}

func (c *caseContext) runRevision(ctx context.Context) error {
	switch c.cfg.Mode {
	case harness.CompileFail:
		return c.runCompileFailTest(ctx)
	case harness.RunFail:
		return c.runRunFailTest(ctx)
	case harness.RunPass:
		return c.runRunPassTest(ctx)
	case harness.Pretty:
		return c.runPrettyTest(ctx)
	case harness.RunMake:
		return c.runRunMakeTest(ctx)
	case harness.Ui:
		return c.runUiTest(ctx)
	}
	return c.failure(harness.ConfigError, fmt.Sprintf("unsupported mode %q", c.cfg.Mode))
}

func (c *caseContext) failure(kind harness.FailureKind, msg string) error {
	return &harness.Failure{Kind: kind, Msg: msg, Revision: c.revision}
}

func (c *caseContext) failProc(kind harness.FailureKind, msg string, proc *harness.ProcResult) error {
	return &harness.Failure{Kind: kind, Msg: msg, Revision: c.revision, Proc: proc}
}
