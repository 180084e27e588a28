// Package driver coordinates a harness run: it discovers test cases,
// executes them with bounded parallelism, and fans the per-case
// reports out to the log and the optional report sink.
package driver

import (
	"context"
	"log"
	"sync"
	"time"

	"testrig/internal/directive"
	"testrig/internal/domain/harness"
	"testrig/internal/ports"
	"testrig/internal/runtest"
)

// Service runs a discovered set of test cases to completion.
type Service struct {
	cfg    *harness.Config
	runner *runtest.Runner
	sink   ports.ReportSink
}

// NewService constructs a Service. sink may be nil when no external
// reporting is configured.
func NewService(cfg *harness.Config, runner *runtest.Runner, sink ports.ReportSink) *Service {
	return &Service{cfg: cfg, runner: runner, sink: sink}
}

// Summary totals one harness run.
type Summary struct {
	Passed  int
	Failed  int
	Ignored int
}

// Ok reports whether the run had no failures.
func (s Summary) Ok() bool { return s.Failed == 0 }

// Run executes every test with at most maxParallel cases in flight and
// returns the aggregate counts. Failures are logged as they happen;
// the run itself only errors when it cannot proceed at all.
func (s *Service) Run(ctx context.Context, tests []harness.TestPaths, maxParallel int) Summary {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary Summary
	)
	sem := make(chan struct{}, maxParallel)

	for _, paths := range tests {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(paths harness.TestPaths) {
			defer wg.Done()
			defer func() { <-sem }()

			report := s.runOne(ctx, paths)
			if err := s.publish(ctx, report); err != nil {
				log.Printf("publish report for %s: %v", report.Name, err)
			}

			mu.Lock()
			switch report.Outcome {
			case harness.OutcomePass:
				summary.Passed++
			case harness.OutcomeIgnored:
				summary.Ignored++
			default:
				summary.Failed++
			}
			mu.Unlock()
		}(paths)
	}

	wg.Wait()
	return summary
}

// runOne runs a single case end to end and classifies the result. A
// test marked should-fail passes exactly when the case fails.
func (s *Service) runOne(ctx context.Context, paths harness.TestPaths) harness.CaseReport {
	report := harness.CaseReport{
		Name: paths.File,
		Mode: s.cfg.Mode,
	}

	early, err := directive.ParseEarlyProps(s.cfg, paths.DirectiveFile(s.cfg))
	if err != nil {
		report.Outcome = harness.OutcomeFail
		report.Failure = renderFailure(err)
		log.Printf("FAILED %s: %s", paths.File, report.Failure)
		return report
	}
	if early.Ignore {
		report.Outcome = harness.OutcomeIgnored
		if s.cfg.Verbose {
			log.Printf("ignored %s", paths.File)
		}
		return report
	}

	start := time.Now()
	runErr := s.runner.RunCase(ctx, paths)
	report.Duration = time.Since(start)
	if f, ok := runErr.(*harness.Failure); ok {
		report.Revision = f.Revision
	}

	if early.ShouldFail {
		if runErr == nil {
			report.Outcome = harness.OutcomeFail
			report.Failure = "test was expected to fail but passed"
			log.Printf("FAILED %s: %s", paths.File, report.Failure)
		} else {
			report.Outcome = harness.OutcomePass
		}
		return report
	}

	if runErr != nil {
		report.Outcome = harness.OutcomeFail
		report.Failure = runErr.Error()
		log.Printf("FAILED %s:\n%s", paths.File, renderFailure(runErr))
		return report
	}
	report.Outcome = harness.OutcomePass
	return report
}

func (s *Service) publish(ctx context.Context, report harness.CaseReport) error {
	if s.sink == nil {
		return nil
	}
	return s.sink.PublishCaseReport(ctx, report)
}

// renderFailure includes the captured process dump when there is one.
func renderFailure(err error) string {
	if f, ok := err.(*harness.Failure); ok {
		return f.Report()
	}
	return err.Error()
}
