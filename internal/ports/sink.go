package ports

import (
	"context"

	"testrig/internal/domain/harness"
)

// ReportSink publishes finished case reports to an external system.
type ReportSink interface {
	PublishCaseReport(ctx context.Context, report harness.CaseReport) error
	Close() error
}
