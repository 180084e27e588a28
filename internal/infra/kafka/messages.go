package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"testrig/internal/domain/harness"
)

// reportEnvelope is the wire form of one finished test case.
type reportEnvelope struct {
	Name       string    `json:"name"`
	Mode       string    `json:"mode"`
	Revision   string    `json:"revision,omitempty"`
	Outcome    string    `json:"outcome"`
	Failure    string    `json:"failure,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

func encodeCaseReport(report harness.CaseReport) ([]byte, error) {
	payload, err := json.Marshal(reportEnvelope{
		Name:       report.Name,
		Mode:       string(report.Mode),
		Revision:   report.Revision,
		Outcome:    string(report.Outcome),
		Failure:    report.Failure,
		DurationMs: report.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return payload, nil
}
