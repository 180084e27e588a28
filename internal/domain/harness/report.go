package harness

import "time"

// Outcome is the final classification of one test case.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeIgnored Outcome = "ignored"
)

// CaseReport is the per-case record handed to report sinks after a
// case finishes. Failure holds the rendered fault for failed cases.
type CaseReport struct {
	Name     string
	Mode     Mode
	Revision string
	Outcome  Outcome
	Failure  string
	Duration time.Duration
}
