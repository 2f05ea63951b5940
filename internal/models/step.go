package models

import "time"

// Step names as reported in logs, metrics and spans
const (
	StepTest      = "test"
	StepRetrigger = "retrigger"
)

// StepResult is the outcome of one pipeline step.
type StepResult struct {
	Step     string
	Success  bool
	Duration time.Duration
	// ExitCode is set by the test step only; 0 otherwise.
	ExitCode int
}

// Outcome returns the metric label for the result.
func (r StepResult) Outcome() string {
	if r.Success {
		return "success"
	}
	return "failure"
}
