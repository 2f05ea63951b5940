package services

import (
	"context"

	"github.com/natcap/invest-pipelines/internal/models"
)

// TestStepServiceInterface defines the default pipeline step
type TestStepServiceInterface interface {
	// RunTests installs the test runner and runs it against target, or
	// against the configured target when target is empty.
	RunTests(ctx context.Context, target string) (*models.StepResult, error)
}

// RetriggerServiceInterface defines the on-demand build retrigger step
type RetriggerServiceInterface interface {
	BuildRequest(ctx context.Context) (*models.BuildRequest, error)
	Retrigger(ctx context.Context) (*models.BuildResponse, error)
	DryRun(ctx context.Context) error
}
