package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/natcap/invest-pipelines/config"
	"github.com/natcap/invest-pipelines/internal/models"
	"github.com/natcap/invest-pipelines/pkg/logger"
	"github.com/natcap/invest-pipelines/pkg/metrics"
	"github.com/natcap/invest-pipelines/pkg/tracing"
)

type TestStepService struct {
	config   config.TestStepConfig
	runner   CommandRunner
	recorder *metrics.Recorder
}

// NewTestStepService creates the test step. recorder may be nil.
func NewTestStepService(cfg config.TestStepConfig, runner CommandRunner, recorder *metrics.Recorder) TestStepServiceInterface {
	return &TestStepService{
		config:   cfg,
		runner:   runner,
		recorder: recorder,
	}
}

func (s *TestStepService) RunTests(ctx context.Context, target string) (*models.StepResult, error) {
	if target == "" {
		target = s.config.Target
	}

	ctx, span := tracing.StartSpan(ctx, "step.test", attribute.String("test.target", target))
	start := time.Now()

	err := s.runTests(ctx, target)

	result := finishStep(s.recorder, models.StepTest, start, err)
	span.SetAttributes(attribute.Int("test.exit_code", result.ExitCode))
	tracing.EndSpan(span, err)

	return result, err
}

func (s *TestStepService) runTests(ctx context.Context, target string) error {
	if len(s.config.InstallCommand) > 0 {
		logger.Info("Installing test runner", zap.Strings("command", s.config.InstallCommand))
		install := s.config.InstallCommand
		if err := s.runner.Run(ctx, s.config.WorkDir, install[0], install[1:]...); err != nil {
			return err
		}
	}

	run := s.config.RunCommand
	args := append(append([]string{}, run[1:]...), target)

	logger.Info("Running tests",
		zap.String("runner", run[0]),
		zap.String("target", target))

	return s.runner.Run(ctx, s.config.WorkDir, run[0], args...)
}
