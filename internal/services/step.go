package services

import (
	"time"

	"github.com/natcap/invest-pipelines/internal/models"
	apperrors "github.com/natcap/invest-pipelines/pkg/errors"
	"github.com/natcap/invest-pipelines/pkg/logger"
	"github.com/natcap/invest-pipelines/pkg/metrics"
	"go.uber.org/zap"
)

// finishStep builds the step result for err, logs it and records it on
// recorder when one is configured.
func finishStep(recorder *metrics.Recorder, step string, start time.Time, err error) *models.StepResult {
	result := &models.StepResult{
		Step:     step,
		Success:  err == nil,
		Duration: time.Since(start),
	}

	var exitErr *apperrors.ExitError
	if apperrors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode
	}

	if recorder != nil {
		recorder.ObserveStep(result.Step, result.Outcome(), result.Duration)
	}

	fields := []zap.Field{
		zap.String("step", step),
		zap.Duration("duration", result.Duration),
	}
	if err != nil {
		logger.LogError(err, "Pipeline step failed", fields...)
	} else {
		logger.Info("Pipeline step finished", fields...)
	}

	return result
}
