package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	apperrors "github.com/natcap/invest-pipelines/pkg/errors"
	"github.com/natcap/invest-pipelines/pkg/logger"
	"go.uber.org/zap"
)

// CommandRunner runs an external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands as subprocesses with their output streamed to
// Stdout and Stderr. Cancelling the context kills the subprocess.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner returns a runner attached to the process stdout and stderr
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run returns an *errors.ExitError when the command exits non-zero.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	command := exec.CommandContext(ctx, name, args...)
	command.Dir = dir
	command.Stdout = r.Stdout
	command.Stderr = r.Stderr

	logger.Info("Running command",
		zap.String("command", name),
		zap.Strings("args", args),
		zap.String("dir", dir))

	err := command.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if apperrors.As(err, &exitErr) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", name, ctxErr)
		}
		return apperrors.StepFailedError(commandLine(name, args), exitErr.ExitCode(), err)
	}
	return fmt.Errorf("failed to start %s: %w", name, err)
}

func commandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
