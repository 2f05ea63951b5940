package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/natcap/invest-pipelines/config"
	apperrors "github.com/natcap/invest-pipelines/pkg/errors"
	"github.com/natcap/invest-pipelines/pkg/logger"
	"github.com/natcap/invest-pipelines/pkg/metrics"
	"github.com/natcap/invest-pipelines/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newApp(os.Stdout).RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

// pipeline holds what the Before hook sets up for the subcommands.
type pipeline struct {
	out             io.Writer
	cfg             *config.Config
	recorder        *metrics.Recorder
	shutdownTracing func(context.Context) error
}

func newApp(out io.Writer) *cli.App {
	p := &pipeline{out: out}

	return &cli.App{
		Name:  "pipeline",
		Usage: "runs the InVEST CI pipeline steps",
		Description: "pipeline runs the test step (default) or retriggers the " +
			"AppVeyor build for the current branch and commit.",
		HideVersion: true,
		Writer:      out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "v",
				Usage: "verbose output (equivalent to DEBUG log level)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "read additional configuration from a dotenv `FILE`",
			},
		},
		Commands: []*cli.Command{
			testCommand(p),
			retriggerCommand(p),
		},
		Action: func(c *cli.Context) error {
			if c.Args().Present() {
				return fmt.Errorf("unknown command %q", c.Args().First())
			}
			return p.runTests(c.Context, "")
		},
		Before: p.setup,
		After:  p.teardown,
	}
}

func (p *pipeline) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	p.cfg = cfg

	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if c.Bool("v") {
		logger.SetLevel(zapcore.DebugLevel)
	}

	p.shutdownTracing, err = tracing.InitTracer(c.Context, tracing.Config{
		Endpoint:       cfg.Observability.Endpoint,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Logging.Environment,
	})
	if err != nil {
		// Tracing is optional; the step still runs without it.
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}

	p.recorder = metrics.NewRecorder()
	return nil
}

// teardown flushes telemetry. Its own failures are logged, never returned,
// so the exit status always reflects the step.
func (p *pipeline) teardown(c *cli.Context) error {
	if p.cfg == nil {
		return nil
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if p.cfg.Metrics.PushgatewayURL != "" && p.recorder != nil {
		if err := p.recorder.Push(ctx, p.cfg.Metrics.PushgatewayURL, p.cfg.Metrics.JobName); err != nil {
			logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}

	if p.shutdownTracing != nil {
		if err := p.shutdownTracing(ctx); err != nil {
			logger.Warn("Failed to shut down tracing", zap.Error(err))
		}
	}
	return nil
}
