package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/natcap/invest-pipelines/internal/services"
	"github.com/natcap/invest-pipelines/internal/vcs"
	"github.com/natcap/invest-pipelines/pkg/httpclient"
)

func testCommand(p *pipeline) *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "installs the test runner and runs it against the target script (default step)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Usage: "script `PATH` to test (overrides TEST_TARGET)",
			},
		},
		Action: func(c *cli.Context) error {
			return p.runTests(c.Context, c.String("target"))
		},
	}
}

func retriggerCommand(p *pipeline) *cli.Command {
	return &cli.Command{
		Name:  "retrigger",
		Usage: "triggers an AppVeyor build for the current branch and commit",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "repo",
				Usage: "working copy `DIR` to read branch and commit from (overrides GIT_REPO_DIR)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "print the request body instead of sending it",
			},
		},
		Action: func(c *cli.Context) error {
			repoDir := p.cfg.Git.RepoDir
			if dir := c.String("repo"); dir != "" {
				repoDir = dir
			}

			svc := services.NewRetriggerService(
				p.cfg.AppVeyor,
				vcs.NewRepository(repoDir),
				httpclient.NewStandardClient(p.cfg.AppVeyor.Timeout),
				p.recorder,
				p.out,
			)

			if c.Bool("dry-run") {
				return svc.DryRun(c.Context)
			}
			_, err := svc.Retrigger(c.Context)
			return err
		},
	}
}

func (p *pipeline) runTests(ctx context.Context, target string) error {
	runner := services.NewExecRunner()
	runner.Stdout = p.out

	svc := services.NewTestStepService(p.cfg.TestStep, runner, p.recorder)
	_, err := svc.RunTests(ctx, target)
	return err
}
