package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/natcap/invest-pipelines/config"
	"github.com/natcap/invest-pipelines/internal/models"
	"github.com/natcap/invest-pipelines/internal/vcs"
	"github.com/natcap/invest-pipelines/pkg/httpclient"
	"github.com/natcap/invest-pipelines/pkg/logger"
	"github.com/natcap/invest-pipelines/pkg/metrics"
	"github.com/natcap/invest-pipelines/pkg/retry"
	"github.com/natcap/invest-pipelines/pkg/tracing"
	"github.com/natcap/invest-pipelines/pkg/trigger"
)

const appVeyorService = "appveyor"

type RetriggerService struct {
	config     config.AppVeyorConfig
	source     vcs.Source
	httpClient httpclient.Client
	recorder   *metrics.Recorder
	out        io.Writer
}

// NewRetriggerService creates the retrigger step. Status lines are written
// to out; recorder may be nil.
func NewRetriggerService(
	cfg config.AppVeyorConfig,
	source vcs.Source,
	httpClient httpclient.Client,
	recorder *metrics.Recorder,
	out io.Writer,
) RetriggerServiceInterface {
	return &RetriggerService{
		config:     cfg,
		source:     source,
		httpClient: httpClient,
		recorder:   recorder,
		out:        out,
	}
}

// BuildRequest assembles the trigger body from configuration and the
// working copy. Empty values are passed through unchanged.
func (s *RetriggerService) BuildRequest(ctx context.Context) (*models.BuildRequest, error) {
	branch, err := s.source.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}

	commit, err := s.source.CurrentCommit(ctx)
	if err != nil {
		return nil, err
	}

	return &models.BuildRequest{
		AccountName: s.config.AccountName,
		ProjectSlug: s.config.ProjectSlug,
		Branch:      branch,
		CommitID:    commit,
	}, nil
}

// Retrigger starts a new build on the provider. Every call issues a new
// request; a VCS failure aborts before anything is sent.
func (s *RetriggerService) Retrigger(ctx context.Context) (*models.BuildResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "step.retrigger",
		attribute.String("appveyor.account", s.config.AccountName),
		attribute.String("appveyor.project", s.config.ProjectSlug))
	start := time.Now()

	build, err := s.retrigger(ctx)

	finishStep(s.recorder, models.StepRetrigger, start, err)
	tracing.EndSpan(span, err)

	return build, err
}

func (s *RetriggerService) retrigger(ctx context.Context) (*models.BuildResponse, error) {
	req, err := s.BuildRequest(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Triggering AppVeyor build",
		zap.String("account", req.AccountName),
		zap.String("project", req.ProjectSlug),
		zap.String("branch", req.Branch),
		zap.String("commit", req.CommitID))

	if s.config.APIKey == "" {
		logger.Warn("APPVEYOR_API_KEY is empty, the provider will reject the request")
	}

	resp, err := retry.DoWithResult(ctx, retry.TriggerConfig(s.config.MaxRetries), "appveyor.trigger",
		func() (*trigger.Response, error) {
			resp, err := trigger.Call(ctx, s.httpClient, trigger.Request{
				Service: appVeyorService,
				URL:     s.config.APIURL,
				Token:   s.config.APIKey,
				Body:    req,
			})
			s.observeTrigger(resp)
			return resp, err
		})
	if err != nil {
		return nil, err
	}

	build := decodeBuild(resp.Body)

	fmt.Fprintf(s.out, "Triggered AppVeyor build for %s at %s\n", req.Branch, req.CommitID)
	fmt.Fprintf(s.out, "Check build status at %s\n", StatusURL(s.config.StatusBaseURL, req))

	return build, nil
}

// DryRun prints the body Retrigger would send and sends nothing.
func (s *RetriggerService) DryRun(ctx context.Context) error {
	req, err := s.BuildRequest(ctx)
	if err != nil {
		return err
	}

	payload, err := trigger.Encode(req)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "POST %s\n%s\n", s.config.APIURL, payload)
	return nil
}

func (s *RetriggerService) observeTrigger(resp *trigger.Response) {
	if s.recorder == nil {
		return
	}
	if resp == nil {
		s.recorder.ObserveTrigger(0)
		return
	}
	s.recorder.ObserveTrigger(resp.StatusCode)
}

// decodeBuild extracts what it can from the provider's reply. An
// unexpected body is logged and otherwise ignored.
func decodeBuild(body []byte) *models.BuildResponse {
	build := &models.BuildResponse{}
	if len(body) == 0 {
		return build
	}
	if err := json.Unmarshal(body, build); err != nil {
		logger.Debug("Could not decode build response", zap.Error(err))
		return build
	}
	if build.BuildID != 0 {
		logger.Info("AppVeyor build queued",
			zap.Int("build_id", build.BuildID),
			zap.Int("build_number", build.BuildNumber),
			zap.String("version", build.Version),
			zap.String("status", build.Status))
	}
	return build
}

// StatusURL returns the provider page listing builds of the request's branch.
func StatusURL(base string, req *models.BuildRequest) string {
	return fmt.Sprintf("%s/%s/%s/branch/%s",
		base,
		url.PathEscape(req.AccountName),
		url.PathEscape(req.ProjectSlug),
		url.PathEscape(req.Branch))
}
