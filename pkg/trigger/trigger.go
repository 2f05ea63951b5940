package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	apperrors "github.com/natcap/invest-pipelines/pkg/errors"
	"github.com/natcap/invest-pipelines/pkg/httpclient"
	"github.com/natcap/invest-pipelines/pkg/logger"
	"github.com/natcap/invest-pipelines/pkg/tracing"
)

// maxResponseBody caps how much of a reply is read back.
const maxResponseBody = 64 << 10

// Request describes one authenticated JSON trigger call.
type Request struct {
	// Service names the remote side in logs
	Service string
	URL     string
	// Token is sent as "Authorization: Bearer <Token>", even when empty
	Token string
	Body  any
}

// Response is the provider's reply. It is also returned alongside a
// rejection error so callers can inspect the status.
type Response struct {
	StatusCode int
	Body       []byte
}

// Encode returns the JSON body that Call would send.
func Encode(body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger body: %w", err)
	}
	return payload, nil
}

// Call POSTs the request body once and waits for the reply. Any non-2xx
// status is returned as an *errors.HTTPError.
func Call(ctx context.Context, httpClient httpclient.Client, req Request) (*Response, error) {
	payload, err := Encode(req.Body)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "trigger.call",
		attribute.String("trigger.service", req.Service),
		attribute.String("http.url", req.URL))

	resp, err := call(ctx, httpClient, req, payload)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}
	tracing.EndSpan(span, err)

	return resp, err
}

func call(ctx context.Context, httpClient httpclient.Client, req Request, payload []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)

	logger.Debug("Calling trigger URL",
		zap.String("service", req.Service),
		zap.String("url", req.URL))

	start := time.Now()
	httpResp, err := httpClient.Do(httpReq)
	duration := time.Since(start).Seconds()
	if err != nil {
		logger.LogAPICall(req.Service, "trigger", "error", duration,
			zap.String("url", req.URL),
			zap.Error(err))
		return nil, fmt.Errorf("failed to call trigger URL: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		logger.LogAPICall(req.Service, "trigger", "error", duration,
			zap.String("url", req.URL),
			zap.Int("status_code", httpResp.StatusCode))
		return &Response{StatusCode: httpResp.StatusCode, Body: body},
			apperrors.RejectedError(httpResp.StatusCode, body)
	}

	logger.LogAPICall(req.Service, "trigger", "success", duration,
		zap.String("url", req.URL),
		zap.Int("status_code", httpResp.StatusCode))

	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}
