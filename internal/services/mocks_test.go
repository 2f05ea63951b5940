package services_test

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/natcap/invest-pipelines/pkg/httpclient"
)

// MockSource is a mock implementation of vcs.Source
type MockSource struct {
	mock.Mock
}

func (m *MockSource) CurrentBranch(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSource) CurrentCommit(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockRunner is a mock implementation of services.CommandRunner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	callArgs := m.Called(ctx, dir, name, args)
	return callArgs.Error(0)
}

// recordingClient keeps each request as the service built it, before
// net/http writes it to the wire.
type recordingClient struct {
	next          httpclient.Client
	mu            sync.Mutex
	authorization []string
	bodies        [][]byte
}

func (c *recordingClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		body, err = io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	c.authorization = append(c.authorization, req.Header.Get("Authorization"))
	c.bodies = append(c.bodies, body)
	c.mu.Unlock()

	return c.next.Do(req)
}
