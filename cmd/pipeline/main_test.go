package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/natcap/invest-pipelines/pkg/errors"
)

func commitRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte("# invest\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("setup.py")
	require.NoError(t, err)
	hash, err := wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "CI", Email: "ci@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir, hash.String()
}

func setAppVeyorEnv(t *testing.T, apiURL string) {
	t.Setenv("APPVEYOR_API_KEY", "secret-token")
	t.Setenv("APPVEYOR_ACC_NAME", "acme")
	t.Setenv("APPVEYOR_PROJ_SLUG", "widget")
	t.Setenv("APPVEYOR_API_URL", apiURL)
}

func TestRetrigger_DryRun(t *testing.T) {
	dir, commit := commitRepo(t)
	setAppVeyorEnv(t, "https://ci.appveyor.com/api/builds")
	var out bytes.Buffer

	err := newApp(&out).Run([]string{"pipeline", "retrigger", "--repo", dir, "--dry-run"})
	require.NoError(t, err)

	assert.Equal(t,
		"POST https://ci.appveyor.com/api/builds\n"+
			`{"accountName":"acme","projectSlug":"widget","branch":"master","commitID":"`+commit+`"}`+"\n",
		out.String())
}

func TestRetrigger_SendsBuildRequest(t *testing.T) {
	dir, commit := commitRepo(t)

	var (
		body  []byte
		authz string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		authz = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	setAppVeyorEnv(t, srv.URL)
	var out bytes.Buffer

	err := newApp(&out).Run([]string{"pipeline", "retrigger", "--repo", dir})
	require.NoError(t, err)

	assert.JSONEq(t,
		`{"accountName":"acme","projectSlug":"widget","branch":"master","commitID":"`+commit+`"}`,
		string(body))
	assert.Equal(t, "Bearer secret-token", authz)
	assert.Equal(t,
		"Triggered AppVeyor build for master at "+commit+"\n"+
			"Check build status at https://ci.appveyor.com/project/acme/widget/branch/master\n",
		out.String())
}

func TestRetrigger_OutsideRepository(t *testing.T) {
	setAppVeyorEnv(t, "http://127.0.0.1:1")

	err := newApp(io.Discard).Run([]string{"pipeline", "retrigger", "--repo", t.TempDir()})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrRepository))
	assert.Equal(t, 1, apperrors.ExitCode(err))
}

func TestTest_DefaultAction(t *testing.T) {
	t.Setenv("TEST_INSTALL_CMD", "")
	t.Setenv("TEST_RUN_CMD", "echo running")
	t.Setenv("TEST_TARGET", "tests/test_ui_server.py")
	t.Setenv("TEST_WORK_DIR", t.TempDir())
	var out bytes.Buffer

	err := newApp(&out).Run([]string{"pipeline"})
	require.NoError(t, err)
	assert.Equal(t, "running tests/test_ui_server.py\n", out.String())
}

func TestUnknownCommandDoesNotRunTests(t *testing.T) {
	t.Setenv("TEST_INSTALL_CMD", "")
	t.Setenv("TEST_RUN_CMD", "echo running")
	t.Setenv("TEST_WORK_DIR", t.TempDir())
	var out bytes.Buffer

	err := newApp(&out).Run([]string{"pipeline", "retriger"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "retriger"`)
	assert.Equal(t, 1, apperrors.ExitCode(err))
	assert.Empty(t, out.String())
}

func TestTest_FailureExitCode(t *testing.T) {
	t.Setenv("TEST_INSTALL_CMD", "true")
	t.Setenv("TEST_RUN_CMD", "sh -c")
	t.Setenv("TEST_WORK_DIR", t.TempDir())

	err := newApp(io.Discard).Run([]string{"pipeline", "test", "--target", "exit 4"})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrStepFailed))
	assert.Equal(t, 4, apperrors.ExitCode(err))
}

func TestInvalidConfiguration(t *testing.T) {
	t.Setenv("APPVEYOR_TRIGGER_RETRIES", "-3")

	err := newApp(io.Discard).Run([]string{"pipeline", "retrigger", "--dry-run"})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidConfig))
}

func TestMetricsPushedOnExit(t *testing.T) {
	pushed := make(chan string, 1)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushed <- r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	t.Setenv("METRICS_PUSHGATEWAY_URL", gateway.URL)
	t.Setenv("METRICS_JOB_NAME", "invest-ci")
	t.Setenv("TEST_INSTALL_CMD", "")
	t.Setenv("TEST_RUN_CMD", "true")
	t.Setenv("TEST_WORK_DIR", t.TempDir())

	require.NoError(t, newApp(io.Discard).Run([]string{"pipeline", "test"}))

	select {
	case path := <-pushed:
		assert.Equal(t, "/metrics/job/invest-ci", path)
	default:
		t.Fatal("metrics were not pushed")
	}
}
