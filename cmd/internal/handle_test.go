package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacelift-io/acascheduler/internal"
)

type handlerFunc func(ctx context.Context, logger *slog.Logger, cfg *internal.RuntimeConfig, action internal.Action) (*internal.BatchReport, error)

func stubHandle(t *testing.T, fn handlerFunc) {
	t.Helper()

	original := handleBatch
	handleBatch = fn
	t.Cleanup(func() { handleBatch = original })
}

func failedBatch(action internal.Action) *internal.BatchReport {
	return &internal.BatchReport{
		Action:    action,
		Scope:     "rg",
		Total:     2,
		Succeeded: 1,
		Failed:    1,
		Records: []internal.OutcomeRecord{
			{Resource: "api", Action: action, Status: internal.OutcomeSucceeded},
			{Resource: "worker", Action: action, Status: internal.OutcomeFailed, Error: "bacon"},
		},
	}
}

func readRunLog(t *testing.T, dir string, action internal.Action) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, string(action)+"_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	return string(data)
}

func lifecycleConfig(t *testing.T) *internal.RuntimeConfig {
	return &internal.RuntimeConfig{
		AzureSubscriptionID: "sub",
		ResourceGroup:       "rg",
		Environment:         "dev",
		LogDir:              t.TempDir(),
		LogFormat:           "json",
	}
}

func TestRunLifecycle_WritesSummaryToLogFile(t *testing.T) {
	cfg := lifecycleConfig(t)

	stubHandle(t, func(_ context.Context, logger *slog.Logger, _ *internal.RuntimeConfig, action internal.Action) (*internal.BatchReport, error) {
		logger.Info("stopping container app", "app", "worker")
		return failedBatch(action), nil
	})

	var console bytes.Buffer

	report, err := RunLifecycle(t.Context(), &console, cfg, internal.ActionStop)
	require.NoError(t, err)
	require.Equal(t, 1, report.ExitCode())

	logFile := readRunLog(t, cfg.LogDir, internal.ActionStop)

	require.Contains(t, logFile, `"msg":"lifecycle run started"`)
	require.Contains(t, logFile, `"msg":"stopping container app"`)
	require.Contains(t, logFile, `"msg":"lifecycle run summary"`)
	require.Contains(t, logFile, `"total":2`)
	require.Contains(t, logFile, `"failed":1`)
	require.Contains(t, logFile, `"failed_apps":["worker"]`)
	require.Contains(t, logFile, `"run_id":`)
	require.Equal(t, logFile, console.String())
}

func TestRunLifecycle_FatalError_NoSummary(t *testing.T) {
	cfg := lifecycleConfig(t)

	stubHandle(t, func(_ context.Context, logger *slog.Logger, _ *internal.RuntimeConfig, _ internal.Action) (*internal.BatchReport, error) {
		logger.Error("no active Azure session", "error", "bacon")
		return nil, internal.ErrNoSession
	})

	report, err := RunLifecycle(t.Context(), io.Discard, cfg, internal.ActionStart)
	require.ErrorIs(t, err, internal.ErrNoSession)
	require.Nil(t, report)

	logFile := readRunLog(t, cfg.LogDir, internal.ActionStart)

	require.Contains(t, logFile, `"msg":"lifecycle run started"`)
	require.Contains(t, logFile, `"msg":"no active Azure session"`)
	require.NotContains(t, logFile, "lifecycle run summary")
}

func TestRunLifecycle_LogDirUnusable_BatchNotRun(t *testing.T) {
	cfg := lifecycleConfig(t)

	blocker := filepath.Join(cfg.LogDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.LogDir = filepath.Join(blocker, "logs")

	stubHandle(t, func(context.Context, *slog.Logger, *internal.RuntimeConfig, internal.Action) (*internal.BatchReport, error) {
		t.Fatal("batch must not run without a log file")
		return nil, nil
	})

	_, err := RunLifecycle(t.Context(), io.Discard, cfg, internal.ActionStart)
	require.ErrorContains(t, err, "could not create log directory")
}

func executeLifecycleCommand(t *testing.T, action internal.Action) error {
	t.Helper()

	t.Setenv("LOG_ARCHIVE_ACCOUNT_URL", "")
	t.Setenv("TRACING_STDOUT", "false")

	root := NewRootCommand()
	root.SetArgs([]string{
		action.Verb(),
		"--subscription", "sub",
		"--resource-group", "rg",
		"--environment", "dev",
		"--log-dir", t.TempDir(),
		"--log-format", "json",
	})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	return root.ExecuteContext(t.Context())
}

func TestLifecycleCommand_FailedBatch_ReturnsErrBatchFailed(t *testing.T) {
	stubHandle(t, func(_ context.Context, _ *slog.Logger, _ *internal.RuntimeConfig, action internal.Action) (*internal.BatchReport, error) {
		return failedBatch(action), nil
	})

	err := executeLifecycleCommand(t, internal.ActionStart)
	require.ErrorIs(t, err, ErrBatchFailed)
	require.EqualError(t, err, "one or more container apps failed: 1 of 2")
}

func TestLifecycleCommand_AllSucceeded(t *testing.T) {
	stubHandle(t, func(_ context.Context, _ *slog.Logger, _ *internal.RuntimeConfig, action internal.Action) (*internal.BatchReport, error) {
		return &internal.BatchReport{Action: action, Scope: "rg", Total: 1, Succeeded: 1}, nil
	})

	require.NoError(t, executeLifecycleCommand(t, internal.ActionStart))
}

func TestLifecycleCommand_FatalError_IsReturned(t *testing.T) {
	stubHandle(t, func(context.Context, *slog.Logger, *internal.RuntimeConfig, internal.Action) (*internal.BatchReport, error) {
		return nil, errors.New("bacon")
	})

	err := executeLifecycleCommand(t, internal.ActionStart)
	require.EqualError(t, err, "bacon")
	require.NotErrorIs(t, err, ErrBatchFailed)
}
