package internal_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spacelift-io/acascheduler/internal"
)

type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) Apply(ctx context.Context, action internal.Action, resourceName, scope string) error {
	args := m.Called(ctx, action, resourceName, scope)
	return args.Error(0)
}

func resources(names ...string) []internal.Resource {
	out := make([]internal.Resource, 0, len(names))
	for _, name := range names {
		out = append(out, internal.Resource{Name: name, ResourceGroup: "rg"})
	}
	return out
}

func newTestRunner(lifecycle internal.Lifecycle) (*internal.Runner, *bytes.Buffer) {
	var buf bytes.Buffer
	return internal.NewRunner(lifecycle, slog.New(slog.NewTextHandler(&buf, nil))), &buf
}

func TestRunnerEmptyInput(t *testing.T) {
	lifecycle := new(MockLifecycle)
	defer lifecycle.AssertExpectations(t)

	sut, buf := newTestRunner(lifecycle)

	report := sut.Run(t.Context(), "rg", internal.ActionStart, nil)

	require.True(t, report.Empty)
	require.Zero(t, report.Total)
	require.Empty(t, report.Records)
	require.True(t, report.Success())
	require.Equal(t, 0, report.ExitCode())
	require.Contains(t, buf.String(), "no container apps found, nothing to do")
	lifecycle.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunnerAllSucceed(t *testing.T) {
	lifecycle := new(MockLifecycle)
	defer lifecycle.AssertExpectations(t)

	lifecycle.On("Apply", mock.Anything, internal.ActionStop, mock.Anything, "rg").Return(nil).Times(3)

	sut, _ := newTestRunner(lifecycle)

	report := sut.Run(t.Context(), "rg", internal.ActionStop, resources("a", "b", "c"))

	require.False(t, report.Empty)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 3, report.Succeeded)
	require.Zero(t, report.Failed)
	require.Equal(t, 0, report.ExitCode())
	require.Empty(t, report.FailedResources())
}

func TestRunnerFailureDoesNotStopBatch(t *testing.T) {
	lifecycle := new(MockLifecycle)
	defer lifecycle.AssertExpectations(t)

	var order []string
	record := func(args mock.Arguments) { order = append(order, args.String(2)) }

	lifecycle.On("Apply", mock.Anything, internal.ActionStart, "a", "rg").Return(nil).Once().Run(record)
	lifecycle.On("Apply", mock.Anything, internal.ActionStart, "b", "rg").Return(errors.New("bacon")).Once().Run(record)
	lifecycle.On("Apply", mock.Anything, internal.ActionStart, "c", "rg").Return(nil).Once().Run(record)

	sut, buf := newTestRunner(lifecycle)

	report := sut.Run(t.Context(), "rg", internal.ActionStart, resources("a", "b", "c"))

	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Equal(t, 3, report.Total)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.False(t, report.Success())
	require.Equal(t, 1, report.ExitCode())
	require.Equal(t, []string{"b"}, report.FailedResources())

	require.Len(t, report.Records, 3)
	require.Equal(t, "a", report.Records[0].Resource)
	require.Equal(t, internal.OutcomeSucceeded, report.Records[0].Status)
	require.Equal(t, "b", report.Records[1].Resource)
	require.Equal(t, internal.OutcomeFailed, report.Records[1].Status)
	require.Equal(t, "bacon", report.Records[1].Error)
	require.Equal(t, internal.ActionStart, report.Records[1].Action)
	require.Equal(t, "c", report.Records[2].Resource)

	require.Contains(t, buf.String(), "lifecycle action failed")
}

func TestRunnerSingleFailureFailsRun(t *testing.T) {
	names := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10"}

	lifecycle := new(MockLifecycle)
	defer lifecycle.AssertExpectations(t)

	lifecycle.On("Apply", mock.Anything, internal.ActionStop, "a7", "rg").Return(errors.New("bacon")).Once()
	lifecycle.On("Apply", mock.Anything, internal.ActionStop, mock.Anything, "rg").Return(nil).Times(9)

	sut, _ := newTestRunner(lifecycle)

	report := sut.Run(t.Context(), "rg", internal.ActionStop, resources(names...))

	require.Equal(t, 10, report.Total)
	require.Equal(t, 9, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.ExitCode())
	require.Equal(t, []string{"a7"}, report.FailedResources())
}

func TestRunnerQuotaExceeded(t *testing.T) {
	lifecycle := new(MockLifecycle)
	defer lifecycle.AssertExpectations(t)

	lifecycle.On("Apply", mock.Anything, internal.ActionStart, "AppA", "rg").Return(nil).Once()
	lifecycle.On("Apply", mock.Anything, internal.ActionStart, "AppB", "rg").Return(errors.New("quota exceeded")).Once()

	sut, _ := newTestRunner(lifecycle)

	report := sut.Run(t.Context(), "rg", internal.ActionStart, resources("AppA", "AppB"))

	require.Equal(t, 2, report.Total)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, "quota exceeded", report.Records[1].Error)
	require.Equal(t, 1, report.ExitCode())
}

func TestRunnerIsReentrant(t *testing.T) {
	lifecycle := new(MockLifecycle)
	defer lifecycle.AssertExpectations(t)

	lifecycle.On("Apply", mock.Anything, internal.ActionStart, "a", "rg").Return(errors.New("bacon")).Once()
	lifecycle.On("Apply", mock.Anything, internal.ActionStart, "a", "rg").Return(nil).Once()

	sut, _ := newTestRunner(lifecycle)

	first := sut.Run(t.Context(), "rg", internal.ActionStart, resources("a"))
	second := sut.Run(t.Context(), "rg", internal.ActionStart, resources("a"))

	require.Equal(t, 1, first.Failed)
	require.Equal(t, 1, second.Total)
	require.Equal(t, 1, second.Succeeded)
	require.Zero(t, second.Failed)
}

type lifecycleFunc func(ctx context.Context, action internal.Action, resourceName, scope string) error

func (f lifecycleFunc) Apply(ctx context.Context, action internal.Action, resourceName, scope string) error {
	return f(ctx, action, resourceName, scope)
}

func TestRunnerTotalsAddUp(t *testing.T) {
	failing := map[string]bool{"b": true, "d": true, "e": true}

	sut, _ := newTestRunner(lifecycleFunc(func(_ context.Context, _ internal.Action, name, _ string) error {
		if failing[name] {
			return errors.New("bacon")
		}
		return nil
	}))

	report := sut.Run(t.Context(), "rg", internal.ActionStop, resources("a", "b", "c", "d", "e", "f"))

	require.Equal(t, 6, report.Total)
	require.Equal(t, report.Total, report.Succeeded+report.Failed)
	require.Len(t, report.Records, report.Total)
	require.Equal(t, 3, report.Failed)
	require.Equal(t, []string{"b", "d", "e"}, report.FailedResources())
}
