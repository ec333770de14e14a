package internal_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spacelift-io/acascheduler/internal"
)

type MockEnvironmentStore struct {
	mock.Mock
}

func (m *MockEnvironmentStore) GetEnvironment(ctx context.Context, resourceGroup, name string) (*internal.Environment, error) {
	args := m.Called(ctx, resourceGroup, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*internal.Environment), args.Error(1)
}

func (m *MockEnvironmentStore) UpdateEnvironmentTags(ctx context.Context, resourceGroup string, environment *internal.Environment, tags map[string]string) error {
	args := m.Called(ctx, resourceGroup, environment, tags)
	return args.Error(0)
}

func setupRemediation() (*internal.EnvironmentTagRemediation, *MockEnvironmentStore, *bytes.Buffer) {
	var buf bytes.Buffer
	store := &MockEnvironmentStore{}

	return &internal.EnvironmentTagRemediation{
		Store:         store,
		ResourceGroup: "env-rg",
		Environment:   "dev",
		Logger:        slog.New(slog.NewTextHandler(&buf, nil)),
		Now: func() time.Time {
			return time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)
		},
	}, store, &buf
}

func TestRemediationTag(t *testing.T) {
	name, value := internal.RemediationTag(time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC))

	require.Equal(t, "fix20240131", name)
	require.Equal(t, "2024-01-31", value)
}

func TestRemediationTag_UsesUTC(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)

	name, value := internal.RemediationTag(time.Date(2024, 2, 1, 3, 0, 0, 0, tokyo))

	require.Equal(t, "fix20240131", name)
	require.Equal(t, "2024-01-31", value)
}

func TestMergeTags_KeepsExistingAndDoesNotMutate(t *testing.T) {
	existing := map[string]string{"owner": "platform"}

	merged := internal.MergeTags(existing, "fix20240315", "2024-03-15")

	require.Equal(t, map[string]string{"owner": "platform", "fix20240315": "2024-03-15"}, merged)
	require.Equal(t, map[string]string{"owner": "platform"}, existing)
}

func TestMergeTags_NilExisting(t *testing.T) {
	require.Equal(t, map[string]string{"a": "b"}, internal.MergeTags(nil, "a", "b"))
}

func TestEnvironmentTagRemediation_Failed_WritesTag(t *testing.T) {
	sut, store, _ := setupRemediation()
	defer store.AssertExpectations(t)

	env := &internal.Environment{
		Name:              "dev",
		Location:          "westeurope",
		ProvisioningState: "Failed",
		Tags:              map[string]string{"owner": "platform"},
	}

	store.On("GetEnvironment", mock.Anything, "env-rg", "dev").Return(env, nil)
	store.On("UpdateEnvironmentTags", mock.Anything, "env-rg", env, map[string]string{
		"owner":       "platform",
		"fix20240315": "2024-03-15",
	}).Return(nil).Once()

	require.Equal(t, "environment-tag", sut.Name())
	require.NoError(t, sut.Remediate(t.Context()))
}

func TestEnvironmentTagRemediation_Healthy_NoWrite(t *testing.T) {
	sut, store, buf := setupRemediation()
	defer store.AssertExpectations(t)

	store.On("GetEnvironment", mock.Anything, "env-rg", "dev").Return(&internal.Environment{
		Name:              "dev",
		ProvisioningState: "Succeeded",
	}, nil)

	require.NoError(t, sut.Remediate(t.Context()))
	store.AssertNotCalled(t, "UpdateEnvironmentTags", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.Contains(t, buf.String(), "no remediation needed")
}

func TestEnvironmentTagRemediation_GetFails(t *testing.T) {
	sut, store, _ := setupRemediation()

	store.On("GetEnvironment", mock.Anything, "env-rg", "dev").Return(nil, errors.New("bacon"))

	err := sut.Remediate(t.Context())
	require.EqualError(t, err, "could not check managed environment state: bacon")
}

func TestEnvironmentTagRemediation_UpdateFails(t *testing.T) {
	sut, store, _ := setupRemediation()

	store.On("GetEnvironment", mock.Anything, "env-rg", "dev").Return(&internal.Environment{
		Name:              "dev",
		ProvisioningState: "failed",
	}, nil)
	store.On("UpdateEnvironmentTags", mock.Anything, "env-rg", mock.Anything, mock.Anything).Return(errors.New("bacon"))

	err := sut.Remediate(t.Context())
	require.EqualError(t, err, "could not tag managed environment: bacon")
}
