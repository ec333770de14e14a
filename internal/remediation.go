package internal

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"
)

// Remediation is a corrective step run after a batch has completed. Its
// outcome is logged by the caller and never changes the batch result.
type Remediation interface {
	Name() string
	Remediate(ctx context.Context) error
}

// EnvironmentStore reads and tags managed environments.
type EnvironmentStore interface {
	GetEnvironment(ctx context.Context, resourceGroup, name string) (*Environment, error)
	UpdateEnvironmentTags(ctx context.Context, resourceGroup string, environment *Environment, tags map[string]string) error
}

// EnvironmentTagRemediation nudges a managed environment out of the Failed
// provisioning state by writing a date-stamped tag to it. Updating the
// environment makes the platform re-run its provisioning.
type EnvironmentTagRemediation struct {
	Store         EnvironmentStore
	ResourceGroup string
	Environment   string
	Logger        *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (r *EnvironmentTagRemediation) Name() string {
	return "environment-tag"
}

// Remediate tags the environment if, and only if, it is in a failed state.
func (r *EnvironmentTagRemediation) Remediate(ctx context.Context) error {
	logger := r.Logger.With(
		"environment", r.Environment,
		"environment_resource_group", r.ResourceGroup,
	)

	environment, err := r.Store.GetEnvironment(ctx, r.ResourceGroup, r.Environment)
	if err != nil {
		return fmt.Errorf("could not check managed environment state: %w", err)
	}

	logger = logger.With("provisioning_state", environment.ProvisioningState)

	if !environment.Failed() {
		logger.Info("managed environment is healthy, no remediation needed")
		return nil
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	name, value := RemediationTag(now())
	tags := MergeTags(environment.Tags, name, value)

	logger.Warn("managed environment is in a failed state, tagging it", "tag", name, "value", value)

	if err := r.Store.UpdateEnvironmentTags(ctx, r.ResourceGroup, environment, tags); err != nil {
		return fmt.Errorf("could not tag managed environment: %w", err)
	}

	logger.Info("managed environment tagged")

	return nil
}

// RemediationTag returns the tag name and value written to a failed
// environment at the given time, e.g. "fix20240131" and "2024-01-31".
func RemediationTag(at time.Time) (name, value string) {
	at = at.UTC()
	return "fix" + at.Format("20060102"), at.Format("2006-01-02")
}

// MergeTags returns a copy of existing with name set to value. Every other
// tag is kept as-is.
func MergeTags(existing map[string]string, name, value string) map[string]string {
	out := make(map[string]string, len(existing)+1)
	maps.Copy(out, existing)
	out[name] = value
	return out
}
