package internal

import (
	"context"
	"fmt"
	"log/slog"
)

// BatchObserver receives the report of every completed batch, e.g. to
// publish metrics. Observer errors are logged and otherwise ignored.
type BatchObserver interface {
	Observe(ctx context.Context, report *BatchReport) error
}

// Workflow is one scheduled start or stop run: it checks its preconditions,
// discovers the apps of the environment, runs the batch and finally applies
// the post-stop remediations.
type Workflow struct {
	Provisioner  DependencyProvisioner
	Auth         AuthContext
	Discovery    ResourceDiscovery
	Runner       *Runner
	Remediations []Remediation
	Observers    []BatchObserver
	Logger       *slog.Logger
}

// Run returns an error only for precondition failures, in which case no
// lifecycle action has been attempted. Per-app failures are reported in the
// returned BatchReport.
func (w *Workflow) Run(ctx context.Context, action Action, scope, environment string) (*BatchReport, error) {
	logger := w.Logger.With(
		"action", string(action),
		"resource_group", scope,
		"environment", environment,
	)

	// The provider check calls Resource Manager, so the session comes first.
	session, err := w.Auth.Check(ctx)
	if err != nil {
		logger.Error("no active Azure session", "error", err)
		return nil, fmt.Errorf("could not verify Azure session: %w", err)
	}

	logger.Info("authenticated to Azure",
		"tenant_id", session.TenantID,
		"principal", session.Principal,
		"expires_on", session.ExpiresOn,
	)

	if err := w.Provisioner.Ensure(ctx, ContainerAppsNamespace); err != nil {
		logger.Error("could not ensure dependencies", "error", err)
		return nil, fmt.Errorf("could not ensure dependencies: %w", err)
	}

	logger.Info("discovering container apps", "phase", PhaseDiscovering)

	resources, err := w.Discovery.Discover(ctx, scope, environment)
	if err != nil {
		logger.Error("could not discover container apps", "error", err)
		return nil, fmt.Errorf("could not discover container apps: %w", err)
	}

	report := w.Runner.Run(ctx, scope, action, resources)

	if action == ActionStop {
		for _, remediation := range w.Remediations {
			if err := remediation.Remediate(ctx); err != nil {
				logger.Error("remediation failed", "remediation", remediation.Name(), "error", err)
			}
		}
	}

	for _, observer := range w.Observers {
		if err := observer.Observe(ctx, report); err != nil {
			logger.Warn("could not publish batch report", "error", err)
		}
	}

	return report, nil
}
