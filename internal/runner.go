package internal

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Lifecycle applies a single action to exactly one container app. The call
// blocks until the remote operation has completed or failed.
type Lifecycle interface {
	Apply(ctx context.Context, action Action, resourceName, scope string) error
}

// Runner applies one action to a batch of container apps, one at a time.
// A failure on one app is recorded and never stops the remaining attempts.
type Runner struct {
	lifecycle Lifecycle
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewRunner(lifecycle Lifecycle, logger *slog.Logger) *Runner {
	return &Runner{
		lifecycle: lifecycle,
		logger:    logger,
		tracer:    otel.Tracer("github.com/spacelift-io/acascheduler/internal/runner"),
	}
}

// Run attempts the action on every resource in input order and returns the
// aggregated report. Run keeps no state between calls.
func (r *Runner) Run(ctx context.Context, scope string, action Action, resources []Resource) *BatchReport {
	ctx, span := r.tracer.Start(ctx, "batch."+action.Verb())
	defer span.End()

	logger := r.logger.With(
		"action", string(action),
		"resource_group", scope,
	)

	report := &BatchReport{Action: action, Scope: scope}

	if len(resources) == 0 {
		report.Empty = true
		logger.Info("no container apps found, nothing to do", "phase", PhaseEmpty)
		logger.Info("batch finished", "phase", PhaseDone, "total", 0, "succeeded", 0, "failed", 0)
		return report
	}

	logger.Info("processing container apps", "phase", PhaseProcessing, "count", len(resources))

	for _, resource := range resources {
		report.add(r.attempt(ctx, logger, scope, action, resource))
	}

	span.SetAttributes(
		attribute.Int("total", report.Total),
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("failed", report.Failed),
	)

	if !report.Success() {
		span.SetStatus(codes.Error, "one or more container apps failed")
	}

	logger.Info("batch finished",
		"phase", PhaseDone,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)

	return report
}

func (r *Runner) attempt(ctx context.Context, logger *slog.Logger, scope string, action Action, resource Resource) OutcomeRecord {
	ctx, span := r.tracer.Start(ctx, "containerapp."+action.Verb())
	defer span.End()

	span.SetAttributes(attribute.String("container_app", resource.Name))

	logger = logger.With("container_app", resource.Name)
	logger.Info("attempting lifecycle action")

	startedAt := time.Now()
	err := r.lifecycle.Apply(ctx, action, resource.Name, scope)

	record := OutcomeRecord{
		Resource: resource.Name,
		Action:   action,
		Duration: time.Since(startedAt),
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "")

		logger.Error("lifecycle action failed", "error", err)

		record.Status = OutcomeFailed
		record.Error = err.Error()
		return record
	}

	logger.Info("lifecycle action succeeded", "duration", record.Duration)

	record.Status = OutcomeSucceeded
	return record
}
