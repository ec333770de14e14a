package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/google/uuid"

	"github.com/spacelift-io/acascheduler/internal"
)

const metricsJob = "acascheduler"

// handleBatch is the batch entry point used by RunLifecycle.
var handleBatch = Handle

func newCredential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		ClientOptions: internal.ClientOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Azure credential: %w", err)
	}
	return cred, nil
}

// Handle runs one start or stop batch against the configured environment.
// The returned error is set only when a precondition failed and no app was
// touched.
func Handle(ctx context.Context, logger *slog.Logger, cfg *internal.RuntimeConfig, action internal.Action) (*internal.BatchReport, error) {
	cred, err := newCredential()
	if err != nil {
		logger.Error("could not create Azure credential", "error", err)
		return nil, err
	}

	controller, err := internal.NewAzureController(ctx, cfg, cred)
	if err != nil {
		logger.Error("could not create Azure controller", "error", err)
		return nil, err
	}

	provisioner, err := internal.NewProvisioner(cfg.AzureSubscriptionID, cred, logger)
	if err != nil {
		logger.Error("could not create resource provider client", "error", err)
		return nil, err
	}

	workflow := &internal.Workflow{
		Provisioner: provisioner,
		Auth:        &internal.SessionChecker{Credential: cred},
		Discovery:   controller,
		Runner:      internal.NewRunner(controller, logger),
		Logger:      logger,
	}

	if action == internal.ActionStop && !cfg.DisableRemediation {
		workflow.Remediations = append(workflow.Remediations, &internal.EnvironmentTagRemediation{
			Store:         controller,
			ResourceGroup: cfg.EnvironmentResourceGroup,
			Environment:   cfg.Environment,
			Logger:        logger,
		})
	}

	if cfg.PushgatewayURL != "" {
		workflow.Observers = append(workflow.Observers, &internal.MetricsPusher{
			URL:         cfg.PushgatewayURL,
			Job:         metricsJob,
			Environment: cfg.Environment,
		})
	}

	return workflow.Run(ctx, action, cfg.ResourceGroup, cfg.Environment)
}

// RunLifecycle runs a batch with its own log file, archiving the file
// afterwards when an archive account is configured.
func RunLifecycle(ctx context.Context, console io.Writer, cfg *internal.RuntimeConfig, action internal.Action) (*internal.BatchReport, error) {
	sink, err := internal.OpenLogSink(cfg.LogDir, string(action), time.Now(), console, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := sink.Logger().With("run_id", runID)
	logger.Info("lifecycle run started", append(cfg.LogAttrs(), "action", string(action), "log_file", sink.Path())...)

	report, runErr := handleBatch(ctx, logger, cfg, action)

	if runErr == nil {
		logger.Info("lifecycle run summary",
			"total", report.Total,
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"failed_apps", report.FailedResources(),
		)
	}

	if err := sink.Close(); err != nil {
		logger.Warn("could not close log file", "error", err)
	}

	if cfg.LogArchiveAccountURL != "" {
		consoleLogger := slog.New(internal.NewLogHandler(console, cfg.LogFormat)).With("run_id", runID)
		archiveLog(ctx, consoleLogger, cfg, sink.Path())
	}

	return report, runErr
}

// archiveLog uploads the closed log file, so logger must not write to it.
func archiveLog(ctx context.Context, logger *slog.Logger, cfg *internal.RuntimeConfig, path string) {
	cred, err := newCredential()
	if err != nil {
		logger.Warn("could not archive log file", "error", err)
		return
	}

	archiver, err := internal.NewLogArchiver(cfg.LogArchiveAccountURL, cfg.LogArchiveContainer, cfg.Environment, cred)
	if err != nil {
		logger.Warn("could not archive log file", "error", err)
		return
	}

	if err := archiver.Archive(ctx, path); err != nil {
		logger.Warn("could not archive log file", "error", err)
		return
	}

	logger.Info("log file archived", "container", cfg.LogArchiveContainer, "blob", archiver.BlobName(path))
}

// EstimateMemory builds the memory reservation report for the configured
// environment.
func EstimateMemory(ctx context.Context, logger *slog.Logger, cfg *internal.RuntimeConfig, withUsage bool) (*internal.MemoryReport, error) {
	cred, err := newCredential()
	if err != nil {
		return nil, err
	}

	session, err := (&internal.SessionChecker{Credential: cred}).Check(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not verify Azure session: %w", err)
	}

	logger.Info("authenticated to Azure", "tenant_id", session.TenantID, "principal", session.Principal)

	controller, err := internal.NewAzureController(ctx, cfg, cred)
	if err != nil {
		return nil, err
	}

	estimator := &internal.MemoryEstimator{
		Apps:   controller,
		Logger: logger,
	}

	if withUsage {
		estimator.Usage = controller
	}

	return estimator.Estimate(ctx, cfg.ResourceGroup, cfg.Environment)
}
