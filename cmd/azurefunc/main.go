package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cmdinternal "github.com/spacelift-io/acascheduler/cmd/internal"
	"github.com/spacelift-io/acascheduler/internal"
	"github.com/spacelift-io/acascheduler/internal/tracing"
)

// Azure Functions custom handler for the scheduler.
// This implements the Azure Functions custom handler protocol, which expects
// an HTTP server listening on the port specified by FUNCTIONS_CUSTOMHANDLER_PORT.
//
// Each timer trigger (StartTimer, StopTimer) is delivered as a POST request
// to /{functionName} with invocation metadata in the request body.

// migrateDeprecatedEnvVars checks for deprecated environment variable names
// and copies their values to the new names, logging deprecation warnings.
func migrateDeprecatedEnvVars(logger *slog.Logger) {
	deprecatedVars := []struct {
		oldName string
		newName string
	}{
		{"RESOURCE_GROUP", "CONTAINERAPPS_RESOURCE_GROUP"},
		{"ENVIRONMENT_NAME", "CONTAINERAPPS_ENVIRONMENT"},
		{"ENVIRONMENT_RESOURCE_GROUP", "CONTAINERAPPS_ENVIRONMENT_RESOURCE_GROUP"},
	}

	for _, v := range deprecatedVars {
		oldVal := os.Getenv(v.oldName)
		if oldVal == "" {
			continue
		}

		newVal := os.Getenv(v.newName)
		if newVal == "" {
			os.Setenv(v.newName, oldVal)
			logger.Warn("deprecated environment variable used",
				"old", v.oldName,
				"new", v.newName,
				"action", "Please update to use the new variable name")
		} else {
			logger.Warn("deprecated environment variable ignored",
				"old", v.oldName,
				"new", v.newName,
				"reason", "new variable is already set")
		}
	}
}

// The custom handler writes JSON to stdout, so run logs use the same format
// whatever LOG_FORMAT says.
var functionOverrides = map[string]string{"LOG_FORMAT": "json"}

// runLifecycle is the batch entry point used by the timer handlers.
var runLifecycle = cmdinternal.RunLifecycle

func loadConfigs() (startCfg, stopCfg internal.RuntimeConfig, err error) {
	if err = startCfg.Parse(internal.CommandStart, functionOverrides); err != nil {
		return startCfg, stopCfg, fmt.Errorf("could not parse start configuration: %w", err)
	}
	if err = stopCfg.Parse(internal.CommandStop, functionOverrides); err != nil {
		return startCfg, stopCfg, fmt.Errorf("could not parse stop configuration: %w", err)
	}
	return startCfg, stopCfg, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	migrateDeprecatedEnvVars(logger)

	// Parse config at startup - fail fast on misconfiguration
	startCfg, stopCfg, err := loadConfigs()
	if err != nil {
		logger.Error("failed to parse configuration", "error", err)
		os.Exit(1)
	}

	// Create a context that listens for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var traceOutput io.Writer
	if startCfg.TracingStdout {
		traceOutput = os.Stdout
	}

	tp, err := tracing.InitTracer(ctx, logger, traceOutput)
	if err != nil {
		logger.Error("could not initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("error shutting down tracer provider", "error", err)
		}
	}()

	port := os.Getenv("FUNCTIONS_CUSTOMHANDLER_PORT")
	if port == "" {
		port = "8080"
	}

	mux := http.NewServeMux()

	configs := map[string]*internal.RuntimeConfig{
		"StartTimer": &startCfg,
		"StopTimer":  &stopCfg,
	}

	for function, cfg := range configs {
		action, err := internal.ParseAction(strings.TrimSuffix(function, "Timer"))
		if err != nil {
			logger.Error("invalid function name", "function", function, "error", err)
			os.Exit(1)
		}

		mux.HandleFunc("/"+function, func(w http.ResponseWriter, r *http.Request) {
			handleLifecycle(w, r, logger, cfg, action)
		})
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Container Apps Scheduler Azure Function"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		// Propagate cancellation context to all requests
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting Azure Functions custom handler", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, starting graceful shutdown")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown due to timeout", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}

func handleLifecycle(w http.ResponseWriter, r *http.Request, logger *slog.Logger, cfg *internal.RuntimeConfig, action internal.Action) {
	startTime := time.Now()

	invocationID := r.Header.Get("x-azure-functions-invocationid")
	if invocationID != "" {
		logger = logger.With("invocation_id", invocationID)
	}

	logger.Info("Scheduler invoked", "action", string(action))

	report, err := runLifecycle(r.Context(), os.Stdout, cfg, action)

	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		logger.Error("lifecycle run failed", "error", err, "duration", time.Since(startTime))

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"error": err.Error(),
		})
		return
	}

	status := http.StatusOK
	outcome := "success"
	if report.ExitCode() != 0 {
		status = http.StatusInternalServerError
		outcome = "failure"
	}

	logger.Info("Scheduler completed", "action", string(action), "status", outcome, "duration", time.Since(startTime))

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status":     outcome,
		"action":     string(action),
		"total":      report.Total,
		"succeeded":  report.Succeeded,
		"failed":     report.Failed,
		"failedApps": report.FailedResources(),
		"duration":   time.Since(startTime).String(),
	})
}
