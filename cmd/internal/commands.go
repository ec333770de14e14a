package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/spacelift-io/acascheduler/internal"
	"github.com/spacelift-io/acascheduler/internal/tracing"
)

// ErrBatchFailed is returned by the start and stop commands when at least
// one container app could not be processed.
var ErrBatchFailed = errors.New("one or more container apps failed")

type commonFlags struct {
	subscriptionID string
	resourceGroup  string
	environment    string
	logDir         string
	logFormat      string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subscriptionID, "subscription", "", "Azure subscription ID (env AZURE_SUBSCRIPTION_ID)")
	cmd.Flags().StringVarP(&f.resourceGroup, "resource-group", "g", "", "Resource group containing the container apps (env CONTAINERAPPS_RESOURCE_GROUP)")
	cmd.Flags().StringVarP(&f.environment, "environment", "e", "", "Name of the managed environment (env CONTAINERAPPS_ENVIRONMENT)")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "Directory for run log files (env LOG_DIR)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format: text or json (env LOG_FORMAT)")
}

func (f *commonFlags) overrides() map[string]string {
	return map[string]string{
		"AZURE_SUBSCRIPTION_ID":        f.subscriptionID,
		"CONTAINERAPPS_RESOURCE_GROUP": f.resourceGroup,
		"CONTAINERAPPS_ENVIRONMENT":    f.environment,
		"LOG_DIR":                      f.logDir,
		"LOG_FORMAT":                   f.logFormat,
	}
}

// NewRootCommand returns the command-line interface of the scheduler.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "acascheduler",
		Short: "Start and stop the Azure Container Apps of an environment",
		Long: `acascheduler starts or stops every container app of a managed environment,
one app at a time, and writes a timestamped log file for each run.

It exits with status 1 when any app could not be processed.`,
		SilenceUsage: true,
	}

	root.AddCommand(newLifecycleCommand(internal.ActionStart))
	root.AddCommand(newLifecycleCommand(internal.ActionStop))
	root.AddCommand(newMemoryCommand())

	return root
}

func newLifecycleCommand(action internal.Action) *cobra.Command {
	var flags commonFlags
	var environmentResourceGroup string
	var noRemediation bool

	cmd := &cobra.Command{
		Use:   action.Verb(),
		Short: fmt.Sprintf("%s every container app of the environment", action),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := flags.overrides()
			command := internal.CommandStart

			if action == internal.ActionStop {
				command = internal.CommandStop
				overrides["CONTAINERAPPS_ENVIRONMENT_RESOURCE_GROUP"] = environmentResourceGroup
				if noRemediation {
					overrides["DISABLE_ENVIRONMENT_REMEDIATION"] = "true"
				}
			}

			var cfg internal.RuntimeConfig
			if err := cfg.Parse(command, overrides); err != nil {
				return fmt.Errorf("could not parse configuration: %w", err)
			}

			shutdown := setupTracing(cmd.Context(), &cfg, cmd.ErrOrStderr())
			defer shutdown()

			report, err := RunLifecycle(cmd.Context(), cmd.OutOrStdout(), &cfg, action)
			if err != nil {
				return err
			}

			if report.ExitCode() != 0 {
				return fmt.Errorf("%w: %d of %d", ErrBatchFailed, report.Failed, report.Total)
			}

			return nil
		},
	}

	flags.register(cmd)

	if action == internal.ActionStop {
		cmd.Flags().StringVar(&environmentResourceGroup, "environment-resource-group", "", "Resource group owning the managed environment (env CONTAINERAPPS_ENVIRONMENT_RESOURCE_GROUP)")
		cmd.Flags().BoolVar(&noRemediation, "no-remediation", false, "Do not tag the managed environment when it is in a failed state")
	}

	return cmd
}

func newMemoryCommand() *cobra.Command {
	var flags commonFlags
	var output string
	var withUsage bool

	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Estimate the memory reserved by the container apps of the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg internal.RuntimeConfig
			if err := cfg.Parse(internal.CommandMemory, flags.overrides()); err != nil {
				return fmt.Errorf("could not parse configuration: %w", err)
			}

			shutdown := setupTracing(cmd.Context(), &cfg, cmd.ErrOrStderr())
			defer shutdown()

			sink, err := internal.OpenLogSink(cfg.LogDir, "Memory", time.Now(), cmd.ErrOrStderr(), cfg.LogFormat)
			if err != nil {
				return err
			}
			defer sink.Close()

			report, err := EstimateMemory(cmd.Context(), sink.Logger(), &cfg, withUsage)
			if err != nil {
				sink.Logger().Error("could not estimate memory reservation", "error", err)
				return err
			}

			return WriteMemoryReport(cmd.OutOrStdout(), report, output)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&withUsage, "with-usage", false, "Include the average memory working set of the last hour from Azure Monitor")

	return cmd
}

// WriteMemoryReport renders the report in the requested format.
func WriteMemoryReport(w io.Writer, report *internal.MemoryReport, format string) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(report)
	case "table", "":
		return writeMemoryTable(w, report)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeMemoryTable(w io.Writer, report *internal.MemoryReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "APP\tCPU/REPLICA\tMEMORY/REPLICA (GiB)\tREPLICAS\tRESERVED MIN (GiB)\tRESERVED MAX (GiB)\tUSAGE (GiB)")

	for _, app := range report.Apps {
		usage := "-"
		if app.UsageBytes != nil {
			usage = fmt.Sprintf("%.2f", *app.UsageBytes/(1<<30))
		}

		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%d-%d\t%.2f\t%.2f\t%s\n",
			app.Name,
			app.PerReplicaCPU,
			internal.BytesToGiB(app.PerReplicaBytes),
			app.MinReplicas,
			app.MaxReplicas,
			internal.BytesToGiB(app.ReservedMinBytes),
			internal.BytesToGiB(app.ReservedMaxBytes),
			usage,
		)
	}

	fmt.Fprintf(tw, "TOTAL (%d apps)\t%.2f\t%.2f\t\t%.2f\t%.2f\t\n",
		len(report.Apps),
		report.PerReplicaCPU,
		internal.BytesToGiB(report.PerReplicaBytes),
		internal.BytesToGiB(report.ReservedMinBytes),
		internal.BytesToGiB(report.ReservedMaxBytes),
	)

	if err := tw.Flush(); err != nil {
		return err
	}

	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	return nil
}

// setupTracing installs the tracer provider for a command run and returns
// the function flushing it.
func setupTracing(ctx context.Context, cfg *internal.RuntimeConfig, w io.Writer) func() {
	logger := slog.New(internal.NewLogHandler(w, cfg.LogFormat))

	var exportTo io.Writer
	if cfg.TracingStdout {
		exportTo = w
	}

	tp, err := tracing.InitTracer(ctx, logger, exportTo)
	if err != nil {
		logger.Warn("could not initialize tracing", "error", err)
		return func() {}
	}

	return func() {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("error shutting down tracer provider", "error", err)
		}
	}
}
