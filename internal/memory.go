package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/api/resource"
)

const (
	bytesPerGiB = 1 << 30

	// Container Apps scale to at most 10 replicas when no maximum is set.
	defaultMaxReplicas int32 = 10
)

// AppLister lists the container apps of a managed environment.
type AppLister interface {
	ListEnvironmentApps(ctx context.Context, resourceGroup, environment string) ([]ContainerApp, error)
}

// UsageReader returns the observed memory working set of an app.
type UsageReader interface {
	MemoryUsage(ctx context.Context, appID string, window time.Duration) (float64, error)
}

// AppMemory is the memory reservation of a single container app.
type AppMemory struct {
	Name             string   `json:"name" yaml:"name"`
	PerReplicaBytes  int64    `json:"perReplicaBytes" yaml:"perReplicaBytes"`
	PerReplicaCPU    float64  `json:"perReplicaCpu" yaml:"perReplicaCpu"`
	MinReplicas      int32    `json:"minReplicas" yaml:"minReplicas"`
	MaxReplicas      int32    `json:"maxReplicas" yaml:"maxReplicas"`
	ReservedMinBytes int64    `json:"reservedMinBytes" yaml:"reservedMinBytes"`
	ReservedMaxBytes int64    `json:"reservedMaxBytes" yaml:"reservedMaxBytes"`
	UsageBytes       *float64 `json:"usageBytes,omitempty" yaml:"usageBytes,omitempty"`
}

// MemoryReport is the aggregate memory reservation of an environment.
type MemoryReport struct {
	ResourceGroup    string      `json:"resourceGroup" yaml:"resourceGroup"`
	Environment      string      `json:"environment" yaml:"environment"`
	Apps             []AppMemory `json:"apps" yaml:"apps"`
	PerReplicaBytes  int64       `json:"perReplicaBytes" yaml:"perReplicaBytes"`
	ReservedMinBytes int64       `json:"reservedMinBytes" yaml:"reservedMinBytes"`
	ReservedMaxBytes int64       `json:"reservedMaxBytes" yaml:"reservedMaxBytes"`
	PerReplicaCPU    float64     `json:"perReplicaCpu" yaml:"perReplicaCpu"`
	Warnings         []string    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// MemoryEstimator sums up the memory requested by the apps of an environment.
type MemoryEstimator struct {
	Apps   AppLister
	Usage  UsageReader // optional
	Logger *slog.Logger

	UsageWindow time.Duration
}

// ParseMemory converts a Container Apps memory string such as "0.5Gi",
// "1Gi" or "512Mi" into bytes.
func ParseMemory(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	quantity, err := resource.ParseQuantity(value)
	if err != nil {
		return 0, fmt.Errorf("invalid memory quantity %q: %w", value, err)
	}

	if quantity.Sign() < 0 {
		return 0, fmt.Errorf("invalid memory quantity %q: negative", value)
	}

	return quantity.Value(), nil
}

// BytesToGiB converts a byte count to GiB.
func BytesToGiB(bytes int64) float64 {
	return float64(bytes) / bytesPerGiB
}

// Estimate builds the memory report for the environment.
func (e *MemoryEstimator) Estimate(ctx context.Context, resourceGroup, environment string) (*MemoryReport, error) {
	apps, err := e.Apps.ListEnvironmentApps(ctx, resourceGroup, environment)
	if err != nil {
		return nil, fmt.Errorf("could not list container apps: %w", err)
	}

	report := &MemoryReport{
		ResourceGroup: resourceGroup,
		Environment:   environment,
		Apps:          make([]AppMemory, 0, len(apps)),
	}

	window := e.UsageWindow
	if window <= 0 {
		window = time.Hour
	}

	for _, app := range apps {
		row := AppMemory{
			Name:        app.Name,
			MaxReplicas: defaultMaxReplicas,
		}

		if app.MinReplicas != nil {
			row.MinReplicas = *app.MinReplicas
		}

		if app.MaxReplicas != nil {
			row.MaxReplicas = *app.MaxReplicas
		}

		for _, container := range app.Containers {
			row.PerReplicaCPU += container.CPU

			bytes, err := ParseMemory(container.Memory)
			if err != nil {
				warning := fmt.Sprintf("%s/%s: %v", app.Name, container.Name, err)
				report.Warnings = append(report.Warnings, warning)
				e.Logger.Warn("could not parse container memory", "container_app", app.Name, "container", container.Name, "error", err)
				continue
			}

			row.PerReplicaBytes += bytes
		}

		row.ReservedMinBytes = row.PerReplicaBytes * int64(row.MinReplicas)
		row.ReservedMaxBytes = row.PerReplicaBytes * int64(row.MaxReplicas)

		if e.Usage != nil && app.ID != "" {
			usage, err := e.Usage.MemoryUsage(ctx, app.ID, window)
			switch {
			case err == nil:
				row.UsageBytes = &usage
			case errors.Is(err, ErrNoMetricData):
				e.Logger.Debug("no memory usage data", "container_app", app.Name)
			default:
				report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", app.Name, err))
				e.Logger.Warn("could not read memory usage", "container_app", app.Name, "error", err)
			}
		}

		report.PerReplicaBytes += row.PerReplicaBytes
		report.ReservedMinBytes += row.ReservedMinBytes
		report.ReservedMaxBytes += row.ReservedMaxBytes
		report.PerReplicaCPU += row.PerReplicaCPU
		report.Apps = append(report.Apps, row)
	}

	e.Logger.Info("memory reservation estimated",
		"resource_group", resourceGroup,
		"environment", environment,
		"container_apps", len(report.Apps),
		"per_replica_gib", BytesToGiB(report.PerReplicaBytes),
		"reserved_max_gib", BytesToGiB(report.ReservedMaxBytes),
	)

	return report, nil
}
