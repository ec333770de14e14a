package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "acascheduler"

// MetricsPusher publishes the outcome of a batch to a Prometheus Pushgateway.
// Every push replaces the metrics of the previous run of the same job and
// environment.
type MetricsPusher struct {
	URL         string
	Job         string
	Environment string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (p *MetricsPusher) Observe(ctx context.Context, report *BatchReport) error {
	registry := prometheus.NewRegistry()

	apps := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "batch_container_apps",
		Help:      "Number of container apps processed by the last batch, by outcome.",
	}, []string{"status"})

	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "batch_success",
		Help:      "Whether the last batch succeeded (1) or had failures (0).",
	})

	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "batch_last_run_timestamp_seconds",
		Help:      "Unix time at which the last batch finished.",
	})

	registry.MustRegister(apps, success, lastRun)

	apps.WithLabelValues(string(OutcomeSucceeded)).Set(float64(report.Succeeded))
	apps.WithLabelValues(string(OutcomeFailed)).Set(float64(report.Failed))

	if report.Success() {
		success.Set(1)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	lastRun.Set(float64(now().Unix()))

	// The action is part of the grouping key so start and stop runs do not
	// overwrite each other.
	pusher := push.New(p.URL, p.Job).
		Gatherer(registry).
		Grouping("environment", p.Environment).
		Grouping("action", report.Action.Verb())

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("could not push metrics to %s: %w", p.URL, err)
	}

	return nil
}
