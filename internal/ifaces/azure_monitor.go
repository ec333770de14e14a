package ifaces

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
)

// AzureMonitor is an interface for the Azure Monitor metrics client.
//
//go:generate mockery --output ./ --name AzureMonitor --filename mock_azure_monitor.go --outpkg ifaces --structname MockAzureMonitor
type AzureMonitor interface {
	ListMetrics(ctx context.Context, resourceURI string, options *armmonitor.MetricsClientListOptions) (*armmonitor.Response, error)
}
