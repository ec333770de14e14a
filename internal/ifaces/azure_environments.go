package ifaces

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appcontainers/armappcontainers/v3"
)

// AzureManagedEnvironments is an interface for the Azure Container Apps
// managed environments client.
//
//go:generate mockery --output ./ --name AzureManagedEnvironments --filename mock_azure_environments.go --outpkg ifaces --structname MockAzureManagedEnvironments
type AzureManagedEnvironments interface {
	GetManagedEnvironment(ctx context.Context, resourceGroupName string, environmentName string) (*armappcontainers.ManagedEnvironment, error)
	UpdateManagedEnvironment(ctx context.Context, resourceGroupName string, environmentName string, environment armappcontainers.ManagedEnvironment) error
}
