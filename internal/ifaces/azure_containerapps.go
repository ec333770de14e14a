package ifaces

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appcontainers/armappcontainers/v3"
)

// AzureContainerApps is an interface for the Azure Container Apps client.
//
//go:generate mockery --output ./ --name AzureContainerApps --filename mock_azure_containerapps.go --outpkg ifaces --structname MockAzureContainerApps
type AzureContainerApps interface {
	ListContainerApps(ctx context.Context, resourceGroupName string) ([]*armappcontainers.ContainerApp, error)
	StartContainerApp(ctx context.Context, resourceGroupName string, containerAppName string) error
	StopContainerApp(ctx context.Context, resourceGroupName string, containerAppName string) error
}
