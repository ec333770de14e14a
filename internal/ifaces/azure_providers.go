package ifaces

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
)

// AzureProviders is an interface for the subscription resource providers client.
//
//go:generate mockery --output ./ --name AzureProviders --filename mock_azure_providers.go --outpkg ifaces --structname MockAzureProviders
type AzureProviders interface {
	GetProvider(ctx context.Context, namespace string) (*armresources.Provider, error)
	RegisterProvider(ctx context.Context, namespace string) (*armresources.Provider, error)
}
