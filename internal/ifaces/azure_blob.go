package ifaces

import (
	"context"
	"os"
)

// AzureBlob is an interface for the subset of the Azure Blob Storage client
// used to archive run logs.
//
//go:generate mockery --output ./ --name AzureBlob --filename mock_azure_blob.go --outpkg ifaces --structname MockAzureBlob
type AzureBlob interface {
	UploadFile(ctx context.Context, containerName string, blobName string, file *os.File) error
}
