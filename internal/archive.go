package internal

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/spacelift-io/acascheduler/internal/ifaces"
)

// LogArchiver uploads finished run logs to a Blob Storage container, under
// <environment>/<file name>.
type LogArchiver struct {
	Blob        ifaces.AzureBlob
	Container   string
	Environment string
	Tracer      trace.Tracer
}

// azureBlobClient wraps the Blob Storage SDK client to implement the AzureBlob interface.
type azureBlobClient struct {
	client *azblob.Client
}

func (c *azureBlobClient) UploadFile(ctx context.Context, containerName string, blobName string, file *os.File) error {
	_, err := c.client.UploadFile(ctx, containerName, blobName, file, nil)
	return err
}

// NewLogArchiver creates an archiver for the storage account at accountURL,
// e.g. https://{account}.blob.core.windows.net/.
func NewLogArchiver(accountURL, container, environment string, cred azcore.TokenCredential) (*LogArchiver, error) {
	client, err := azblob.NewClient(accountURL, cred, &azblob.ClientOptions{ClientOptions: ClientOptions()})
	if err != nil {
		return nil, fmt.Errorf("could not create Azure Blob Storage client: %w", err)
	}

	return &LogArchiver{
		Blob:        &azureBlobClient{client: client},
		Container:   container,
		Environment: environment,
		Tracer:      otel.Tracer("github.com/spacelift-io/acascheduler/internal/archive"),
	}, nil
}

// BlobName returns the name under which the log file is archived.
func (a *LogArchiver) BlobName(logPath string) string {
	return path.Join(a.Environment, filepath.Base(logPath))
}

// Archive uploads the log file. The file must be closed by its writer first.
func (a *LogArchiver) Archive(ctx context.Context, logPath string) (err error) {
	ctx, span := a.Tracer.Start(ctx, "azure.blob.upload")
	defer span.End()

	blobName := a.BlobName(logPath)
	span.SetAttributes(
		attribute.String("container", a.Container),
		attribute.String("blob", blobName),
	)

	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("could not open log file for archiving: %w", err)
	}
	defer file.Close()

	if err = a.Blob.UploadFile(ctx, a.Container, blobName, file); err != nil {
		err = fmt.Errorf("could not upload log file to container %s: %w", a.Container, err)
		return err
	}

	return nil
}
