package internal

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Controller holds what is shared by the Azure clients of the scheduler. It
// is embedded in the service-specific controllers (e.g., AzureController).
type Controller struct {
	// Configuration.
	SubscriptionID string

	// Telemetry.
	Tracer trace.Tracer
}

// tracedHTTPClient returns an HTTP client that records a span per request
// made by the Azure SDK.
func tracedHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(
			http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Host
			}),
		),
	}
}

// ARMClientOptions returns the options used for every Azure Resource Manager
// client, routing their traffic through the traced HTTP client.
func ARMClientOptions() *arm.ClientOptions {
	return &arm.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: tracedHTTPClient(),
		},
	}
}

// ClientOptions returns the options for data-plane clients such as Blob Storage.
func ClientOptions() azcore.ClientOptions {
	return azcore.ClientOptions{
		Transport: tracedHTTPClient(),
	}
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}

	return respErr.StatusCode == http.StatusNotFound || respErr.ErrorCode == "ResourceGroupNotFound"
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
