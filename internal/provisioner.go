package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/spacelift-io/acascheduler/internal/ifaces"
)

// ContainerAppsNamespace is the resource provider backing Azure Container Apps.
const ContainerAppsNamespace = "Microsoft.App"

const (
	defaultRegistrationPollInterval = 10 * time.Second
	defaultRegistrationTimeout      = 5 * time.Minute
)

// ErrProviderRegistration is returned when a resource provider cannot be
// confirmed as available to the subscription.
var ErrProviderRegistration = errors.New("resource provider is not available")

// DependencyProvisioner makes sure the platform APIs the scheduler calls are
// available before any work is attempted.
type DependencyProvisioner interface {
	Ensure(ctx context.Context, namespace string) error
}

// Provisioner registers resource providers on the subscription when needed.
type Provisioner struct {
	Providers ifaces.AzureProviders
	Logger    *slog.Logger
	Tracer    trace.Tracer

	// PollInterval and Timeout bound the wait for a pending registration.
	// Zero values use the defaults.
	PollInterval time.Duration
	Timeout      time.Duration
}

// azureProvidersClient wraps the resource providers SDK client to implement the AzureProviders interface.
type azureProvidersClient struct {
	client *armresources.ProvidersClient
}

func (c *azureProvidersClient) GetProvider(ctx context.Context, namespace string) (*armresources.Provider, error) {
	resp, err := c.client.Get(ctx, namespace, nil)
	if err != nil {
		return nil, err
	}
	return &resp.Provider, nil
}

func (c *azureProvidersClient) RegisterProvider(ctx context.Context, namespace string) (*armresources.Provider, error) {
	resp, err := c.client.Register(ctx, namespace, nil)
	if err != nil {
		return nil, err
	}
	return &resp.Provider, nil
}

// NewProvisioner creates a provisioner for the subscription.
func NewProvisioner(subscriptionID string, cred azcore.TokenCredential, logger *slog.Logger) (*Provisioner, error) {
	client, err := armresources.NewProvidersClient(subscriptionID, cred, ARMClientOptions())
	if err != nil {
		return nil, fmt.Errorf("could not create Azure resource providers client: %w", err)
	}

	return &Provisioner{
		Providers: &azureProvidersClient{client: client},
		Logger:    logger,
		Tracer:    otel.Tracer("github.com/spacelift-io/acascheduler/internal/provisioner"),
	}, nil
}

// Ensure checks the registration state of the namespace, registers it if it
// is not registered yet and waits until the registration has completed.
func (p *Provisioner) Ensure(ctx context.Context, namespace string) error {
	ctx, span := p.Tracer.Start(ctx, "azure.provider.ensure")
	defer span.End()

	span.SetAttributes(attribute.String("namespace", namespace))

	logger := p.Logger.With("namespace", namespace)

	state, err := p.registrationState(ctx, namespace)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("registration_state", state))

	switch {
	case isRegistered(state):
		logger.Debug("resource provider already registered")
		return nil
	case strings.EqualFold(state, "Registering"):
		logger.Info("resource provider registration in progress")
	default:
		logger.Info("resource provider not registered, registering", "registration_state", state)

		if _, err := p.Providers.RegisterProvider(ctx, namespace); err != nil {
			return fmt.Errorf("%w: could not register %s: %w", ErrProviderRegistration, namespace, err)
		}

		logger.Info("resource provider registration requested")
	}

	if err := p.waitRegistered(ctx, logger, namespace); err != nil {
		return err
	}

	logger.Info("resource provider registered")

	return nil
}

func (p *Provisioner) waitRegistered(ctx context.Context, logger *slog.Logger, namespace string) error {
	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultRegistrationPollInterval
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultRegistrationTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	state := "Registering"

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for %s: %w", ErrProviderRegistration, namespace, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("%w: %s still %s after %s", ErrProviderRegistration, namespace, state, timeout)
		case <-ticker.C:
		}

		var err error
		if state, err = p.registrationState(ctx, namespace); err != nil {
			return err
		}

		if isRegistered(state) {
			return nil
		}

		logger.Debug("waiting for resource provider registration", "registration_state", state)
	}
}

func (p *Provisioner) registrationState(ctx context.Context, namespace string) (string, error) {
	provider, err := p.Providers.GetProvider(ctx, namespace)
	if err != nil {
		return "", fmt.Errorf("%w: could not get %s: %w", ErrProviderRegistration, namespace, err)
	}

	return stringValue(provider.RegistrationState), nil
}

func isRegistered(state string) bool {
	return strings.EqualFold(state, "Registered")
}
