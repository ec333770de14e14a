package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/appcontainers/armappcontainers/v3"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/monitor/armmonitor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/spacelift-io/acascheduler/internal/ifaces"
)

// ErrNoMetricData is returned when Azure Monitor has no data points for an app
// in the requested window.
var ErrNoMetricData = errors.New("no metric data")

const memoryMetricName = "WorkingSetBytes"

type AzureController struct {
	Controller

	// Clients.
	ContainerApps ifaces.AzureContainerApps
	Environments  ifaces.AzureManagedEnvironments
	Monitor       ifaces.AzureMonitor
}

// azureContainerAppsClient wraps the Container Apps SDK client to implement the AzureContainerApps interface.
type azureContainerAppsClient struct {
	client *armappcontainers.ContainerAppsClient
}

func (c *azureContainerAppsClient) ListContainerApps(ctx context.Context, resourceGroupName string) ([]*armappcontainers.ContainerApp, error) {
	pager := c.client.NewListByResourceGroupPager(resourceGroupName, nil)
	var apps []*armappcontainers.ContainerApp

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		apps = append(apps, page.Value...)
	}

	return apps, nil
}

func (c *azureContainerAppsClient) StartContainerApp(ctx context.Context, resourceGroupName string, containerAppName string) error {
	poller, err := c.client.BeginStart(ctx, resourceGroupName, containerAppName, nil)
	if err != nil {
		return err
	}

	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func (c *azureContainerAppsClient) StopContainerApp(ctx context.Context, resourceGroupName string, containerAppName string) error {
	poller, err := c.client.BeginStop(ctx, resourceGroupName, containerAppName, nil)
	if err != nil {
		return err
	}

	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

// azureManagedEnvironmentsClient wraps the managed environments SDK client to implement the AzureManagedEnvironments interface.
type azureManagedEnvironmentsClient struct {
	client *armappcontainers.ManagedEnvironmentsClient
}

func (c *azureManagedEnvironmentsClient) GetManagedEnvironment(ctx context.Context, resourceGroupName string, environmentName string) (*armappcontainers.ManagedEnvironment, error) {
	resp, err := c.client.Get(ctx, resourceGroupName, environmentName, nil)
	if err != nil {
		return nil, err
	}
	return &resp.ManagedEnvironment, nil
}

func (c *azureManagedEnvironmentsClient) UpdateManagedEnvironment(ctx context.Context, resourceGroupName string, environmentName string, environment armappcontainers.ManagedEnvironment) error {
	poller, err := c.client.BeginUpdate(ctx, resourceGroupName, environmentName, environment, nil)
	if err != nil {
		return err
	}

	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

// azureMonitorClient wraps the Azure Monitor metrics client to implement the AzureMonitor interface.
type azureMonitorClient struct {
	client *armmonitor.MetricsClient
}

func (c *azureMonitorClient) ListMetrics(ctx context.Context, resourceURI string, options *armmonitor.MetricsClientListOptions) (*armmonitor.Response, error) {
	resp, err := c.client.List(ctx, resourceURI, options)
	if err != nil {
		return nil, err
	}
	return &resp.Response, nil
}

// NewAzureController creates a new Azure controller instance.
func NewAzureController(ctx context.Context, cfg *RuntimeConfig, cred azcore.TokenCredential) (*AzureController, error) {
	options := ARMClientOptions()

	appsClient, err := armappcontainers.NewContainerAppsClient(cfg.AzureSubscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("could not create Azure Container Apps client: %w", err)
	}

	environmentsClient, err := armappcontainers.NewManagedEnvironmentsClient(cfg.AzureSubscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("could not create Azure managed environments client: %w", err)
	}

	metricsClient, err := armmonitor.NewMetricsClient(cfg.AzureSubscriptionID, cred, options)
	if err != nil {
		return nil, fmt.Errorf("could not create Azure Monitor metrics client: %w", err)
	}

	return &AzureController{
		Controller: Controller{
			SubscriptionID: cfg.AzureSubscriptionID,
			Tracer:         otel.Tracer("github.com/spacelift-io/acascheduler/internal/controller"),
		},
		ContainerApps: &azureContainerAppsClient{client: appsClient},
		Environments:  &azureManagedEnvironmentsClient{client: environmentsClient},
		Monitor:       &azureMonitorClient{client: metricsClient},
	}, nil
}

// ListContainerApps returns every container app in the resource group, in
// the order returned by the API.
func (c *AzureController) ListContainerApps(ctx context.Context, resourceGroup string) (apps []ContainerApp, err error) {
	ctx, span := c.Tracer.Start(ctx, "azure.containerapps.list")
	defer span.End()

	span.SetAttributes(attribute.String("resource_group", resourceGroup))

	raw, err := c.ContainerApps.ListContainerApps(ctx, resourceGroup)
	if err != nil {
		if isNotFound(err) {
			err = fmt.Errorf("%w: %s: %w", ErrScopeNotFound, resourceGroup, err)
			return nil, err
		}

		err = fmt.Errorf("%w in resource group %s: %w", ErrDiscovery, resourceGroup, err)
		return nil, err
	}

	for _, item := range raw {
		if item == nil || item.Name == nil {
			err = fmt.Errorf("%w in resource group %s: container app without a name", ErrDiscovery, resourceGroup)
			return nil, err
		}

		apps = append(apps, containerAppFromARM(item, resourceGroup))
	}

	span.SetAttributes(attribute.Int("container_apps", len(apps)))

	return apps, nil
}

// ListEnvironmentApps returns the container apps of the resource group that
// belong to the managed environment.
func (c *AzureController) ListEnvironmentApps(ctx context.Context, resourceGroup, environment string) ([]ContainerApp, error) {
	apps, err := c.ListContainerApps(ctx, resourceGroup)
	if err != nil {
		return nil, err
	}

	return FilterByEnvironment(apps, environment), nil
}

// Discover returns the lifecycle targets for the managed environment.
func (c *AzureController) Discover(ctx context.Context, scope, environment string) ([]Resource, error) {
	apps, err := c.ListEnvironmentApps(ctx, scope, environment)
	if err != nil {
		return nil, err
	}

	resources := make([]Resource, 0, len(apps))
	for _, app := range apps {
		resources = append(resources, app.Resource())
	}

	return resources, nil
}

// Apply starts or stops a single container app and waits for the operation
// to complete.
func (c *AzureController) Apply(ctx context.Context, action Action, resourceName, scope string) (err error) {
	ctx, span := c.Tracer.Start(ctx, "azure.containerapp."+action.Verb())
	defer span.End()

	span.SetAttributes(
		attribute.String("resource_group", scope),
		attribute.String("container_app", resourceName),
	)

	switch action {
	case ActionStart:
		err = c.ContainerApps.StartContainerApp(ctx, scope, resourceName)
	case ActionStop:
		err = c.ContainerApps.StopContainerApp(ctx, scope, resourceName)
	default:
		return fmt.Errorf("unsupported lifecycle action %q", action)
	}

	if err != nil {
		err = fmt.Errorf("could not %s container app: %w", action.Verb(), err)
		return err
	}

	return nil
}

// GetEnvironment returns the managed environment details.
func (c *AzureController) GetEnvironment(ctx context.Context, resourceGroup, name string) (out *Environment, err error) {
	ctx, span := c.Tracer.Start(ctx, "azure.environment.get")
	defer span.End()

	span.SetAttributes(
		attribute.String("resource_group", resourceGroup),
		attribute.String("environment", name),
	)

	raw, err := c.Environments.GetManagedEnvironment(ctx, resourceGroup, name)
	if err != nil {
		err = fmt.Errorf("could not get managed environment details: %w", err)
		return nil, err
	}

	if raw.Location == nil {
		err = fmt.Errorf("could not find location of managed environment %s", name)
		return nil, err
	}

	out = &Environment{
		ID:                stringValue(raw.ID),
		Name:              name,
		Location:          *raw.Location,
		ProvisioningState: "Unknown",
		Tags:              make(map[string]string, len(raw.Tags)),
	}

	if raw.Properties != nil && raw.Properties.ProvisioningState != nil {
		out.ProvisioningState = string(*raw.Properties.ProvisioningState)
	}

	for key, value := range raw.Tags {
		if value != nil {
			out.Tags[key] = *value
		}
	}

	span.SetAttributes(attribute.String("provisioning_state", out.ProvisioningState))

	return out, nil
}

// UpdateEnvironmentTags replaces the tags of the managed environment.
func (c *AzureController) UpdateEnvironmentTags(ctx context.Context, resourceGroup string, environment *Environment, tags map[string]string) (err error) {
	ctx, span := c.Tracer.Start(ctx, "azure.environment.tag")
	defer span.End()

	span.SetAttributes(
		attribute.String("resource_group", resourceGroup),
		attribute.String("environment", environment.Name),
		attribute.Int("tags", len(tags)),
	)

	patch := armappcontainers.ManagedEnvironment{
		Location: to.Ptr(environment.Location),
		Tags:     make(map[string]*string, len(tags)),
	}

	for key, value := range tags {
		patch.Tags[key] = to.Ptr(value)
	}

	if err = c.Environments.UpdateManagedEnvironment(ctx, resourceGroup, environment.Name, patch); err != nil {
		err = fmt.Errorf("could not update managed environment tags: %w", err)
		return err
	}

	return nil
}

// MemoryUsage returns the average working set, in bytes, of the container app
// over the window ending now.
func (c *AzureController) MemoryUsage(ctx context.Context, appID string, window time.Duration) (usage float64, err error) {
	ctx, span := c.Tracer.Start(ctx, "azure.monitor.memory")
	defer span.End()

	span.SetAttributes(attribute.String("container_app_id", appID))

	end := time.Now().UTC()
	start := end.Add(-window)

	resp, err := c.Monitor.ListMetrics(ctx, appID, &armmonitor.MetricsClientListOptions{
		Metricnames: to.Ptr(memoryMetricName),
		Aggregation: to.Ptr("Average"),
		Timespan:    to.Ptr(start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339)),
		Interval:    to.Ptr("PT5M"),
	})
	if err != nil {
		err = fmt.Errorf("could not list memory metrics: %w", err)
		return 0, err
	}

	var sum float64
	var points int

	for _, metric := range resp.Value {
		if metric == nil {
			continue
		}

		for _, series := range metric.Timeseries {
			if series == nil {
				continue
			}

			for _, value := range series.Data {
				if value == nil || value.Average == nil {
					continue
				}

				sum += *value.Average
				points++
			}
		}
	}

	if points == 0 {
		return 0, ErrNoMetricData
	}

	return sum / float64(points), nil
}

func containerAppFromARM(raw *armappcontainers.ContainerApp, resourceGroup string) ContainerApp {
	app := ContainerApp{
		ID:            stringValue(raw.ID),
		Name:          *raw.Name,
		ResourceGroup: resourceGroup,
	}

	props := raw.Properties
	if props == nil {
		return app
	}

	switch {
	case props.EnvironmentID != nil:
		app.EnvironmentID = *props.EnvironmentID
	case props.ManagedEnvironmentID != nil:
		app.EnvironmentID = *props.ManagedEnvironmentID
	}

	if props.Template == nil {
		return app
	}

	if scale := props.Template.Scale; scale != nil {
		app.MinReplicas = scale.MinReplicas
		app.MaxReplicas = scale.MaxReplicas
	}

	for _, container := range props.Template.Containers {
		if container == nil {
			continue
		}

		item := Container{Name: stringValue(container.Name)}

		if container.Resources != nil {
			if container.Resources.CPU != nil {
				item.CPU = *container.Resources.CPU
			}
			item.Memory = stringValue(container.Resources.Memory)
		}

		app.Containers = append(app.Containers, item)
	}

	return app
}
