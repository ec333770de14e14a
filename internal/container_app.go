package internal

import "strings"

// Resource is a container app targeted by a lifecycle batch.
type Resource struct {
	Name          string
	EnvironmentID string
	ResourceGroup string
}

// ContainerApp is the subset of an Azure Container App that the scheduler
// works with.
type ContainerApp struct {
	ID            string
	Name          string
	ResourceGroup string
	EnvironmentID string
	MinReplicas   *int32
	MaxReplicas   *int32
	Containers    []Container
}

// Container describes the resources requested by one container of an app.
type Container struct {
	Name   string
	CPU    float64
	Memory string
}

// Resource returns the lifecycle target for the app.
func (a ContainerApp) Resource() Resource {
	return Resource{
		Name:          a.Name,
		EnvironmentID: a.EnvironmentID,
		ResourceGroup: a.ResourceGroup,
	}
}

// Environment is the subset of an Azure Container Apps managed environment
// used by the post-stop remediation.
type Environment struct {
	ID                string
	Name              string
	Location          string
	ProvisioningState string
	Tags              map[string]string
}

// Failed reports whether the environment is in a failed provisioning state.
func (e *Environment) Failed() bool {
	return strings.EqualFold(e.ProvisioningState, "Failed")
}
