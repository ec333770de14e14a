package internal

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrScopeNotFound is returned when the resource group to discover apps in
	// does not exist or is not accessible.
	ErrScopeNotFound = errors.New("resource group not found")

	// ErrDiscovery is returned for any other failure while listing apps.
	ErrDiscovery = errors.New("could not discover container apps")
)

// ResourceDiscovery lists the container apps of a resource group that belong
// to the given managed environment.
type ResourceDiscovery interface {
	Discover(ctx context.Context, scope, environment string) ([]Resource, error)
}

// FilterByEnvironment keeps the apps whose environment ID ends with the
// environment name. Matching is case-insensitive and tolerant of prefix
// variation in the ID, so "dev" also matches ".../managedEnvironments/mydev".
// When at least one app references an environment whose name is exactly the
// requested one, only those exact matches are kept.
//
// The input order is preserved.
func FilterByEnvironment(apps []ContainerApp, environment string) []ContainerApp {
	want := strings.ToLower(strings.TrimSpace(environment))
	if want == "" {
		return nil
	}

	var exact, suffix []ContainerApp

	for _, app := range apps {
		id := strings.ToLower(strings.TrimRight(app.EnvironmentID, "/"))
		if id == "" || !strings.HasSuffix(id, want) {
			continue
		}

		suffix = append(suffix, app)

		if lastSegment(id) == want {
			exact = append(exact, app)
		}
	}

	if len(exact) > 0 {
		return exact
	}

	return suffix
}

func lastSegment(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}
