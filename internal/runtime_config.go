package internal

import (
	"os"

	"github.com/caarlos0/env/v11"
)

// Command is the scheduler operation being configured.
type Command string

const (
	CommandStart  Command = "start"
	CommandStop   Command = "stop"
	CommandMemory Command = "memory"
)

type RuntimeConfig struct {
	// Common fields - used by all commands
	AzureSubscriptionID string `env:"AZURE_SUBSCRIPTION_ID,notEmpty"`
	ResourceGroup       string `env:"CONTAINERAPPS_RESOURCE_GROUP,notEmpty"`
	Environment         string `env:"CONTAINERAPPS_ENVIRONMENT,notEmpty"`

	// Logging and telemetry
	LogDir               string `env:"LOG_DIR" envDefault:"."`
	LogFormat            string `env:"LOG_FORMAT" envDefault:"text"`
	LogArchiveAccountURL string `env:"LOG_ARCHIVE_ACCOUNT_URL"`
	LogArchiveContainer  string `env:"LOG_ARCHIVE_CONTAINER" envDefault:"acascheduler-logs"`
	PushgatewayURL       string `env:"PROMETHEUS_PUSHGATEWAY_URL"`
	TracingStdout        bool   `env:"TRACING_STDOUT"`

	// Stop-specific fields - use stopEnv tag. They must not carry envDefault
	// values, the "env" pass would otherwise reset them.
	EnvironmentResourceGroup string `stopEnv:"CONTAINERAPPS_ENVIRONMENT_RESOURCE_GROUP,notEmpty"`
	DisableRemediation       bool   `stopEnv:"DISABLE_ENVIRONMENT_REMEDIATION"`
}

// Parse parses environment variables into the config for the specified
// command. Values in overrides (e.g. from command-line flags) take precedence
// over the process environment.
func (r *RuntimeConfig) Parse(command Command, overrides map[string]string) error {
	var allErrors env.AggregateError

	environment := env.ToMap(os.Environ())
	for key, value := range overrides {
		if value != "" {
			environment[key] = value
		}
	}

	// Command-specific tags go first, the common "env" pass runs last.
	var tags []string
	if command == CommandStop {
		tags = append(tags, "stopEnv")
	}
	tags = append(tags, "env")

	for _, tag := range tags {
		if err := env.ParseWithOptions(r, env.Options{TagName: tag, Environment: environment}); err != nil {
			if aggErr, ok := err.(env.AggregateError); ok {
				allErrors.Errors = append(allErrors.Errors, aggErr.Errors...)
			} else {
				allErrors.Errors = append(allErrors.Errors, err)
			}
		}
	}

	if len(allErrors.Errors) > 0 {
		return allErrors
	}
	return nil
}

// LogAttrs returns the attributes identifying the target of a run.
func (r RuntimeConfig) LogAttrs() []any {
	return []any{
		"subscription_id", r.AzureSubscriptionID,
		"resource_group", r.ResourceGroup,
		"environment", r.Environment,
	}
}
