package cmd

import (
	"github.com/dukex/relay/pkg/engine"
	"github.com/dukex/relay/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are accepted by every relay process.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Persistence URL (postgres://, redis:// or a directory path)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, memory)",
			Value:   "memory",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "credentials-key",
			Usage:   "Base64 encoded 32 byte key used to seal connection credentials",
			Sources: cli.EnvVars("RELAY_CREDENTIALS_KEY"),
		},
		&cli.StringSliceFlag{
			Name:    "credentials-fallback-keys",
			Usage:   "Previous credentials keys, tried when decrypting",
			Sources: cli.EnvVars("RELAY_CREDENTIALS_FALLBACK_KEYS"),
		},
		&cli.DurationFlag{
			Name:    "execution-timeout",
			Usage:   "Maximum duration of one execution",
			Value:   services.DefaultExecutionTimeout,
			Sources: cli.EnvVars("EXECUTION_TIMEOUT"),
		},
		&cli.DurationFlag{
			Name:    "node-timeout",
			Usage:   "Maximum duration of one node call",
			Value:   engine.DefaultNodeTimeout,
			Sources: cli.EnvVars("NODE_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// ConfigFromCommand reads CommonFlags into a Config.
func ConfigFromCommand(serviceName string, command *cli.Command) Config {
	return Config{
		ServiceName:      serviceName,
		DatabaseURL:      command.String("database-url"),
		EventBus:         command.String("event-bus"),
		KafkaBrokers:     command.String("kafka-brokers"),
		CredentialsKey:   command.String("credentials-key"),
		FallbackKeys:     command.StringSlice("credentials-fallback-keys"),
		ExecutionTimeout: command.Duration("execution-timeout"),
		NodeTimeout:      command.Duration("node-timeout"),
		Tracing:          command.Bool("tracing"),
	}
}
