package cmd

import (
	"time"

	"github.com/dukex/actiontrack/pkg/events"
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are shared by every actiontrack binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Action store URL (postgres://, redis:// or a directory path)",
			Value:   "file://./data",
			Sources: cli.EnvVars("DATABASE_URL"),
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
		&cli.BoolFlag{
			Name:    "tracing-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Value:   false,
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// EventBusFlags configure the message bus.
func EventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Value:   "kafka",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka bootstrap brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "db-schema-import-topic",
			Usage:   "Topic carrying schema import requests",
			Value:   events.DBSchemaImportTopic,
			Sources: cli.EnvVars("DB_SCHEMA_IMPORT_TOPIC"),
		},
	}
}

// SweepFlags configure the stale action sweep.
func SweepFlags(defaultSchedule string, defaultStaleAfter time.Duration) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron expression or descriptor for the stale action sweep",
			Value:   defaultSchedule,
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
		&cli.DurationFlag{
			Name:    "stale-after",
			Usage:   "Age after which a non-terminal step is failed",
			Value:   defaultStaleAfter,
			Sources: cli.EnvVars("STALE_AFTER"),
		},
	}
}
