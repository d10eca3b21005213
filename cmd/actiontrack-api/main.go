package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/dukex/actiontrack/pkg/cmd"
	"github.com/dukex/actiontrack/pkg/events"
	"github.com/dukex/actiontrack/pkg/prismaschema"
	"github.com/dukex/actiontrack/pkg/useraction"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "actiontrack-api",
		Usage:                 "Accept schema imports and report action progress",
		EnableShellCompletion: true,
		Flags: slices.Concat(cmd.CommonFlags(), cmd.EventBusFlags(), []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "correlate",
				Usage:   "Also consume completion events in this process (required for the gochannel bus)",
				Sources: cli.EnvVars("CORRELATE"),
			},
		}),
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	rt, err := cmd.NewRuntime(ctx, command, "actiontrack-api", true)
	if err != nil {
		return err
	}

	defer func() {
		err := rt.Close(ctx)
		if err != nil {
			rt.Logger.ErrorContext(ctx, "Failed to release resources", "error", err)
		}
	}()

	rt.Logger.InfoContext(ctx, "Initializing actiontrack API")

	topic := command.String("db-schema-import-topic")

	schemaImport := useraction.NewDBSchemaImport(useraction.Options{
		Store:     rt.Store,
		Actions:   rt.Actions,
		Publisher: rt.Bus,
		Processor: prismaschema.NewProcessor(rt.Logger),
		Sink:      rt.Sink,
		Logger:    rt.Logger,
		Tracer:    rt.Tracer,
		Metrics:   rt.Metrics,
		Topic:     topic,
	})

	if command.Bool("correlate") {
		err = schemaImport.Register(rt.Bus)
		if err != nil {
			return fmt.Errorf("failed to register %s handler: %w", events.DBSchemaImportRequestEvent, err)
		}

		err = rt.Bus.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	api := NewAPI(rt.Logger, rt.Actions, schemaImport, rt.Metrics)

	err = api.Start(command.Int("port"))
	if err != nil {
		rt.Logger.ErrorContext(ctx, "Failed to start API server", "error", err)

		return err
	}

	return nil
}
