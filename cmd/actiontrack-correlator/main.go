// Package main runs the completion correlator.
package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/dukex/actiontrack/pkg/cmd"
	"github.com/dukex/actiontrack/pkg/prismaschema"
	"github.com/dukex/actiontrack/pkg/useraction"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
)

const defaultOpsPort = 9092

func main() {
	command := &cli.Command{
		Name:                  "actiontrack-correlator",
		Usage:                 "Correlate processed schema imports with their actions",
		EnableShellCompletion: true,
		Flags: slices.Concat(cmd.CommonFlags(), cmd.EventBusFlags(), []cli.Flag{
			&cli.IntFlag{
				Name:    "ops-port",
				Usage:   "Port serving /livez, /readyz and /metrics (0 disables it)",
				Value:   defaultOpsPort,
				Sources: cli.EnvVars("OPS_PORT"),
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
	rt, err := cmd.NewRuntime(ctx, command, "actiontrack-correlator", true)
	if err != nil {
		return err
	}

	defer func() {
		err := rt.Close(ctx)
		if err != nil {
			rt.Logger.ErrorContext(ctx, "Failed to release resources", "error", err)
		}
	}()

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

	if port := command.Int("ops-port"); port > 0 {
		ops := fiber.New()
		cmd.MountOps(ops, rt.Metrics, rt.Actions)

		go func() {
			err := ops.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
			if err != nil {
				rt.Logger.ErrorContext(ctx, "Ops server stopped", "error", err)
			}
		}()

		defer func() {
			_ = ops.Shutdown()
		}()
	}

	return NewCorrelator(rt.Logger, rt.Bus, schemaImport, topic).Start(ctx)
}
