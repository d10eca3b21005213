// Package main runs the stale action sweep.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dukex/actiontrack/pkg/cmd"
	"github.com/dukex/actiontrack/pkg/sweeper"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "actiontrack-sweeper",
		Usage:                 "Fail actions whose completion never arrived",
		EnableShellCompletion: true,
		Flags:                 newFlags(),
		Action:                run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newFlags() []cli.Flag {
	return slices.Concat(cmd.CommonFlags(), cmd.SweepFlags(sweeper.DefaultSchedule, sweeper.DefaultStaleAfter), []cli.Flag{
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Maximum number of actions examined per run",
			Value:   sweeper.DefaultBatchSize,
			Sources: cli.EnvVars("SWEEP_BATCH_SIZE"),
		},
		&cli.BoolFlag{
			Name:  "once",
			Usage: "Run a single sweep and exit",
		},
	})
}

func run(ctx context.Context, command *cli.Command) error {
	rt, err := cmd.NewRuntime(ctx, command, "actiontrack-sweeper", false)
	if err != nil {
		return err
	}

	defer func() {
		err := rt.Close(ctx)
		if err != nil {
			rt.Logger.ErrorContext(ctx, "Failed to release resources", "error", err)
		}
	}()

	s := sweeper.New(rt.Store, rt.Actions, rt.Logger, rt.Metrics, sweeper.Options{
		StaleAfter: command.Duration("stale-after"),
		BatchSize:  command.Int("batch-size"),
	})

	if command.Bool("once") {
		swept, err := s.Sweep(ctx)
		if err != nil {
			return err
		}

		rt.Logger.InfoContext(ctx, "Sweep finished", "swept", swept)

		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = s.Start(ctx, command.String("sweep-schedule"))
	if err != nil {
		return err
	}

	<-ctx.Done()
	rt.Logger.Info("Shutting down gracefully...")
	s.Stop()

	return nil
}
