package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/actiontrack/pkg/diagnostics"
	"github.com/dukex/actiontrack/pkg/eventbus"
	"github.com/dukex/actiontrack/pkg/log"
	"github.com/dukex/actiontrack/pkg/metrics"
	"github.com/dukex/actiontrack/pkg/otelhelper"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/dukex/actiontrack/pkg/services"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// Runtime holds the shared dependencies of a binary.
type Runtime struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *metrics.Metrics
	Sink    diagnostics.Sink
	Store   persistence.ActionStore
	Actions *services.Action
	Bus     eventbus.EventBus

	closers []func(context.Context) error
}

// NewRuntime configures logging and tracing and opens the action store.
// The event bus is opened only when withBus is set.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, withBus bool) (*Runtime, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(serviceName)
	rt := &Runtime{
		Logger:  logger,
		Tracer:  otelhelper.NoopTracer(),
		Metrics: metrics.New(),
		Sink:    diagnostics.NewLogSink(logger),
	}

	if command.Bool("tracing-enabled") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		rt.Tracer = tracer
		rt.closers = append(rt.closers, shutdown)
	}

	store, err := NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		_ = rt.Close(ctx)

		return nil, err
	}

	rt.Store = store
	rt.Actions = services.NewAction(store, logger, rt.Metrics)
	rt.closers = append(rt.closers, store.Close)

	if withBus {
		bus, err := NewEventBus(command.String("event-bus"), serviceName, command.StringSlice("kafka-brokers"), logger, rt.Sink)
		if err != nil {
			_ = rt.Close(ctx)

			return nil, err
		}

		rt.Bus = bus
		rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })
	}

	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		err := rt.closers[i](ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
