package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/actiontrack/pkg/eventbus"
)

// Registrar binds a handler to the bus.
type Registrar interface {
	Register(bus eventbus.EventSubscriber) error
}

// Correlator consumes completion events until it is told to stop.
type Correlator struct {
	logger    *slog.Logger
	bus       eventbus.EventBus
	registrar Registrar
	topic     string
}

func NewCorrelator(logger *slog.Logger, bus eventbus.EventBus, registrar Registrar, topic string) *Correlator {
	return &Correlator{
		logger:    logger.With("module", "correlator"),
		bus:       bus,
		registrar: registrar,
		topic:     topic,
	}
}

// Start subscribes to the topic and blocks until ctx is done or a
// termination signal arrives.
func (c *Correlator) Start(ctx context.Context) error {
	cCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.handleSignals(cCtx, cancel)

	err := c.registrar.Register(c.bus)
	if err != nil {
		return fmt.Errorf("failed to register handler: %w", err)
	}

	err = c.bus.Subscribe(cCtx, c.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.topic, err)
	}

	c.logger.InfoContext(cCtx, "Consuming completion events", "topic", c.topic)

	<-cCtx.Done()
	c.logger.Info("Correlator context cancelled, stopping...")

	return nil
}

// handleSignals sets up signal handling for graceful shutdown.
func (c *Correlator) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			c.logger.Info("Received signal, shutting down gracefully...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
}
