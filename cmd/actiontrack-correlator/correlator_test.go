package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/actiontrack/pkg/eventbus"
	"github.com/dukex/actiontrack/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type registrarFunc func(bus eventbus.EventSubscriber) error

func (f registrarFunc) Register(bus eventbus.EventSubscriber) error {
	return f(bus)
}

func TestCorrelator_Start(t *testing.T) {
	subscribed := make(chan struct{})

	bus := &mocks.MockEventBus{}
	bus.On("Subscribe", mock.Anything, "actiontrack.test").Return(nil).Run(func(mock.Arguments) {
		close(subscribed)
	})

	registered := false
	correlator := NewCorrelator(slog.New(slog.NewTextHandler(io.Discard, nil)), bus, registrarFunc(func(eventbus.EventSubscriber) error {
		registered = true

		return nil
	}), "actiontrack.test")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- correlator.Start(ctx)
	}()

	select {
	case <-subscribed:
	case <-time.After(time.Second):
		t.Fatal("correlator did not subscribe")
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("correlator did not stop")
	}

	assert.True(t, registered)
	bus.AssertExpectations(t)
}

func TestCorrelator_StartFailures(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := &mocks.MockEventBus{}
	correlator := NewCorrelator(logger, bus, registrarFunc(func(eventbus.EventSubscriber) error {
		return assert.AnError
	}), "actiontrack.test")

	assert.ErrorIs(t, correlator.Start(t.Context()), assert.AnError)

	bus.On("Subscribe", mock.Anything, "actiontrack.test").Return(assert.AnError)
	correlator = NewCorrelator(logger, bus, registrarFunc(func(eventbus.EventSubscriber) error {
		return nil
	}), "actiontrack.test")

	assert.ErrorIs(t, correlator.Start(t.Context()), assert.AnError)
}
