package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/actiontrack/pkg/channels/gochannel"
	"github.com/dukex/actiontrack/pkg/channels/kafka"
	"github.com/dukex/actiontrack/pkg/diagnostics"
	"github.com/dukex/actiontrack/pkg/eventbus"
)

// ErrUnsupportedEventBus is returned for an unknown provider name.
var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus creates the event bus for provider. serviceName selects the
// Kafka consumer group.
func NewEventBus(provider string, serviceName string, brokers []string, logger *slog.Logger, sink diagnostics.Sink) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, serviceName, brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger, sink), nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create GoChannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger, sink), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventBus, provider)
	}
}
