// Package eventbus provides event-driven communication between dispatchers and correlators.
package eventbus

import (
	"context"

	"github.com/dukex/actiontrack/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context, topic string) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

type decoder func(body []byte) (any, error)

// decoders maps each known event type to a strict body decoder.
var decoders = map[events.EventType]decoder{
	events.DBSchemaImportRequestEvent: func(body []byte) (any, error) {
		event, err := events.DecodeDBSchemaImportRequest(body)
		if err != nil {
			return nil, err
		}

		return event, nil
	},
}
