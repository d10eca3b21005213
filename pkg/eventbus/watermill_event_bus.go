package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/actiontrack/pkg/diagnostics"
	"github.com/dukex/actiontrack/pkg/events"
	"github.com/dukex/actiontrack/pkg/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	// ErrNoHandler is reported for messages whose type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for event type")

	// ErrUnknownEventType is returned when no decoder exists for an event type.
	ErrUnknownEventType = errors.New("unknown event type")
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	logger        *slog.Logger
	sink          diagnostics.Sink
	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger, sink diagnostics.Sink) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger.With("module", "event_bus"),
		sink:          sink,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

var _ EventBus = (*WatermillEventBus)(nil)

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish sends event to topic. An empty key leaves partitioning to the broker.
func (eb *WatermillEventBus) Publish(ctx context.Context, topic string, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	for k, v := range carrier {
		msg.Metadata.Set(k, v)
	}

	if key != "" {
		msg.Metadata.Set(events.EventMetadataKey, key)
	}

	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	eb.logger.DebugContext(ctx, "Publishing event", "topic", topic, "event_type", event.GetType(), "message_id", msg.UUID)

	err = eb.publisher.Publish(topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event to %s: %w", event.GetType(), topic, err)
	}

	return nil
}

// Subscribe starts consuming topic in the background. Messages that cannot be
// decoded or routed are reported and acked so they are never redelivered.
func (eb *WatermillEventBus) Subscribe(ctx context.Context, topic string) error {
	messages, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	carrier := propagation.MapCarrier(msg.Metadata)
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)

	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))
	msgCtx = log.WithLogger(msgCtx, eb.logger.With("message_id", msg.UUID, "event_type", string(eventType)))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	decode, known := decoders[eventType]

	if !known {
		eb.sink.Report(msgCtx, "Dropping message "+msg.UUID, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType))
		msg.Ack()

		return
	}

	if !exists {
		eb.sink.Report(msgCtx, "Dropping message "+msg.UUID, fmt.Errorf("%w: %q", ErrNoHandler, eventType))
		msg.Ack()

		return
	}

	event, err := decode(msg.Payload)
	if err != nil {
		eb.sink.Report(msgCtx, "Dropping undecodable message "+msg.UUID, err)
		msg.Ack()

		return
	}

	err = eb.runHandler(msgCtx, msg, handler, event)
	if err != nil {
		log.FromContext(msgCtx).WarnContext(msgCtx, "Handler failed, message will be redelivered", "error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) runHandler(ctx context.Context, msg *message.Message, handler EventHandler, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			eb.sink.Report(ctx, "Recovered handler panic for message "+msg.UUID, fmt.Errorf("panic: %v", r))

			err = nil
		}
	}()

	return handler(ctx, event)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	if _, known := decoders[eventType]; !known {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
