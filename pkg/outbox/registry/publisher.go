package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
)

// ErrUnroutable is wrapped when an event type has no descriptor, and so no topic.
var ErrUnroutable = errors.New("no route for event type")

// EventDescriptor is the publishing contract of one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        decoderFunc
}

// ResolvedEvent is an outbox row that passed validation, with its payload
// decoded into the registered type.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry routes outbox rows to topics.
type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry builds the route table. Task submissions go to the tasks
// topic; every other event feeds the notification dispatcher.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	tasksTopic := strings.TrimSpace(cfg.TasksTopic)
	notifyTopic := strings.TrimSpace(cfg.NotificationTopic)
	switch {
	case tasksTopic == "":
		return nil, errors.New("tasks topic is required")
	case notifyTopic == "":
		return nil, errors.New("notification topic is required")
	}

	reg := &EventRegistry{routes: map[enums.OutboxEventType]EventDescriptor{}}
	reg.route(tasksTopic, enums.EventTaskSubmitted, enums.AggregateTask, JSONDecoder[payloads.TaskSubmittedEvent]())
	reg.route(notifyTopic, enums.EventOrderPlaced, enums.AggregateOrder, JSONDecoder[payloads.OrderPlacedEvent]())
	reg.route(notifyTopic, enums.EventOrderStateChanged, enums.AggregateOrder, JSONDecoder[payloads.OrderStateChangedEvent]())
	reg.route(notifyTopic, enums.EventUserRegistered, enums.AggregateUser, JSONDecoder[payloads.UserRegisteredEvent]())
	reg.route(notifyTopic, enums.EventPasswordResetRequested, enums.AggregateUser, JSONDecoder[payloads.PasswordResetRequestedEvent]())
	return reg, nil
}

func (r *EventRegistry) route(topic string, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, decode decoderFunc) {
	r.routes[eventType] = EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode:        decode,
	}
}

// Resolve checks a row against its route and decodes the payload. Every
// error it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[event.EventType]
	if !ok {
		return nil, nonRetryable("%w %s", ErrUnroutable, event.EventType)
	}
	if event.AggregateType != desc.AggregateType {
		return nil, nonRetryable("%s belongs to %s aggregates, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	}
	if strings.TrimSpace(event.AggregateID) == "" {
		return nil, nonRetryable("%s row has no aggregate id", event.EventType)
	}

	envelope, err := outbox.ParseEnvelope(event.Payload)
	if err != nil {
		return nil, nonRetryable("%s envelope: %w", event.EventType, err)
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
