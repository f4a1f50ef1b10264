package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/registry"
)

const notificationConsumer = "notifications"

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// Consumer turns domain events into user-facing notifications.
type Consumer struct {
	dispatcher   Dispatcher
	subscription *pubsub.Subscriber
	idempotency  idempotencyGuard
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// NewConsumer builds a notification consumer.
func NewConsumer(dispatcher Dispatcher, subscription *pubsub.Subscriber, guard idempotencyGuard, logg *logger.Logger) (*Consumer, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventUserRegistered, 1, registry.JSONDecoder[payloads.UserRegisteredEvent]())
	decoders.Register(enums.EventPasswordResetRequested, 1, registry.JSONDecoder[payloads.PasswordResetRequestedEvent]())
	decoders.Register(enums.EventOrderPlaced, 1, registry.JSONDecoder[payloads.OrderPlacedEvent]())
	decoders.Register(enums.EventOrderStateChanged, 1, registry.JSONDecoder[payloads.OrderStateChangedEvent]())
	return &Consumer{
		dispatcher:   dispatcher,
		subscription: subscription,
		idempotency:  guard,
		decoders:     decoders,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	decoded, err := c.decoders.DecodeMessage(eventType, msg.Data)
	if errors.Is(err, registry.ErrNotRegistered) {
		c.logg.Info(logCtx, "skipping event without notification")
		return processResult{ack: true}
	}
	if err != nil {
		c.logg.Error(logCtx, "failed to decode event", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, notificationConsumer, decoded.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	message, ok := compose(decoded.Payload)
	if !ok || len(message.Recipients) == 0 {
		c.logg.Warn(logCtx, "event has no recipients")
		return processResult{ack: true}
	}

	// Delivery is best effort; a failed send is not retried.
	if err := c.dispatcher.Send(ctx, message.Title, message.Body, message.Recipients); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notification delivery failed")
		return processResult{ack: true}
	}
	c.logg.Info(logCtx, "notification sent")
	return processResult{ack: true}
}
