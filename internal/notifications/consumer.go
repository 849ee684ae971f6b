package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox/payloads"
)

const notificationConsumer = "order-notifications"

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Consumer drains the orders topic and routes each event to the dispatcher.
type Consumer struct {
	svc          Service
	subscription *pubsub.Subscriber
	decoders     *outbox.DecoderRegistry
	idempotency  idempotencyGuard
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(svc Service, subscription *pubsub.Subscriber, decoders *outbox.DecoderRegistry, guard idempotencyGuard, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("notification service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("decoder registry required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		svc:          svc,
		subscription: subscription,
		decoders:     decoders,
		idempotency:  guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data).nack {
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

// process handles one delivery. Malformed messages are acked so they do not
// loop forever; transient handler failures are nacked for redelivery.
func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) processResult {
	eventType := enums.OutboxEventType(attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	if envelope.EventID == "" {
		c.logg.Warn(logCtx, "envelope missing event id")
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, notificationConsumer, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{ack: true}
	}

	if err := c.dispatch(ctx, decoded); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, notificationConsumer, envelope.EventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) dispatch(ctx context.Context, decoded interface{}) error {
	switch event := decoded.(type) {
	case *payloads.OrderCreatedEvent:
		return c.svc.OrderCreated(ctx, event)
	case *payloads.OrderCancelledEvent:
		return c.svc.OrderCancelled(ctx, event)
	case *payloads.PaymentSettledEvent:
		return c.svc.PaymentSettled(ctx, event)
	case *payloads.PaymentRefundedEvent:
		return c.svc.PaymentRefunded(ctx, event)
	default:
		return fmt.Errorf("no handler for payload %T", decoded)
	}
}
