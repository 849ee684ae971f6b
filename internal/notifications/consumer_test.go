package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox/payloads"
)

type recordingService struct {
	created   []*payloads.OrderCreatedEvent
	cancelled []*payloads.OrderCancelledEvent
	settled   []*payloads.PaymentSettledEvent
	refunded  []*payloads.PaymentRefundedEvent
	fail      error
}

func (r *recordingService) OrderCreated(_ context.Context, event *payloads.OrderCreatedEvent) error {
	r.created = append(r.created, event)
	return r.fail
}

func (r *recordingService) OrderCancelled(_ context.Context, event *payloads.OrderCancelledEvent) error {
	r.cancelled = append(r.cancelled, event)
	return r.fail
}

func (r *recordingService) PaymentSettled(_ context.Context, event *payloads.PaymentSettledEvent) error {
	r.settled = append(r.settled, event)
	return r.fail
}

func (r *recordingService) PaymentRefunded(_ context.Context, event *payloads.PaymentRefundedEvent) error {
	r.refunded = append(r.refunded, event)
	return r.fail
}

type memoryGuard struct {
	seen map[string]bool
	err  error
}

func (m *memoryGuard) CheckAndMarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	key := consumer + ":" + eventID
	if m.seen[key] {
		return true, nil
	}
	m.seen[key] = true
	return false, nil
}

func (m *memoryGuard) Delete(_ context.Context, consumer, eventID string) error {
	delete(m.seen, consumer+":"+eventID)
	return nil
}

func newTestConsumer(svc Service, guard idempotencyGuard) *Consumer {
	return &Consumer{
		svc:         svc,
		decoders:    outbox.DefaultDecoders(),
		idempotency: guard,
		logg:        logger.NewNop(),
	}
}

func envelopeMessage(t *testing.T, data any) []byte {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       payload,
	}
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)
	return raw
}

func TestProcessDispatchesPaymentSettled(t *testing.T) {
	t.Parallel()

	svc := &recordingService{}
	consumer := newTestConsumer(svc, &memoryGuard{})

	raw := envelopeMessage(t, payloads.PaymentSettledEvent{
		PaymentID:   uuid.NewString(),
		OrderID:     uuid.NewString(),
		Reference:   "mkp_ref",
		AmountCents: 3150,
		VendorCuts: []payloads.VendorShareSlip{
			{VendorID: uuid.NewString(), SharePercent: 38, AmountCents: 1197},
		},
	})
	attrs := map[string]string{"event_type": string(enums.EventPaymentSettled)}

	result := consumer.process(context.Background(), "m1", attrs, raw)
	assert.True(t, result.ack)
	require.Len(t, svc.settled, 1)
	assert.Equal(t, int64(3150), svc.settled[0].AmountCents)
}

func TestProcessSkipsDuplicateDeliveries(t *testing.T) {
	t.Parallel()

	svc := &recordingService{}
	consumer := newTestConsumer(svc, &memoryGuard{})

	raw := envelopeMessage(t, payloads.OrderCreatedEvent{OrderID: uuid.NewString()})
	attrs := map[string]string{"event_type": string(enums.EventOrderCreated)}

	first := consumer.process(context.Background(), "m1", attrs, raw)
	second := consumer.process(context.Background(), "m1-redelivery", attrs, raw)

	assert.True(t, first.ack)
	assert.True(t, second.ack)
	assert.Len(t, svc.created, 1)
}

func TestProcessNacksOnHandlerFailure(t *testing.T) {
	t.Parallel()

	svc := &recordingService{fail: errors.New("downstream unavailable")}
	guard := &memoryGuard{}
	consumer := newTestConsumer(svc, guard)

	raw := envelopeMessage(t, payloads.OrderCancelledEvent{OrderID: uuid.NewString()})
	attrs := map[string]string{"event_type": string(enums.EventOrderCancelled)}

	result := consumer.process(context.Background(), "m1", attrs, raw)
	require.True(t, result.nack)

	// guard entry released so the redelivery can retry
	svc.fail = nil
	retry := consumer.process(context.Background(), "m1-retry", attrs, raw)
	assert.True(t, retry.ack)
	assert.Len(t, svc.cancelled, 2)
}

func TestProcessAcksMalformedPayloads(t *testing.T) {
	t.Parallel()

	svc := &recordingService{}
	consumer := newTestConsumer(svc, &memoryGuard{})

	result := consumer.process(context.Background(), "m1",
		map[string]string{"event_type": "order.created"}, []byte("not json"))
	assert.True(t, result.ack)
	assert.Empty(t, svc.created)
}

func TestProcessNacksWhenGuardUnavailable(t *testing.T) {
	t.Parallel()

	svc := &recordingService{}
	consumer := newTestConsumer(svc, &memoryGuard{err: errors.New("redis down")})

	raw := envelopeMessage(t, payloads.OrderCreatedEvent{OrderID: uuid.NewString()})
	attrs := map[string]string{"event_type": string(enums.EventOrderCreated)}

	result := consumer.process(context.Background(), "m1", attrs, raw)
	assert.True(t, result.nack)
	assert.Empty(t, svc.created)
}
