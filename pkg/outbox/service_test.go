package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	"github.com/Joelisking/marketplace-api-sub000/pkg/outbox/payloads"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(ddl).Error)
	return db
}

func TestEmitWrapsPayloadInEnvelope(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	orderID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCreatedEvent{OrderID: orderID.String(), TotalCents: 3150},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "aggregate_id = ?", orderID).Error)
	assert.Equal(t, enums.EventOrderCreated, row.EventType)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.False(t, envelope.OccurredAt.IsZero())

	var data payloads.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, int64(3150), data.TotalCents)
}

func TestEmitIfNotExistsSuppressesDuplicates(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	paymentID := uuid.New()

	event := DomainEvent{
		EventType:     enums.EventPaymentSettled,
		AggregateType: enums.AggregatePayment,
		AggregateID:   paymentID,
		Data:          payloads.PaymentSettledEvent{PaymentID: paymentID.String()},
	}

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		})
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", paymentID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryPublishCycle(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)

	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.Insert(tx, row)
	}))

	pending, err := repo.FetchUnpublished(10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.MarkFailed(row.ID, errors.New("publish timeout")))

	capped, err := repo.FetchUnpublished(10, 1)
	require.NoError(t, err)
	assert.Empty(t, capped)

	require.NoError(t, repo.MarkPublished(row.ID))

	pending, err = repo.FetchUnpublished(10, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var stored models.OutboxEvent
	require.NoError(t, db.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, 1, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "publish timeout", *stored.LastError)

	pruned, err := repo.DeletePublishedBefore(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestDefaultDecoders(t *testing.T) {
	t.Parallel()

	registry := DefaultDecoders()

	decoded, err := registry.Decode(enums.EventPaymentSettled, 1, json.RawMessage(`{"payment_id":"p1","amount_cents":3150}`))
	require.NoError(t, err)
	event, ok := decoded.(*payloads.PaymentSettledEvent)
	require.True(t, ok)
	assert.Equal(t, int64(3150), event.AmountCents)

	_, err = registry.Decode(enums.EventPaymentSettled, 2, json.RawMessage(`{}`))
	assert.Error(t, err)
}
