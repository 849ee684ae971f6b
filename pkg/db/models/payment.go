package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
)

// Payment is one charge attempt against an order, keyed by the
// provider-issued reference. The raw provider payload is kept as an opaque
// snapshot; business logic only reads the typed columns.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Reference       string              `gorm:"column:reference;not null;uniqueIndex:ux_payments_reference"`
	AmountCents     int64               `gorm:"column:amount_cents;not null"`
	Currency        string              `gorm:"column:currency;not null;default:'GHS'"`
	Provider        string              `gorm:"column:provider;not null;default:'paystack'"`
	Status          enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	ProviderPayload json.RawMessage     `gorm:"column:provider_payload;type:jsonb"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
