package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
)

// Order is a single-store order produced from a checkout. Orders are never
// deleted; the lifecycle is expressed entirely through status transitions.
type Order struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID      uuid.UUID                `gorm:"column:customer_id;type:uuid;not null;index"`
	StoreID         uuid.UUID                `gorm:"column:store_id;type:uuid;not null;index"`
	Status          enums.OrderStatus        `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus   enums.OrderPaymentStatus `gorm:"column:payment_status;type:order_payment_status;not null;default:'unpaid'"`
	Currency        string                   `gorm:"column:currency;not null;default:'GHS'"`
	SubtotalCents   int64                    `gorm:"column:subtotal_cents;not null"`
	TaxCents        int64                    `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents   int64                    `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents   int64                    `gorm:"column:discount_cents;not null;default:0"`
	TotalCents      int64                    `gorm:"column:total_cents;not null"`
	ShippingAddress json.RawMessage          `gorm:"column:shipping_address;type:jsonb"`
	BillingAddress  json.RawMessage          `gorm:"column:billing_address;type:jsonb"`
	CancelReason    *string                  `gorm:"column:cancel_reason"`
	DeliveredAt     *time.Time               `gorm:"column:delivered_at"`
	CancelledAt     *time.Time               `gorm:"column:cancelled_at"`
	Items           []OrderItem              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments        []Payment                `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
