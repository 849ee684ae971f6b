package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
)

// VendorPayout is one vendor's settled share of one order. The (vendor,
// order) pair is unique so webhook redelivery cannot duplicate payouts.
type VendorPayout struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID    uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:ux_vendor_payouts_vendor_order"`
	StoreID     uuid.UUID          `gorm:"column:store_id;type:uuid;not null"`
	OrderID     uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_vendor_payouts_vendor_order"`
	AmountCents int64              `gorm:"column:amount_cents;not null"`
	Status      enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
