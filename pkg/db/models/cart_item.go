package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem holds one (customer, product) line. Quantity merges on re-add;
// the row is deleted on checkout success or explicit removal.
type CartItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:ux_cart_items_customer_product"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_cart_items_customer_product"`
	Qty        int       `gorm:"column:qty;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
