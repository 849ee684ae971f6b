package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
)

// InventoryLog is the append-only audit trail of stock movements. Rows are
// never mutated or deleted; replaying the deltas reconstructs current stock.
type InventoryLog struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID   uuid.UUID                 `gorm:"column:product_id;type:uuid;not null;index"`
	Change      enums.InventoryChangeType `gorm:"column:change;type:inventory_change_type;not null"`
	Qty         int                       `gorm:"column:qty;not null"`
	StockBefore int                       `gorm:"column:stock_before;not null"`
	StockAfter  int                       `gorm:"column:stock_after;not null"`
	Reason      string                    `gorm:"column:reason;not null"`
	Reference   uuid.UUID                 `gorm:"column:reference;type:uuid;not null;index"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
