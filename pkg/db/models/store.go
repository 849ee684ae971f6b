package models

import (
	"time"

	"github.com/google/uuid"
)

// Store is a vendor's settlement identity. The subaccount code comes from
// vendor onboarding; split calculation fails closed when it is missing.
type Store struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID        uuid.UUID `gorm:"column:owner_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	SubaccountCode *string   `gorm:"column:subaccount_code"`
	IsActive       bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
