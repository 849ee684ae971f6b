package payments

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
)

// PaymentRepository defines the persistence surface required by the payment service.
type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository
	Create(ctx context.Context, payment *models.Payment) error
	FindByReference(ctx context.Context, reference string) (*models.Payment, error)
	TransitionStatus(ctx context.Context, reference string, from, to enums.PaymentStatus, payload json.RawMessage) (bool, error)
	VendorContributions(ctx context.Context, orderID uuid.UUID) ([]VendorContribution, error)
}

// Repository is the gorm-backed payment store.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a payment repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) PaymentRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a payment row.
func (r *Repository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payment).Error
}

// FindByReference loads a payment by its provider reference.
func (r *Repository) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		First(&payment, "reference = ?", reference).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// TransitionStatus moves a payment between states with a compare-and-set so
// concurrent deliveries of the same event cannot double-apply. The returned
// bool reports whether this caller won the transition.
func (r *Repository) TransitionStatus(ctx context.Context, reference string, from, to enums.PaymentStatus, payload json.RawMessage) (bool, error) {
	updates := map[string]any{"status": to}
	if len(payload) > 0 {
		updates["provider_payload"] = payload
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("reference = ? AND status = ?", reference, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// VendorContributions groups an order's line totals by owning store. The
// query is general over N stores even though orders are single-store today.
func (r *Repository) VendorContributions(ctx context.Context, orderID uuid.UUID) ([]VendorContribution, error) {
	type row struct {
		VendorID       uuid.UUID
		StoreID        uuid.UUID
		SubaccountCode *string
		SubtotalCents  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select(`stores.owner_id AS vendor_id,
stores.id AS store_id,
stores.subaccount_code,
SUM(order_items.line_total_cents) AS subtotal_cents`).
		Joins("JOIN products ON products.id = order_items.product_id").
		Joins("JOIN stores ON stores.id = products.store_id").
		Where("order_items.order_id = ?", orderID).
		Group("stores.owner_id, stores.id, stores.subaccount_code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	contributions := make([]VendorContribution, 0, len(rows))
	for _, r := range rows {
		subaccount := ""
		if r.SubaccountCode != nil {
			subaccount = *r.SubaccountCode
		}
		contributions = append(contributions, VendorContribution{
			VendorID:       r.VendorID,
			StoreID:        r.StoreID,
			SubaccountCode: subaccount,
			SubtotalCents:  r.SubtotalCents,
		})
	}
	return contributions, nil
}
