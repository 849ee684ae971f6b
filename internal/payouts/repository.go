package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	"github.com/Joelisking/marketplace-api-sub000/pkg/pagination"
)

// PayoutRepository defines the persistence surface for vendor payouts.
type PayoutRepository interface {
	WithTx(tx *gorm.DB) PayoutRepository
	InsertIgnoringDuplicates(ctx context.Context, rows []models.VendorPayout) (int, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, status *enums.PayoutStatus, cursor *pagination.Cursor, limit int) ([]models.VendorPayout, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorPayout, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus) (bool, error)
}

// Repository is the gorm-backed payout store.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a payout repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) PayoutRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// InsertIgnoringDuplicates writes payout rows, skipping any (vendor, order)
// pair that already has one. Returns the number of rows actually inserted,
// which is how settlement redelivery stays payout-safe.
func (r *Repository) InsertIgnoringDuplicates(ctx context.Context, rows []models.VendorPayout) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vendor_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// FindByID loads one payout row.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	var payout models.VendorPayout
	err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListForVendor pages through a vendor's payouts, newest first.
func (r *Repository) ListForVendor(ctx context.Context, vendorID uuid.UUID, status *enums.PayoutStatus, cursor *pagination.Cursor, limit int) ([]models.VendorPayout, error) {
	query := r.db.WithContext(ctx).
		Model(&models.VendorPayout{}).
		Where("vendor_id = ?", vendorID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.VendorPayout
	err := pagination.Apply(query, cursor, limit).Find(&rows).Error
	return rows, err
}

// ListForOrder returns every payout opened for an order.
func (r *Repository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorPayout, error) {
	var rows []models.VendorPayout
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// TransitionStatus moves a payout between states with a compare-and-set.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorPayout{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
