package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	"github.com/Joelisking/marketplace-api-sub000/pkg/pagination"
)

// LedgerRepository defines the persistence surface required by the inventory service.
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	CurrentStock(ctx context.Context, productID uuid.UUID) (int, error)
	AppendLog(ctx context.Context, entry *models.InventoryLog) error
	HasEntry(ctx context.Context, productID, reference uuid.UUID, change enums.InventoryChangeType) (bool, error)
	SumDeltas(ctx context.Context, productID uuid.UUID) (int, error)
	ListLogs(ctx context.Context, productID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryLog, error)
}

// Repository is the gorm-backed ledger store.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// DecrementStock atomically takes qty units if, and only if, the product is
// still visible and enough stock remains. The conditions run inside the
// UPDATE so concurrent reservations can never oversell and a just-hidden
// product is no longer reservable.
func (r *Repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_qty >= ? AND visible", productID, qty).
		UpdateColumn("stock_qty", gorm.Expr("stock_qty - ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementStock returns qty units to the product.
func (r *Repository) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock_qty", gorm.Expr("stock_qty + ?", qty))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CurrentStock reads the product's stock level.
func (r *Repository) CurrentStock(ctx context.Context, productID uuid.UUID) (int, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Select("stock_qty").
		First(&product, "id = ?", productID).Error
	if err != nil {
		return 0, err
	}
	return product.StockQty, nil
}

// AppendLog inserts one ledger entry. Entries are append-only.
func (r *Repository) AppendLog(ctx context.Context, entry *models.InventoryLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// HasEntry reports whether a ledger entry already exists for the given
// (product, reference, change) triple.
func (r *Repository) HasEntry(ctx context.Context, productID, reference uuid.UUID, change enums.InventoryChangeType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryLog{}).
		Where("product_id = ? AND reference = ? AND change = ?", productID, reference, change).
		Count(&count).Error
	return count > 0, err
}

// SumDeltas replays the ledger for a product: restocks and releases add,
// reservations subtract.
func (r *Repository) SumDeltas(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.InventoryLog{}).
		Select("COALESCE(SUM(CASE WHEN change = ? THEN -qty ELSE qty END), 0)", enums.InventoryChangeReserved).
		Where("product_id = ?", productID).
		Scan(&total).Error
	return int(total), err
}

// ListLogs returns ledger entries for a product, newest first.
func (r *Repository) ListLogs(ctx context.Context, productID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryLog, error) {
	query := r.db.WithContext(ctx).
		Model(&models.InventoryLog{}).
		Where("product_id = ?", productID)
	var rows []models.InventoryLog
	if err := pagination.Apply(query, cursor, limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
