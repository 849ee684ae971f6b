package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
)

// Line is a cart item joined with the product fields pricing needs.
type Line struct {
	ItemID     uuid.UUID
	ProductID  uuid.UUID
	StoreID    uuid.UUID
	VendorID   uuid.UUID
	Title      string
	Qty        int
	PriceCents int64
	StockQty   int
	Visible    bool
}

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	LoadProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	CurrentQty(ctx context.Context, customerID, productID uuid.UUID) (int, error)
	UpsertItem(ctx context.Context, customerID, productID uuid.UUID, qty int) error
	SetQty(ctx context.Context, customerID, productID uuid.UUID, qty int) (bool, error)
	RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (bool, error)
	Clear(ctx context.Context, customerID uuid.UUID) error
	Lines(ctx context.Context, customerID uuid.UUID) ([]Line, error)
}

// Repository is the gorm-backed cart store.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// LoadProduct fetches one product row.
func (r *Repository) LoadProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// CurrentQty reads the quantity already carted for a product, zero when the
// line does not exist.
func (r *Repository) CurrentQty(ctx context.Context, customerID, productID uuid.UUID) (int, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Select("qty").
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return item.Qty, nil
}

// UpsertItem inserts a cart line or merges the quantity into an existing
// one. The (customer, product) unique index makes the merge race-safe.
func (r *Repository) UpsertItem(ctx context.Context, customerID, productID uuid.UUID, qty int) error {
	item := models.CartItem{
		ID:         uuid.New(),
		CustomerID: customerID,
		ProductID:  productID,
		Qty:        qty,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"qty": gorm.Expr("cart_items.qty + ?", qty)}),
		}).
		Create(&item).Error
}

// SetQty overwrites the quantity of an existing line.
func (r *Repository) SetQty(ctx context.Context, customerID, productID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		Update("qty", qty)
	return res.RowsAffected == 1, res.Error
}

// RemoveItem deletes one line.
func (r *Repository) RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("customer_id = ? AND product_id = ?", customerID, productID).
		Delete(&models.CartItem{})
	return res.RowsAffected == 1, res.Error
}

// Clear deletes every line for the customer.
func (r *Repository) Clear(ctx context.Context, customerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Delete(&models.CartItem{}).Error
}

// Lines loads the customer's cart joined with current product data, in
// insertion order.
func (r *Repository) Lines(ctx context.Context, customerID uuid.UUID) ([]Line, error) {
	var rows []Line
	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select(`cart_items.id AS item_id,
cart_items.product_id,
products.store_id,
stores.owner_id AS vendor_id,
products.title,
cart_items.qty,
products.price_cents,
products.stock_qty,
products.visible`).
		Joins("JOIN products ON products.id = cart_items.product_id").
		Joins("JOIN stores ON stores.id = products.store_id").
		Where("cart_items.customer_id = ?", customerID).
		Order("cart_items.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
