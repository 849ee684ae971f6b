package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/pagination"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  title TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  stock_qty INTEGER NOT NULL DEFAULT 0,
  visible INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS inventory_logs (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  change TEXT NOT NULL,
  qty INTEGER NOT NULL,
  stock_before INTEGER NOT NULL,
  stock_after INTEGER NOT NULL,
  reason TEXT NOT NULL,
  reference TEXT NOT NULL,
  created_at DATETIME
);`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), &testTxRunner{db: db}, logger.NewNop())
	require.NoError(t, err)
	return svc
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		StoreID:    uuid.New(),
		Title:      "test product",
		PriceCents: 1000,
		StockQty:   stock,
	}
	require.NoError(t, db.Create(&product).Error)
	return product.ID
}

func TestReserveDecrementsStockAndLogs(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	productID := seedProduct(t, db, 50)
	reference := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, reference, []Reservation{{ProductID: productID, Qty: 2}})
	})
	require.NoError(t, err)

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	assert.Equal(t, 48, product.StockQty)

	var entry models.InventoryLog
	require.NoError(t, db.First(&entry, "reference = ?", reference).Error)
	assert.Equal(t, enums.InventoryChangeReserved, entry.Change)
	assert.Equal(t, 2, entry.Qty)
	assert.Equal(t, 50, entry.StockBefore)
	assert.Equal(t, 48, entry.StockAfter)
}

func TestReserveInsufficientStockRollsBack(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	plentiful := seedProduct(t, db, 10)
	scarce := seedProduct(t, db, 1)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, uuid.New(), []Reservation{
			{ProductID: plentiful, Qty: 3},
			{ProductID: scarce, Qty: 2},
		})
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	short, ok := typed.Details().(ShortItem)
	require.True(t, ok)
	assert.Equal(t, scarce, short.ProductID)
	assert.Equal(t, 2, short.Requested)
	assert.Equal(t, 1, short.Available)

	// the whole reservation rolled back, including the line that fit
	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", plentiful).Error)
	assert.Equal(t, 10, product.StockQty)

	var count int64
	require.NoError(t, db.Model(&models.InventoryLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReserveHiddenProductRefused(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	productID := seedProduct(t, db, 10)
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", productID).Update("visible", false).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, uuid.New(), []Reservation{{ProductID: productID, Qty: 1}})
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	assert.Equal(t, 10, product.StockQty)

	var count int64
	require.NoError(t, db.Model(&models.InventoryLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReserveUnknownProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, uuid.New(), []Reservation{{ProductID: uuid.New(), Qty: 1}})
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReleaseIsIdempotentPerReference(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	productID := seedProduct(t, db, 50)
	reference := uuid.New()
	items := []Reservation{{ProductID: productID, Qty: 2}}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, reference, items)
	}))

	for i := 0; i < 2; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.Release(context.Background(), tx, reference, items, "order cancelled")
		}))
	}

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	assert.Equal(t, 50, product.StockQty)

	var count int64
	require.NoError(t, db.Model(&models.InventoryLog{}).
		Where("reference = ? AND change = ?", reference, enums.InventoryChangeReleased).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRestockAndReconstruct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	productID := seedProduct(t, db, 0)
	ctx := context.Background()

	require.NoError(t, svc.Restock(ctx, productID, 50, "initial stock"))

	reference := uuid.New()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, reference, []Reservation{{ProductID: productID, Qty: 8}})
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Release(ctx, tx, reference, []Reservation{{ProductID: productID, Qty: 8}}, "order cancelled")
	}))

	replayed, err := svc.ReconstructStock(ctx, productID)
	require.NoError(t, err)

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	assert.Equal(t, product.StockQty, replayed)
	assert.Equal(t, 50, replayed)
}

func TestHistoryPagination(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	productID := seedProduct(t, db, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Restock(ctx, productID, 10, "batch"))
	}

	page, next, err := svc.History(ctx, productID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	require.NotEmpty(t, next)

	rest, last, err := svc.History(ctx, productID, pagination.Params{Limit: 2, Cursor: next})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.Empty(t, last)
}
