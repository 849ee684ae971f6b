package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Reservation is one product take requested during checkout.
type Reservation struct {
	ProductID uuid.UUID
	Qty       int
}

// ShortItem describes a line that could not be reserved.
type ShortItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Service owns all stock movements. Product stock is never written outside
// this package.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, reference uuid.UUID, items []Reservation) error
	Release(ctx context.Context, tx *gorm.DB, reference uuid.UUID, items []Reservation, reason string) error
	Restock(ctx context.Context, productID uuid.UUID, qty int, reason string) error
	ReconstructStock(ctx context.Context, productID uuid.UUID) (int, error)
	History(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.InventoryLog, string, error)
}

type service struct {
	repo LedgerRepository
	tx   txRunner
	logg *logger.Logger
}

// NewService builds the inventory service.
func NewService(repo LedgerRepository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// Reserve takes stock for every line or none. It must run inside the
// caller's transaction so a later failure rolls the decrements back.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, reference uuid.UUID, items []Reservation) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if reference == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation reference is required")
	}
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "nothing to reserve")
	}

	repo := s.repo.WithTx(tx)
	for _, item := range items {
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "reservation qty must be positive")
		}

		taken, err := repo.DecrementStock(ctx, item.ProductID, item.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !taken {
			available, err := repo.CurrentStock(ctx, item.ProductID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock")
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			shortCtx := s.logg.WithFields(ctx, map[string]any{
				"product_id": item.ProductID.String(),
				"requested":  item.Qty,
				"available":  available,
			})
			s.logg.Warn(shortCtx, "reservation short on stock")
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(ShortItem{ProductID: item.ProductID, Requested: item.Qty, Available: available})
		}

		after, err := repo.CurrentStock(ctx, item.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock")
		}
		entry := &models.InventoryLog{
			ProductID:   item.ProductID,
			Change:      enums.InventoryChangeReserved,
			Qty:         item.Qty,
			StockBefore: after + item.Qty,
			StockAfter:  after,
			Reason:      "order reservation",
			Reference:   reference,
		}
		if err := repo.AppendLog(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}
	}
	return nil
}

// Release returns reserved stock for a cancelled order. Calling it twice
// with the same reference is a no-op: the ledger entry for the
// (product, reference, released) triple acts as the idempotency record.
func (s *service) Release(ctx context.Context, tx *gorm.DB, reference uuid.UUID, items []Reservation, reason string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if reference == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "release reference is required")
	}
	if reason == "" {
		reason = "order release"
	}

	repo := s.repo.WithTx(tx)
	for _, item := range items {
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "release qty must be positive")
		}

		released, err := repo.HasEntry(ctx, item.ProductID, reference, enums.InventoryChangeReleased)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check release entry")
		}
		if released {
			continue
		}

		returned, err := repo.IncrementStock(ctx, item.ProductID, item.Qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
		}
		if !returned {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}

		after, err := repo.CurrentStock(ctx, item.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock")
		}
		entry := &models.InventoryLog{
			ProductID:   item.ProductID,
			Change:      enums.InventoryChangeReleased,
			Qty:         item.Qty,
			StockBefore: after - item.Qty,
			StockAfter:  after,
			Reason:      reason,
			Reference:   reference,
		}
		if err := repo.AppendLog(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
		}
	}
	return nil
}

// Restock adds vendor-supplied units in its own transaction.
func (s *service) Restock(ctx context.Context, productID uuid.UUID, qty int, reason string) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "restock qty must be positive")
	}
	if reason == "" {
		reason = "vendor restock"
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		added, err := repo.IncrementStock(ctx, productID, qty)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
		}
		if !added {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}

		after, err := repo.CurrentStock(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stock")
		}
		return repo.AppendLog(ctx, &models.InventoryLog{
			ProductID:   productID,
			Change:      enums.InventoryChangeRestock,
			Qty:         qty,
			StockBefore: after - qty,
			StockAfter:  after,
			Reason:      reason,
			Reference:   uuid.New(),
		})
	})
}

// ReconstructStock replays the full ledger for a product. The result must
// equal the product's stock_qty; a mismatch means someone wrote stock
// outside the ledger.
func (s *service) ReconstructStock(ctx context.Context, productID uuid.UUID) (int, error) {
	total, err := s.repo.SumDeltas(ctx, productID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay ledger")
	}
	return total, nil
}

// History lists the ledger for a product, newest first.
func (s *service) History(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.InventoryLog, string, error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	rows, err := s.repo.ListLogs(ctx, productID, cursor, params.Limit)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger")
	}

	page, next := pagination.Page(rows, params.Limit, func(row models.InventoryLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}
