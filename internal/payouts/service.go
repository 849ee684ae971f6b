package payouts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/internal/payments"
	"github.com/Joelisking/marketplace-api-sub000/pkg/db/models"
	"github.com/Joelisking/marketplace-api-sub000/pkg/enums"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
	"github.com/Joelisking/marketplace-api-sub000/pkg/logger"
	"github.com/Joelisking/marketplace-api-sub000/pkg/pagination"
)

// Service opens payout rows at settlement time and tracks their completion.
type Service interface {
	OpenForSettlement(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, shares []payments.VendorShare) (int, error)
	Get(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
	ListForVendor(ctx context.Context, vendorID uuid.UUID, status *enums.PayoutStatus, params pagination.Params) ([]models.VendorPayout, string, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorPayout, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
}

type service struct {
	repo PayoutRepository
	logg *logger.Logger
}

// NewService builds the payout service.
func NewService(repo PayoutRepository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// OpenForSettlement writes one pending payout per vendor share inside the
// caller's settlement transaction. The (vendor, order) unique constraint makes
// a second settlement delivery insert nothing.
func (s *service) OpenForSettlement(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, shares []payments.VendorShare) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "settlement transaction required")
	}
	if len(shares) == 0 {
		return 0, nil
	}

	rows := make([]models.VendorPayout, 0, len(shares))
	for _, share := range shares {
		rows = append(rows, models.VendorPayout{
			ID:          uuid.New(),
			VendorID:    share.VendorID,
			StoreID:     share.StoreID,
			OrderID:     orderID,
			AmountCents: share.AmountCents,
			Status:      enums.PayoutStatusPending,
		})
	}

	opened, err := s.repo.WithTx(tx).InsertIgnoringDuplicates(ctx, rows)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open payouts")
	}
	if opened > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "opened": opened})
		s.logg.Info(logCtx, "vendor payouts opened")
	}
	return opened, nil
}

// Get loads one payout.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	payout, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

// ListForVendor pages through a vendor's payouts, optionally by status.
func (s *service) ListForVendor(ctx context.Context, vendorID uuid.UUID, status *enums.PayoutStatus, params pagination.Params) ([]models.VendorPayout, string, error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	rows, err := s.repo.ListForVendor(ctx, vendorID, status, cursor, params.Limit)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	page, next := pagination.Page(rows, params.Limit, func(row models.VendorPayout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

// ListForOrder returns the payouts opened when an order settled.
func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorPayout, error) {
	rows, err := s.repo.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return rows, nil
}

// MarkCompleted records that the external payout worker paid the vendor.
func (s *service) MarkCompleted(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	return s.transition(ctx, id, enums.PayoutStatusPending, enums.PayoutStatusCompleted)
}

// MarkFailed records a payout the worker could not complete.
func (s *service) MarkFailed(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	return s.transition(ctx, id, enums.PayoutStatusPending, enums.PayoutStatusFailed)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus) (*models.VendorPayout, error) {
	moved, err := s.repo.TransitionStatus(ctx, id, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition payout")
	}
	if !moved {
		payout, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payout is %s, not %s", payout.Status, from))
	}
	return s.repo.FindByID(ctx, id)
}
