package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Joelisking/marketplace-api-sub000/pkg/config"
	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
)

const maxLineQty = 999

// Summary is the priced view of a customer's cart.
type Summary struct {
	Items         []SummaryLine `json:"items"`
	Currency      string        `json:"currency"`
	SubtotalCents int64         `json:"subtotal_cents"`
	TaxCents      int64         `json:"tax_cents"`
	ShippingCents int64         `json:"shipping_cents"`
	TotalCents    int64         `json:"total_cents"`
}

// SummaryLine is one priced cart line.
type SummaryLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	StoreID        uuid.UUID `json:"store_id"`
	VendorID       uuid.UUID `json:"vendor_id"`
	Title          string    `json:"title"`
	Qty            int       `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

// LineIssue describes why a cart line cannot be checked out.
type LineIssue struct {
	ProductID uuid.UUID `json:"product_id"`
	Problem   string    `json:"problem"`
	Requested int       `json:"requested,omitempty"`
	Available int       `json:"available,omitempty"`
}

// Service exposes cart mutation and pricing operations.
type Service interface {
	AddItem(ctx context.Context, customerID, productID uuid.UUID, qty int) (*Summary, error)
	UpdateItem(ctx context.Context, customerID, productID uuid.UUID, qty int) (*Summary, error)
	RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*Summary, error)
	Clear(ctx context.Context, customerID uuid.UUID) error
	Summarize(ctx context.Context, customerID uuid.UUID) (*Summary, error)
	ValidateForCheckout(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) (*Summary, error)
	QuoteLines(lines []SummaryLine) *Summary
	RemoveLines(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, productIDs []uuid.UUID) error
}

type service struct {
	repo    CartRepository
	pricing config.PricingConfig
}

// NewService builds a cart service with the injected pricing policy.
func NewService(repo CartRepository, pricing config.PricingConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	return &service{repo: repo, pricing: pricing}, nil
}

// AddItem merges qty into the customer's cart line for the product.
func (s *service) AddItem(ctx context.Context, customerID, productID uuid.UUID, qty int) (*Summary, error) {
	if err := validateIDs(customerID, productID); err != nil {
		return nil, err
	}
	if qty <= 0 || qty > maxLineQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be between 1 and 999")
	}

	product, err := s.repo.LoadProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.Visible {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product unavailable")
	}

	existing, err := s.repo.CurrentQty(ctx, customerID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
	}
	if existing+qty > product.StockQty {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(LineIssue{
				ProductID: productID,
				Problem:   "insufficient stock",
				Requested: existing + qty,
				Available: product.StockQty,
			})
	}

	if err := s.repo.UpsertItem(ctx, customerID, productID, qty); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert cart item")
	}
	return s.Summarize(ctx, customerID)
}

// UpdateItem overwrites the line quantity with the same availability check
// as an add. Zero removes the line.
func (s *service) UpdateItem(ctx context.Context, customerID, productID uuid.UUID, qty int) (*Summary, error) {
	if err := validateIDs(customerID, productID); err != nil {
		return nil, err
	}
	if qty < 0 || qty > maxLineQty {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be between 0 and 999")
	}
	if qty == 0 {
		return s.RemoveItem(ctx, customerID, productID)
	}

	product, err := s.repo.LoadProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.Visible {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product unavailable")
	}
	if qty > product.StockQty {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(LineIssue{
				ProductID: productID,
				Problem:   "insufficient stock",
				Requested: qty,
				Available: product.StockQty,
			})
	}

	updated, err := s.repo.SetQty(ctx, customerID, productID, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.Summarize(ctx, customerID)
}

// RemoveItem deletes the line.
func (s *service) RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*Summary, error) {
	if err := validateIDs(customerID, productID); err != nil {
		return nil, err
	}
	removed, err := s.repo.RemoveItem(ctx, customerID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if !removed {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.Summarize(ctx, customerID)
}

// Clear empties the cart.
func (s *service) Clear(ctx context.Context, customerID uuid.UUID) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if err := s.repo.Clear(ctx, customerID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// Summarize prices the cart at current product prices.
func (s *service) Summarize(ctx context.Context, customerID uuid.UUID) (*Summary, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	lines, err := s.repo.Lines(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return s.price(lines), nil
}

// ValidateForCheckout re-prices the cart inside the checkout transaction and
// fails with an itemized report when any line is no longer purchasable.
// Stock is only probed here; the authoritative check is the conditional
// decrement during reservation.
func (s *service) ValidateForCheckout(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) (*Summary, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	lines, err := s.repo.WithTx(tx).Lines(ctx, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	var issues []LineIssue
	for _, line := range lines {
		switch {
		case !line.Visible:
			issues = append(issues, LineIssue{ProductID: line.ProductID, Problem: "product unavailable"})
		case line.StockQty < line.Qty:
			issues = append(issues, LineIssue{
				ProductID: line.ProductID,
				Problem:   "insufficient stock",
				Requested: line.Qty,
				Available: line.StockQty,
			})
		}
	}
	if len(issues) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart failed checkout validation").
			WithDetails(issues)
	}
	return s.price(lines), nil
}

// QuoteLines re-prices an already-loaded subset of cart lines. Checkout uses
// it to total a single store's slice of the cart.
func (s *service) QuoteLines(lines []SummaryLine) *Summary {
	summary := &Summary{
		Items:    lines,
		Currency: s.pricing.Currency,
	}
	for _, line := range lines {
		summary.SubtotalCents += line.LineTotalCents
	}
	if summary.SubtotalCents > 0 {
		summary.TaxCents = taxFor(summary.SubtotalCents, s.pricing.TaxRateBasisPoints)
		summary.ShippingCents = s.pricing.ShippingFlatCents
	}
	summary.TotalCents = summary.SubtotalCents + summary.TaxCents + summary.ShippingCents
	return summary
}

// RemoveLines deletes the given products from the cart inside the checkout
// transaction, so the cart empties only if the order commits.
func (s *service) RemoveLines(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, productIDs []uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	for _, productID := range productIDs {
		if _, err := repo.RemoveItem(ctx, customerID, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart line")
		}
	}
	return nil
}

func (s *service) price(lines []Line) *Summary {
	summary := &Summary{
		Items:    make([]SummaryLine, 0, len(lines)),
		Currency: s.pricing.Currency,
	}
	for _, line := range lines {
		lineTotal := line.PriceCents * int64(line.Qty)
		summary.SubtotalCents += lineTotal
		summary.Items = append(summary.Items, SummaryLine{
			ProductID:      line.ProductID,
			StoreID:        line.StoreID,
			VendorID:       line.VendorID,
			Title:          line.Title,
			Qty:            line.Qty,
			UnitPriceCents: line.PriceCents,
			LineTotalCents: lineTotal,
		})
	}
	if summary.SubtotalCents > 0 {
		summary.TaxCents = taxFor(summary.SubtotalCents, s.pricing.TaxRateBasisPoints)
		summary.ShippingCents = s.pricing.ShippingFlatCents
	}
	summary.TotalCents = summary.SubtotalCents + summary.TaxCents + summary.ShippingCents
	return summary
}

// taxFor applies the basis-point rate with half-up rounding to whole cents.
func taxFor(subtotalCents int64, basisPoints int) int64 {
	if subtotalCents <= 0 || basisPoints <= 0 {
		return 0
	}
	rate := decimal.New(int64(basisPoints), -4)
	return decimal.NewFromInt(subtotalCents).Mul(rate).Round(0).IntPart()
}

func validateIDs(customerID, productID uuid.UUID) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return nil
}
