package payments

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
)

// VendorContribution is one vendor's slice of an order's item subtotal.
type VendorContribution struct {
	VendorID       uuid.UUID
	StoreID        uuid.UUID
	SubaccountCode string
	SubtotalCents  int64
}

// VendorShare is the computed settlement share for one vendor.
type VendorShare struct {
	VendorID       uuid.UUID `json:"vendor_id"`
	StoreID        uuid.UUID `json:"store_id"`
	SubaccountCode string    `json:"subaccount_code"`
	SharePercent   int64     `json:"share_percent"`
	AmountCents    int64     `json:"amount_cents"`
}

// Split is the full division of an order total between vendors and platform.
type Split struct {
	TotalCents           int64         `json:"total_cents"`
	Vendors              []VendorShare `json:"vendors"`
	PlatformSharePercent int64         `json:"platform_share_percent"`
	PlatformAmountCents  int64         `json:"platform_amount_cents"`
}

// CalculateSplit derives integer percentage shares from each vendor's
// contribution to the order total. Each vendor share rounds half-up
// independently; the platform takes the residual percent and absorbs all
// rounding drift in its amount so the amounts always sum to the total.
//
// A vendor without a subaccount code fails the whole calculation: dropping
// the vendor would silently route their portion to the platform.
func CalculateSplit(totalCents int64, contributions []VendorContribution) (*Split, error) {
	if totalCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}
	if len(contributions) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one vendor contribution required")
	}

	total := decimal.NewFromInt(totalCents)
	vendors := make([]VendorShare, 0, len(contributions))
	var percentSum, amountSum int64

	for _, c := range contributions {
		if c.SubtotalCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor subtotal must be positive")
		}
		if c.SubaccountCode == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("vendor %s has no settlement subaccount", c.VendorID))
		}

		percent := decimal.NewFromInt(c.SubtotalCents).
			Mul(decimal.NewFromInt(100)).
			Div(total).
			Round(0).
			IntPart()
		amount := decimal.NewFromInt(totalCents).
			Mul(decimal.NewFromInt(percent)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()

		percentSum += percent
		amountSum += amount
		vendors = append(vendors, VendorShare{
			VendorID:       c.VendorID,
			StoreID:        c.StoreID,
			SubaccountCode: c.SubaccountCode,
			SharePercent:   percent,
			AmountCents:    amount,
		})
	}

	if percentSum > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeSplitOverflow,
			fmt.Sprintf("vendor shares sum to %d percent", percentSum))
	}

	return &Split{
		TotalCents:           totalCents,
		Vendors:              vendors,
		PlatformSharePercent: 100 - percentSum,
		PlatformAmountCents:  totalCents - amountSum,
	}, nil
}
