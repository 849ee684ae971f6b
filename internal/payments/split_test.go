package payments

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/Joelisking/marketplace-api-sub000/pkg/errors"
)

func contribution(subtotal int64) VendorContribution {
	return VendorContribution{
		VendorID:       uuid.New(),
		StoreID:        uuid.New(),
		SubaccountCode: "ACCT_" + uuid.NewString()[:8],
		SubtotalCents:  subtotal,
	}
}

func TestCalculateSplitTwoVendors(t *testing.T) {
	t.Parallel()

	// items subtotal 2000 (1200 + 800), total 3150 after tax and shipping
	split, err := CalculateSplit(3150, []VendorContribution{
		contribution(1200),
		contribution(800),
	})
	require.NoError(t, err)

	require.Len(t, split.Vendors, 2)
	assert.Equal(t, int64(38), split.Vendors[0].SharePercent)
	assert.Equal(t, int64(25), split.Vendors[1].SharePercent)
	assert.Equal(t, int64(37), split.PlatformSharePercent)

	assert.Equal(t, int64(1197), split.Vendors[0].AmountCents)
	assert.Equal(t, int64(788), split.Vendors[1].AmountCents)

	var amountSum int64
	for _, v := range split.Vendors {
		amountSum += v.AmountCents
	}
	assert.Equal(t, split.TotalCents, amountSum+split.PlatformAmountCents)
}

func TestCalculateSplitSingleVendor(t *testing.T) {
	t.Parallel()

	split, err := CalculateSplit(3150, []VendorContribution{contribution(2000)})
	require.NoError(t, err)

	require.Len(t, split.Vendors, 1)
	// 2000/3150 = 63.49% -> 63
	assert.Equal(t, int64(63), split.Vendors[0].SharePercent)
	assert.Equal(t, int64(37), split.PlatformSharePercent)
	assert.Equal(t, split.TotalCents, split.Vendors[0].AmountCents+split.PlatformAmountCents)
}

func TestCalculateSplitOverflow(t *testing.T) {
	t.Parallel()

	// each vendor rounds up past its exact share until the sum tops 100
	contributions := make([]VendorContribution, 0, 3)
	for i := 0; i < 3; i++ {
		contributions = append(contributions, contribution(1000))
	}

	// total below the items subtotal forces shares above 100
	_, err := CalculateSplit(2900, contributions)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSplitOverflow))
}

func TestCalculateSplitMissingSubaccountFailsClosed(t *testing.T) {
	t.Parallel()

	broken := contribution(800)
	broken.SubaccountCode = ""

	_, err := CalculateSplit(3150, []VendorContribution{contribution(1200), broken})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCalculateSplitInvalidInputs(t *testing.T) {
	t.Parallel()

	_, err := CalculateSplit(0, []VendorContribution{contribution(100)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = CalculateSplit(1000, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = CalculateSplit(1000, []VendorContribution{contribution(0)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
