package replenish

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func item(sku string, stock int64, velocity, safety string) Item {
	return Item{
		SKU:                sku,
		CurrentStock:       stock,
		WeightedVelocity:   decimal.RequireFromString(velocity),
		DynamicSafetyStock: decimal.RequireFromString(safety),
	}
}

func TestComputeHealthyStockIsOK(t *testing.T) {
	out := Compute([]Item{item("SKU-1", 10, "2", "3")})
	require.Len(t, out, 1)

	s := out[0]
	require.Equal(t, StatusOK, s.Status)
	require.True(t, s.ReorderPoint.Equal(decimal.NewFromInt(7)))
	require.EqualValues(t, 0, s.FinalBuyQty)
	require.False(t, s.IsCapped)
}

func TestComputeCriticalCappedByShelfSpace(t *testing.T) {
	out := Compute([]Item{item("SKU-1", 1, "2", "3")})
	require.Len(t, out, 1)

	s := out[0]
	require.Equal(t, StatusCritical, s.Status)
	// ideal target 7 + 2x7 = 21, need 20, but only 19 units of shelf left.
	require.True(t, s.RawNeed.Equal(decimal.NewFromInt(20)))
	require.EqualValues(t, 20, s.UncappedNeed)
	require.EqualValues(t, 19, s.FinalBuyQty)
	require.True(t, s.IsCapped)
}

func TestComputeReorderBand(t *testing.T) {
	// stock 7 is above one day of cover (2) but at the reorder point.
	out := Compute([]Item{item("SKU-1", 7, "2", "3")})
	s := out[0]
	require.Equal(t, StatusReorder, s.Status)
	// ideal 21, need 14, space 13.
	require.EqualValues(t, 13, s.FinalBuyQty)
	require.True(t, s.IsCapped)
}

func TestComputeOverstockAboveShelfCap(t *testing.T) {
	out := Compute([]Item{item("SKU-1", 25, "2", "3")})
	require.Equal(t, StatusOverstock, out[0].Status)
	require.EqualValues(t, 0, out[0].FinalBuyQty)
}

func TestComputeFractionalVelocityRoundsUp(t *testing.T) {
	// velocity 1.5, safety 2: reorder point 5, stock 1 is critical.
	// ideal 5 + 10.5 = 15.5, need 14.5, space 19 -> buy ceil(14.5) = 15.
	out := Compute([]Item{item("SKU-1", 1, "1.5", "2")})
	s := out[0]
	require.Equal(t, StatusCritical, s.Status)
	require.EqualValues(t, 15, s.FinalBuyQty)
	require.False(t, s.IsCapped)
}

func TestComputeOverridesWin(t *testing.T) {
	critical := item("SKU-HOLD", 1, "2", "3")
	critical.StatusOverride = OverrideDoNotBuy
	fresh := item("SKU-NEW", 0, "0", "0")
	fresh.StatusOverride = OverrideNew
	review := item("SKU-REV", 1, "5", "5")
	review.StatusOverride = OverrideManualReview

	out := Compute([]Item{critical, fresh, review})
	byID := make(map[string]Suggestion)
	for _, s := range out {
		byID[s.SKU] = s
	}

	require.Equal(t, StatusOverstock, byID["SKU-HOLD"].Status)
	require.EqualValues(t, 0, byID["SKU-HOLD"].FinalBuyQty)
	require.Equal(t, StatusOK, byID["SKU-NEW"].Status)
	require.Equal(t, StatusOK, byID["SKU-REV"].Status)
}

func TestComputeSortsMostUrgentFirst(t *testing.T) {
	out := Compute([]Item{
		item("SKU-OVER", 25, "2", "3"),
		item("SKU-OK", 10, "2", "3"),
		item("SKU-CRIT", 1, "2", "3"),
		item("SKU-REORDER", 6, "2", "3"),
	})
	require.Len(t, out, 4)
	require.Equal(t, "SKU-CRIT", out[0].SKU)
	require.Equal(t, "SKU-REORDER", out[1].SKU)
	require.Equal(t, "SKU-OK", out[2].SKU)
	require.Equal(t, "SKU-OVER", out[3].SKU)
}
