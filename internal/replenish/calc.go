package replenish

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Compute derives a buy suggestion per item and returns them sorted
// most-urgent first. Pure: no I/O, no clock, same input same output.
func Compute(items []Item) []Suggestion {
	out := make([]Suggestion, 0, len(items))
	for _, item := range items {
		out = append(out, computeOne(item))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Status.sortPriority() < out[j].Status.sortPriority()
	})
	return out
}

func computeOne(item Item) Suggestion {
	stock := decimal.NewFromInt(item.CurrentStock)
	reorderPoint := item.WeightedVelocity.Mul(decimal.NewFromInt(LeadTimeDays)).Add(item.DynamicSafetyStock)

	s := Suggestion{SKU: item.SKU, ReorderPoint: reorderPoint, RawNeed: decimal.Zero}

	// Manual overrides win over every computed threshold.
	switch item.StatusOverride {
	case OverrideDoNotBuy:
		s.Status = StatusOverstock
		return s
	case OverrideNew, OverrideManualReview:
		s.Status = StatusOK
		return s
	}

	switch {
	case stock.LessThanOrEqual(item.WeightedVelocity):
		s.Status = StatusCritical
	case stock.LessThanOrEqual(reorderPoint):
		s.Status = StatusReorder
	case item.CurrentStock > MaxShelfCap:
		s.Status = StatusOverstock
		return s
	default:
		s.Status = StatusOK
		return s
	}

	// CRITICAL or REORDER: size the buy to cover one order cycle past the
	// reorder point, then cap it to the shelf space left.
	idealTarget := reorderPoint.Add(item.WeightedVelocity.Mul(decimal.NewFromInt(CycleDays)))
	rawNeed := decimal.Max(decimal.Zero, idealTarget.Sub(stock))
	spaceToCap := decimal.Max(decimal.Zero, decimal.NewFromInt(MaxShelfCap).Sub(stock))

	s.RawNeed = rawNeed
	s.UncappedNeed = rawNeed.Ceil().IntPart()
	s.FinalBuyQty = decimal.Min(rawNeed, spaceToCap).Ceil().IntPart()
	s.IsCapped = rawNeed.GreaterThan(spaceToCap)
	return s
}
