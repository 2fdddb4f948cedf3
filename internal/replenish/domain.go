package replenish

import "github.com/shopspring/decimal"

// Planning constants. Lead time is how long a purchase order takes to
// arrive; the cycle is how often orders are placed; the shelf cap bounds
// how many units of one product the store can hold.
const (
	LeadTimeDays = 2
	CycleDays    = 7
	MaxShelfCap  = 20
)

// Status labels a product's replenishment urgency.
type Status string

const (
	StatusCritical  Status = "CRITICAL"
	StatusReorder   Status = "REORDER"
	StatusOK        Status = "OK"
	StatusOverstock Status = "OVERSTOCK"
)

// Manual override values recognised on input. "do not buy" forces
// OVERSTOCK; "new" and "manual review" force OK.
const (
	OverrideDoNotBuy     = "do not buy"
	OverrideNew          = "new"
	OverrideManualReview = "manual review"
)

// sortPriority orders suggestions most-urgent first.
func (s Status) sortPriority() int {
	switch s {
	case StatusCritical:
		return 0
	case StatusReorder:
		return 1
	case StatusOK:
		return 2
	default:
		return 3
	}
}

// Item is the per-product input to the calculator. WeightedVelocity is a
// recent-weighted estimate of daily unit sales.
type Item struct {
	SKU                string          `json:"sku"`
	CurrentStock       int64           `json:"current_stock"`
	WeightedVelocity   decimal.Decimal `json:"weighted_velocity"`
	DynamicSafetyStock decimal.Decimal `json:"dynamic_safety_stock"`
	StatusOverride     string          `json:"status_override,omitempty"`
}

// Suggestion is the derived output for one product. Nothing here is
// persisted; it is recomputed on every request.
type Suggestion struct {
	SKU          string          `json:"sku"`
	Status       Status          `json:"status"`
	ReorderPoint decimal.Decimal `json:"reorder_point"`
	RawNeed      decimal.Decimal `json:"raw_need"`
	UncappedNeed int64           `json:"uncapped_need"`
	FinalBuyQty  int64           `json:"final_buy_qty"`
	IsCapped     bool            `json:"is_capped"`
}
