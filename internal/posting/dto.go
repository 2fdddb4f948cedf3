package posting

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleItem is one line of a sale. UnitPrice overrides the product's selling
// price when set; a zero value means "use the catalogue price". When
// ReservationID is set the sale consumes that hold instead of deducting
// free stock, and Qty must match the reserved quantity.
type SaleItem struct {
	ProductID     int64
	Qty           int64
	UnitPrice     decimal.Decimal
	ReservationID *uuid.UUID
}

// SaleInput describes a sale to post as one atomic unit across the stock
// and ledger engines.
type SaleInput struct {
	SaleID           uuid.UUID
	Items            []SaleItem
	PaymentAccountID int64
	PaymentMethod    string
	Description      string
	ActorID          int64
}

// Validate rejects structurally bad sales before any transaction opens.
func (in SaleInput) Validate() error {
	if len(in.Items) == 0 {
		return ErrNoItems
	}
	if in.PaymentAccountID == 0 {
		return ErrPaymentAccountRequired
	}
	for _, item := range in.Items {
		if item.ProductID == 0 {
			return ErrProductRequired
		}
		if item.Qty <= 0 {
			return ErrQuantityNotPositive
		}
		if item.UnitPrice.IsNegative() {
			return ErrNegativePrice
		}
	}
	return nil
}

// RestockItem is one line of a restock. NegotiatedCost is what was actually
// paid per unit; when zero it defaults to ListCost.
type RestockItem struct {
	ProductID      int64
	Qty            int64
	ListCost       decimal.Decimal
	NegotiatedCost decimal.Decimal
}

// RestockInput describes a restock to post as one atomic unit.
type RestockInput struct {
	RestockID        uuid.UUID
	Items            []RestockItem
	PaymentAccountID int64
	PaymentMethod    string
	Description      string
	ActorID          int64
}

// Validate rejects structurally bad restocks before any transaction opens.
func (in RestockInput) Validate() error {
	if len(in.Items) == 0 {
		return ErrNoItems
	}
	if in.PaymentAccountID == 0 {
		return ErrPaymentAccountRequired
	}
	for _, item := range in.Items {
		if item.ProductID == 0 {
			return ErrProductRequired
		}
		if item.Qty <= 0 {
			return ErrQuantityNotPositive
		}
		if !item.ListCost.IsPositive() {
			return ErrCostNotPositive
		}
		if item.NegotiatedCost.IsNegative() {
			return ErrNegativePrice
		}
		if !item.NegotiatedCost.IsZero() && item.NegotiatedCost.GreaterThan(item.ListCost) {
			return ErrNegotiatedAboveList
		}
	}
	return nil
}

// SaleResult reports the posted sale.
type SaleResult struct {
	SaleID  uuid.UUID       `json:"sale_id"`
	GroupID uuid.UUID       `json:"group_id"`
	Total   decimal.Decimal `json:"total"`
}

// RestockResult reports the posted restock.
type RestockResult struct {
	RestockID uuid.UUID       `json:"restock_id"`
	GroupID   uuid.UUID       `json:"group_id"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	Savings   decimal.Decimal `json:"savings"`
}
