package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LegInput describes one leg of a posting request.
type LegInput struct {
	AccountID   int64
	Amount      decimal.Decimal
	RelatedTxID *int64
}

// PostingInput groups fields required to post a balanced group.
type PostingInput struct {
	Type          GroupType
	PaymentMethod string
	Description   string
	Notes         string
	Reference     string
	ActorID       int64
	Legs          []LegInput
}

// Validate rejects malformed groups before any transaction opens. The
// zero-sum check is exact decimal arithmetic, never floating point.
func (in PostingInput) Validate() error {
	if in.Type == "" {
		return fmt.Errorf("ledger: group type required")
	}
	if len(in.Legs) < 2 {
		return ErrTooFewLegs
	}
	sum := decimal.Zero
	for idx, leg := range in.Legs {
		if leg.AccountID == 0 {
			return fmt.Errorf("ledger: leg %d missing account", idx)
		}
		if leg.Amount.IsZero() {
			return ErrZeroAmountLeg
		}
		sum = sum.Add(leg.Amount)
	}
	if !sum.IsZero() {
		return ErrUnbalanced
	}
	return nil
}

// ReverseInput wraps parameters for reversing a group.
type ReverseInput struct {
	TransactionID int64
	ActorID       int64
	Reason        string
}

// TransferInput wraps parameters for moving money between two accounts.
type TransferInput struct {
	SourceID      int64
	DestinationID int64
	Amount        decimal.Decimal
	Description   string
	PaymentMethod string
	ActorID       int64
}

// MetadataInput carries the only leg fields that may change after posting.
type MetadataInput struct {
	TransactionID int64
	Description   *string
	Notes         *string
	Reference     *string
	ActorID       int64
}
