package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GroupType enumerates the financial event kinds a balanced group can carry.
type GroupType string

const (
	GroupTypeIncome   GroupType = "INCOME"
	GroupTypeExpense  GroupType = "EXPENSE"
	GroupTypeTransfer GroupType = "TRANSFER"
	GroupTypeSale     GroupType = "SALE"
	GroupTypeRestock  GroupType = "RESTOCK"
	GroupTypeReversal GroupType = "REVERSAL"
)

// Transaction is a single signed leg within a group. Positive amounts are
// debits (increase), negative amounts are credits (decrease). Amount and
// AccountID are immutable once written; correction happens exclusively by
// posting a new, balanced reversal group.
type Transaction struct {
	ID            int64           `json:"id"`
	GroupID       uuid.UUID       `json:"group_id"`
	Type          GroupType       `json:"type"`
	AccountID     int64           `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Description   string          `json:"description,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	RelatedTxID   *int64          `json:"related_transaction_id,omitempty"`
	IsReversed    bool            `json:"is_reversed"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Group is the atomic unit of truth: a set of legs sharing one group id
// whose amounts sum to zero.
type Group struct {
	ID       uuid.UUID     `json:"id"`
	Type     GroupType     `json:"type"`
	Legs     []Transaction `json:"legs"`
	PostedAt time.Time     `json:"posted_at"`
}

// Sum adds every leg amount. Zero for any group this engine has written.
func (g Group) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, leg := range g.Legs {
		sum = sum.Add(leg.Amount)
	}
	return sum
}

var (
	// ErrUnbalanced indicates the legs of a group do not sum to zero.
	ErrUnbalanced = errors.New("ledger: group legs must sum to zero")
	// ErrTooFewLegs indicates a group with fewer than two legs.
	ErrTooFewLegs = errors.New("ledger: group requires at least two legs")
	// ErrZeroAmountLeg indicates a leg carrying no amount.
	ErrZeroAmountLeg = errors.New("ledger: leg amount must be non-zero")
	// ErrTransactionNotFound indicates a missing leg.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrAlreadyReversed indicates the group was reversed before.
	ErrAlreadyReversed = errors.New("ledger: group already reversed")
	// ErrSameAccount indicates a transfer onto itself.
	ErrSameAccount = errors.New("ledger: source and destination accounts must differ")
	// ErrAmountNotPositive indicates a non-positive transfer amount.
	ErrAmountNotPositive = errors.New("ledger: amount must be positive")
	// ErrInsufficientFunds indicates the overdraft policy blocks the draw.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrGroupNotFound indicates a missing group.
	ErrGroupNotFound = errors.New("ledger: group not found")
)
