package accounts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates money account categories.
type AccountType string

const (
	AccountTypeCash    AccountType = "CASH"
	AccountTypeBank    AccountType = "BANK"
	AccountTypeEWallet AccountType = "EWALLET"
	// AccountTypeNominal marks non-physical accounts (revenue, earnings,
	// credits) that exist only to balance ledger groups.
	AccountTypeNominal AccountType = "NOMINAL"
)

// Account models a money account. Balance is a cache maintained by the
// ledger engine inside the same transaction as every leg insert; it is
// never written by any other component.
type Account struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
	IsNominal     bool            `json:"is_nominal"`
	AllowNegative bool            `json:"allow_negative"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CanGoNegative reports whether the overdraft policy permits this account
// to be drawn below zero. Nominal accounts always may, they are counter-legs
// rather than real cash.
func (a Account) CanGoNegative() bool {
	return a.IsNominal || a.AllowNegative
}

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounts: account not found")
	// ErrAccountInactive indicates the account no longer accepts legs.
	ErrAccountInactive = errors.New("accounts: account is inactive")
	// ErrCodeTaken indicates a duplicate account code.
	ErrCodeTaken = errors.New("accounts: code already in use")
	// ErrBalanceDrift indicates the cached balance disagrees with the leg history.
	ErrBalanceDrift = errors.New("accounts: cached balance drifts from ledger")
)
