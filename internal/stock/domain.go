package stock

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product models a stocked item. CurrentStock and ReservedStock are owned
// by the reservation engine; invariant: 0 <= reserved_stock <= current_stock.
type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	CurrentStock  int64           `json:"current_stock"`
	ReservedStock int64           `json:"reserved_stock"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	TargetMargin  decimal.Decimal `json:"target_margin"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Available is the headroom concurrent reservations compete for.
func (p Product) Available() int64 {
	return p.CurrentStock - p.ReservedStock
}

// ReservationStatus enumerates the reservation lifecycle.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Final reports whether the status is terminal.
func (s ReservationStatus) Final() bool {
	return s == ReservationCommitted || s == ReservationCancelled
}

// Reservation is a temporary hold on stock. It is created PENDING and
// transitions exactly once to COMMITTED or CANCELLED.
type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	ProductID int64             `json:"product_id"`
	Quantity  int64             `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

var (
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = errors.New("stock: product not found")
	// ErrSKUTaken indicates a duplicate SKU.
	ErrSKUTaken = errors.New("stock: sku already in use")
	// ErrInsufficientStock indicates not enough unreserved stock.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrReservationNotFound indicates a missing reservation.
	ErrReservationNotFound = errors.New("stock: reservation not found")
	// ErrReservationFinal indicates the reservation already reached a terminal state.
	ErrReservationFinal = errors.New("stock: reservation already final")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrStockBelowReserved indicates an adjustment would cut under open holds.
	ErrStockBelowReserved = errors.New("stock: cannot adjust below reserved quantity")
)
