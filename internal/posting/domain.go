package posting

import "errors"

var (
	ErrNoItems                = errors.New("posting: at least one item required")
	ErrPaymentAccountRequired = errors.New("posting: payment account required")
	ErrProductRequired        = errors.New("posting: item product required")
	ErrQuantityNotPositive    = errors.New("posting: item quantity must be positive")
	ErrNegativePrice          = errors.New("posting: price must not be negative")
	ErrCostNotPositive        = errors.New("posting: list cost must be positive")
	ErrNegotiatedAboveList    = errors.New("posting: negotiated cost exceeds list cost")
	ErrReservationMismatch    = errors.New("posting: reservation does not match sale item")
	ErrDuplicateRequest       = errors.New("posting: request already processed")
)
