package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort records reservation lifecycle transitions.
type MetricsPort interface {
	ReservationTransition(transition string)
}

// Service is the stock reservation engine. It is the sole writer of
// current_stock and reserved_stock.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics MetricsPort
	ttl     time.Duration
	now     func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// ReservationTTL bounds how long a hold stays PENDING before the expiry
	// sweep may cancel it.
	ReservationTTL time.Duration
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, metrics MetricsPort, cfg ServiceConfig) *Service {
	ttl := cfg.ReservationTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, ttl: ttl, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Reserve places a PENDING hold on qty units. The headroom check and the
// reserved_stock increment are one conditional update, so concurrent
// reservers cannot both win headroom that covers only one of them.
func (s *Service) Reserve(ctx context.Context, productID, qty int64) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	var reservation Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.ReserveStock(ctx, productID, qty)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := tx.GetProductForUpdate(ctx, productID); err != nil {
				return err
			}
			return ErrInsufficientStock
		}
		now := s.now().UTC()
		inserted, err := tx.InsertReservation(ctx, Reservation{
			ID:        uuid.New(),
			ProductID: productID,
			Quantity:  qty,
			Status:    ReservationPending,
			ExpiresAt: now.Add(s.ttl),
		})
		if err != nil {
			return err
		}
		reservation = inserted
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	if s.metrics != nil {
		s.metrics.ReservationTransition("reserve")
	}
	return reservation, nil
}

// Commit finalises a PENDING reservation: stock leaves the building and the
// hold is consumed, atomically.
func (s *Service) Commit(ctx context.Context, reservationID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.commitTx(ctx, tx, reservationID)
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ReservationTransition("commit")
	}
	return nil
}

// CommitTx is Commit running inside a caller-owned transaction; sale
// posting uses it to consume holds in the same atomic unit as the ledger group.
func (s *Service) CommitTx(ctx context.Context, tx TxRepository, reservationID uuid.UUID) error {
	return s.commitTx(ctx, tx, reservationID)
}

func (s *Service) commitTx(ctx context.Context, tx TxRepository, reservationID uuid.UUID) error {
	reservation, err := tx.GetReservationForUpdate(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation.Status.Final() {
		return ErrReservationFinal
	}
	ok, err := tx.CommitStock(ctx, reservation.ProductID, reservation.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		// reserved_stock >= quantity holds for every PENDING reservation,
		// so a failed guard means current_stock would have gone negative.
		return ErrInsufficientStock
	}
	return tx.SetReservationStatus(ctx, reservationID, ReservationCommitted)
}

// Cancel releases a PENDING hold. The quantity becomes available to other
// reservers immediately.
func (s *Service) Cancel(ctx context.Context, reservationID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reservation, err := tx.GetReservationForUpdate(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status.Final() {
			return ErrReservationFinal
		}
		if err := tx.ReleaseStock(ctx, reservation.ProductID, reservation.Quantity); err != nil {
			return err
		}
		return tx.SetReservationStatus(ctx, reservationID, ReservationCancelled)
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ReservationTransition("cancel")
	}
	return nil
}

// expireBatchSize bounds one sweep; the cron runs often enough that a
// backlog larger than this just takes an extra pass.
const expireBatchSize = 500

// ExpireStale cancels PENDING reservations whose TTL has lapsed and
// reports how many were swept.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	ids, err := s.repo.ListStaleReservations(ctx, s.now().UTC(), expireBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		if err := s.Cancel(ctx, id); err != nil {
			// Lost the race against a concurrent commit/cancel; skip.
			if errors.Is(err, ErrReservationFinal) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// GetReservation fetches one reservation.
func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// ProductInput groups fields for creating or updating a product.
type ProductInput struct {
	SKU          string
	Name         string
	Category     string
	Brand        string
	InitialStock int64
	CostPrice    decimal.Decimal
	SellingPrice decimal.Decimal
	TargetMargin decimal.Decimal
	ActorID      int64
}

// CreateProduct registers a new product.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if input.SKU == "" || input.Name == "" {
		return Product{}, errors.New("stock: sku and name required")
	}
	if input.InitialStock < 0 {
		return Product{}, ErrInvalidQuantity
	}
	product, err := s.repo.InsertProduct(ctx, Product{
		SKU:          input.SKU,
		Name:         input.Name,
		Category:     input.Category,
		Brand:        input.Brand,
		CurrentStock: input.InitialStock,
		CostPrice:    input.CostPrice,
		SellingPrice: input.SellingPrice,
		TargetMargin: input.TargetMargin,
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, input.ActorID, "product.create", product.ID, map[string]any{"sku": product.SKU})
	return product, nil
}

// UpdateProduct changes product metadata and pricing. Stock counters are
// not reachable from this path.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput) (Product, error) {
	if input.Name == "" {
		return Product{}, errors.New("stock: name required")
	}
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	current.Name = input.Name
	current.Category = input.Category
	current.Brand = input.Brand
	current.CostPrice = input.CostPrice
	current.SellingPrice = input.SellingPrice
	current.TargetMargin = input.TargetMargin
	updated, err := s.repo.UpdateProduct(ctx, current)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, input.ActorID, "product.update", id, nil)
	return updated, nil
}

// AdjustStock applies a manual correction to current_stock. The result may
// never cut under open holds or go negative.
func (s *Service) AdjustStock(ctx context.Context, productID, delta int64, actorID int64) (Product, error) {
	if delta == 0 {
		return Product{}, ErrInvalidQuantity
	}
	var adjusted Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		next := product.CurrentStock + delta
		if next < product.ReservedStock {
			return ErrStockBelowReserved
		}
		if err := tx.AddStock(ctx, productID, delta); err != nil {
			return err
		}
		product.CurrentStock = next
		adjusted = product
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, actorID, "product.adjust", productID, map[string]any{"delta": delta})
	return adjusted, nil
}

// ListProducts returns products, optionally including deactivated ones.
func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]Product, error) {
	return s.repo.ListProducts(ctx, includeInactive)
}

// GetProduct fetches one product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, productID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "product",
		EntityID: fmt.Sprintf("%d", productID),
		Meta:     meta,
		At:       s.now().UTC(),
	})
}
