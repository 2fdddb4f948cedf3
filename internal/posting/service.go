package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/shared"
	"github.com/meridian-erp/meridian/internal/stock"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards composite postings against duplicate submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort records posted group counters.
type MetricsPort interface {
	GroupPosted(groupType string)
}

// Config carries the bootstrap nominal and asset accounts composite
// postings write against.
type Config struct {
	RevenueAccountID   int64
	InventoryAccountID int64
	EarningsAccountID  int64
}

// Service posts sales and restocks: each one moves inventory and posts a
// balanced ledger group inside a single database transaction.
type Service struct {
	repo    Repository
	ledger  *ledger.Service
	stock   *stock.Service
	idem    IdempotencyPort
	audit   AuditPort
	metrics MetricsPort
	cfg     Config
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, ledgerSvc *ledger.Service, stockSvc *stock.Service, idem IdempotencyPort, audit AuditPort, metrics MetricsPort, cfg Config) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledgerSvc,
		stock:   stockSvc,
		idem:    idem,
		audit:   audit,
		metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostSale deducts sold stock and posts the matching balanced group in one
// transaction. Retried submissions of the same SaleID are rejected.
func (s *Service) PostSale(ctx context.Context, input SaleInput) (SaleResult, error) {
	if err := input.Validate(); err != nil {
		return SaleResult{}, err
	}
	if input.SaleID == uuid.Nil {
		input.SaleID = uuid.New()
	}

	idemKey := "sale:" + input.SaleID.String()
	if err := s.checkIdempotency(ctx, idemKey); err != nil {
		return SaleResult{}, err
	}

	var result SaleResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx EngineTx) error {
		total := decimal.Zero
		for _, item := range input.Items {
			price, err := s.consumeSaleItem(ctx, tx, item)
			if err != nil {
				return err
			}
			total = total.Add(price.Mul(decimal.NewFromInt(item.Qty)))
		}

		group, err := s.ledger.PostGroupTx(ctx, tx.Ledger, ledger.PostingInput{
			Type:          ledger.GroupTypeSale,
			PaymentMethod: input.PaymentMethod,
			Description:   input.Description,
			Reference:     input.SaleID.String(),
			ActorID:       input.ActorID,
			Legs: []ledger.LegInput{
				{AccountID: input.PaymentAccountID, Amount: total},
				{AccountID: s.cfg.RevenueAccountID, Amount: total.Neg()},
			},
		})
		if err != nil {
			return err
		}
		result = SaleResult{SaleID: input.SaleID, GroupID: group.ID, Total: total}
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, idemKey)
		return SaleResult{}, err
	}

	if s.metrics != nil {
		s.metrics.GroupPosted(string(ledger.GroupTypeSale))
	}
	s.recordAudit(ctx, input.ActorID, "posting.sale", result.GroupID, map[string]any{
		"sale_id": input.SaleID.String(),
		"items":   len(input.Items),
		"total":   result.Total.String(),
	})
	return result, nil
}

// consumeSaleItem removes the sold quantity from stock, either by
// committing a prior reservation or by deducting free stock directly, and
// returns the unit price to bill.
func (s *Service) consumeSaleItem(ctx context.Context, tx EngineTx, item SaleItem) (decimal.Decimal, error) {
	product, err := tx.Stock.GetProductForUpdate(ctx, item.ProductID)
	if err != nil {
		return decimal.Zero, err
	}

	if item.ReservationID != nil {
		held, err := tx.Stock.GetReservationForUpdate(ctx, *item.ReservationID)
		if err != nil {
			return decimal.Zero, err
		}
		if held.ProductID != item.ProductID || held.Quantity != item.Qty {
			return decimal.Zero, fmt.Errorf("%w: reservation %s", ErrReservationMismatch, held.ID)
		}
		if err := s.stock.CommitTx(ctx, tx.Stock, held.ID); err != nil {
			return decimal.Zero, err
		}
	} else {
		ok, err := tx.Stock.DeductAvailable(ctx, item.ProductID, item.Qty)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: product %d", stock.ErrInsufficientStock, item.ProductID)
		}
	}

	if item.UnitPrice.IsZero() {
		return product.SellingPrice, nil
	}
	return item.UnitPrice, nil
}

// PostRestock increments stock and posts the purchase as one balanced
// group. Inventory is valued at list cost; the bank leg carries what was
// actually paid; when a discount was negotiated the difference lands on
// the earnings nominal account so the group still sums to zero.
func (s *Service) PostRestock(ctx context.Context, input RestockInput) (RestockResult, error) {
	if err := input.Validate(); err != nil {
		return RestockResult{}, err
	}
	if input.RestockID == uuid.Nil {
		input.RestockID = uuid.New()
	}

	idemKey := "restock:" + input.RestockID.String()
	if err := s.checkIdempotency(ctx, idemKey); err != nil {
		return RestockResult{}, err
	}

	var result RestockResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx EngineTx) error {
		inventoryValue := decimal.Zero
		paid := decimal.Zero
		for _, item := range input.Items {
			if err := tx.Stock.AddStock(ctx, item.ProductID, item.Qty); err != nil {
				return err
			}
			qty := decimal.NewFromInt(item.Qty)
			unitCost := item.NegotiatedCost
			if unitCost.IsZero() {
				unitCost = item.ListCost
			}
			inventoryValue = inventoryValue.Add(item.ListCost.Mul(qty))
			paid = paid.Add(unitCost.Mul(qty))
		}
		savings := inventoryValue.Sub(paid)

		legs := []ledger.LegInput{
			{AccountID: s.cfg.InventoryAccountID, Amount: inventoryValue},
			{AccountID: input.PaymentAccountID, Amount: paid.Neg()},
		}
		if savings.IsPositive() {
			legs = append(legs, ledger.LegInput{AccountID: s.cfg.EarningsAccountID, Amount: savings.Neg()})
		}

		group, err := s.ledger.PostGroupTx(ctx, tx.Ledger, ledger.PostingInput{
			Type:          ledger.GroupTypeRestock,
			PaymentMethod: input.PaymentMethod,
			Description:   input.Description,
			Reference:     input.RestockID.String(),
			ActorID:       input.ActorID,
			Legs:          legs,
		})
		if err != nil {
			return err
		}
		result = RestockResult{
			RestockID: input.RestockID,
			GroupID:   group.ID,
			TotalPaid: paid,
			Savings:   savings,
		}
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, idemKey)
		return RestockResult{}, err
	}

	if s.metrics != nil {
		s.metrics.GroupPosted(string(ledger.GroupTypeRestock))
	}
	s.recordAudit(ctx, input.ActorID, "posting.restock", result.GroupID, map[string]any{
		"restock_id": input.RestockID.String(),
		"items":      len(input.Items),
		"paid":       result.TotalPaid.String(),
		"savings":    result.Savings.String(),
	})
	return result, nil
}

func (s *Service) checkIdempotency(ctx context.Context, key string) error {
	if s.idem == nil {
		return nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, "posting"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

// releaseIdempotency frees the key after a failed posting so the caller may
// retry with the same id.
func (s *Service) releaseIdempotency(ctx context.Context, key string) {
	if s.idem == nil {
		return
	}
	_ = s.idem.Delete(ctx, key)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, groupID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transaction_group",
		EntityID: groupID.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	})
}
