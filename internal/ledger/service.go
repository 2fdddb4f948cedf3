package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/accounts"
	"github.com/meridian-erp/meridian/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the ledger engine. PostGroup is its only mutation primitive;
// Reverse and Transfer are composition patterns that write through the same
// leg-insert and balance-adjustment path.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// PostGroup persists a balanced set of legs under one freshly generated
// group id and adjusts each referenced account's cached balance, as a
// single atomic unit. Unbalanced input is rejected before any write.
func (s *Service) PostGroup(ctx context.Context, input PostingInput) (Group, error) {
	if err := input.Validate(); err != nil {
		return Group{}, err
	}
	var group Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := s.postLegs(ctx, tx, input)
		if err != nil {
			return err
		}
		group = posted
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger.post", group.ID, map[string]any{
		"type": string(group.Type),
		"legs": len(group.Legs),
	})
	return group, nil
}

// PostGroupTx posts a balanced group inside a transaction owned by the
// caller. Sale and restock posting use this to move money and inventory
// in one atomic unit.
func (s *Service) PostGroupTx(ctx context.Context, tx TxRepository, input PostingInput) (Group, error) {
	if err := input.Validate(); err != nil {
		return Group{}, err
	}
	return s.postLegs(ctx, tx, input)
}

// postLegs is the single write path. It locks every referenced account in
// deterministic order, rejects inactive or missing accounts, inserts the
// legs, moves each cached balance by its leg amount, and re-checks the
// group sum in-transaction before commit.
func (s *Service) postLegs(ctx context.Context, tx TxRepository, input PostingInput) (Group, error) {
	accountIDs := make([]int64, 0, len(input.Legs))
	seen := make(map[int64]bool, len(input.Legs))
	for _, leg := range input.Legs {
		if !seen[leg.AccountID] {
			seen[leg.AccountID] = true
			accountIDs = append(accountIDs, leg.AccountID)
		}
	}
	// Lock accounts in ascending id order so concurrent groups touching the
	// same accounts cannot deadlock.
	sort.Slice(accountIDs, func(i, j int) bool { return accountIDs[i] < accountIDs[j] })
	for _, id := range accountIDs {
		account, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return Group{}, err
		}
		if !account.IsActive {
			return Group{}, fmt.Errorf("%w: account %d", accounts.ErrAccountInactive, id)
		}
	}

	groupID := uuid.New()
	group := Group{ID: groupID, Type: input.Type, PostedAt: s.now().UTC()}
	for _, leg := range input.Legs {
		inserted, err := tx.InsertLeg(ctx, Transaction{
			GroupID:       groupID,
			Type:          input.Type,
			AccountID:     leg.AccountID,
			Amount:        leg.Amount,
			PaymentMethod: input.PaymentMethod,
			Description:   input.Description,
			Notes:         input.Notes,
			Reference:     input.Reference,
			RelatedTxID:   leg.RelatedTxID,
			CreatedBy:     input.ActorID,
		})
		if err != nil {
			return Group{}, err
		}
		if err := tx.AdjustBalance(ctx, leg.AccountID, leg.Amount); err != nil {
			return Group{}, err
		}
		group.Legs = append(group.Legs, inserted)
	}

	// Commit-time invariant gate: what actually landed must sum to zero.
	sum, err := tx.SumGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if !sum.IsZero() {
		return Group{}, ErrUnbalanced
	}
	return group, nil
}

// Reverse mirrors the full group containing the given transaction with
// negated amounts and marks every original leg reversed, all in one
// transaction. Re-reversing is rejected, never silently repeated.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (Group, error) {
	if input.TransactionID == 0 {
		return Group{}, fmt.Errorf("ledger: transaction id required")
	}
	var reversal Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetGroupByTransaction(ctx, input.TransactionID)
		if err != nil {
			return err
		}
		for _, leg := range original.Legs {
			if leg.IsReversed {
				return ErrAlreadyReversed
			}
		}
		mirror := PostingInput{
			Type:        GroupTypeReversal,
			Description: fmt.Sprintf("Reversal of group %s", original.ID),
			Reference:   original.ID.String(),
			ActorID:     input.ActorID,
			Notes:       input.Reason,
			Legs:        mirrorLegs(original.Legs),
		}
		posted, err := s.postLegs(ctx, tx, mirror)
		if err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID); err != nil {
			return err
		}
		reversal = posted
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger.reverse", reversal.ID, map[string]any{
		"transaction_id": input.TransactionID,
		"reason":         input.Reason,
	})
	return reversal, nil
}

// Transfer posts a two-leg group moving amount from source to destination.
// Atomicity is delegated entirely to the posting path; there is no
// compensation logic because no partial state can exist.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Group, error) {
	if input.SourceID == input.DestinationID {
		return Group{}, ErrSameAccount
	}
	if !input.Amount.IsPositive() {
		return Group{}, ErrAmountNotPositive
	}
	var group Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		first, err := tx.GetAccountForUpdate(ctx, minInt64(input.SourceID, input.DestinationID))
		if err != nil {
			return err
		}
		second, err := tx.GetAccountForUpdate(ctx, maxInt64(input.SourceID, input.DestinationID))
		if err != nil {
			return err
		}
		source := first
		if second.ID == input.SourceID {
			source = second
		}
		if !source.CanGoNegative() && source.Balance.LessThan(input.Amount) {
			return ErrInsufficientFunds
		}
		posted, err := s.postLegs(ctx, tx, PostingInput{
			Type:          GroupTypeTransfer,
			PaymentMethod: input.PaymentMethod,
			Description:   input.Description,
			ActorID:       input.ActorID,
			Legs: []LegInput{
				{AccountID: input.SourceID, Amount: input.Amount.Neg()},
				{AccountID: input.DestinationID, Amount: input.Amount},
			},
		})
		if err != nil {
			return err
		}
		group = posted
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger.transfer", group.ID, map[string]any{
		"source_id":      input.SourceID,
		"destination_id": input.DestinationID,
		"amount":         input.Amount.String(),
	})
	return group, nil
}

// UpdateMetadata changes description, notes or reference on one leg.
// Amounts and account references are not reachable from this path.
func (s *Service) UpdateMetadata(ctx context.Context, input MetadataInput) (Transaction, error) {
	if input.TransactionID == 0 {
		return Transaction{}, fmt.Errorf("ledger: transaction id required")
	}
	var updated Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		leg, err := tx.UpdateMetadata(ctx, input)
		if err != nil {
			return err
		}
		updated = leg
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ledger.metadata", updated.GroupID, map[string]any{
		"transaction_id": updated.ID,
	})
	return updated, nil
}

// ListGroups returns recent groups, newest first.
func (s *Service) ListGroups(ctx context.Context, limit int) ([]Group, error) {
	return s.repo.ListGroups(ctx, limit)
}

// GetGroup fetches one group with all its legs.
func (s *Service) GetGroup(ctx context.Context, id uuid.UUID) (Group, error) {
	return s.repo.GetGroup(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, groupID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "ledger_group",
		EntityID: groupID.String(),
		Meta:     meta,
		At:       s.now().UTC(),
	})
}

func mirrorLegs(legs []Transaction) []LegInput {
	out := make([]LegInput, 0, len(legs))
	for _, leg := range legs {
		id := leg.ID
		out = append(out, LegInput{
			AccountID:   leg.AccountID,
			Amount:      leg.Amount.Neg(),
			RelatedTxID: &id,
		})
	}
	return out
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
