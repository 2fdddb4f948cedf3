package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/accounts"
)

type memoryRepo struct {
	accounts map[int64]accounts.Account
	legs     []Transaction
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: make(map[int64]accounts.Account)}
}

func (r *memoryRepo) addAccount(id int64, nominal, active bool, balance string) {
	r.accounts[id] = accounts.Account{
		ID:        id,
		Balance:   decimal.RequireFromString(balance),
		IsNominal: nominal,
		IsActive:  active,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListGroups(ctx context.Context, limit int) ([]Group, error) {
	return nil, nil
}

func (r *memoryRepo) GetGroup(ctx context.Context, id uuid.UUID) (Group, error) {
	var g Group
	for _, leg := range r.legs {
		if leg.GroupID == id {
			g.ID = id
			g.Type = leg.Type
			g.Legs = append(g.Legs, leg)
		}
	}
	if len(g.Legs) == 0 {
		return Group{}, ErrGroupNotFound
	}
	return g, nil
}

func (tx *memoryTx) GetAccountForUpdate(ctx context.Context, id int64) (accounts.Account, error) {
	account, ok := tx.repo.accounts[id]
	if !ok {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return account, nil
}

func (tx *memoryTx) InsertLeg(ctx context.Context, leg Transaction) (Transaction, error) {
	tx.repo.nextID++
	leg.ID = tx.repo.nextID
	tx.repo.legs = append(tx.repo.legs, leg)
	return leg, nil
}

func (tx *memoryTx) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	account, ok := tx.repo.accounts[accountID]
	if !ok {
		return accounts.ErrAccountNotFound
	}
	account.Balance = account.Balance.Add(delta)
	tx.repo.accounts[accountID] = account
	return nil
}

func (tx *memoryTx) GetGroupByTransaction(ctx context.Context, txID int64) (Group, error) {
	for _, leg := range tx.repo.legs {
		if leg.ID == txID {
			return tx.repo.GetGroup(ctx, leg.GroupID)
		}
	}
	return Group{}, ErrTransactionNotFound
}

func (tx *memoryTx) MarkReversed(ctx context.Context, groupID uuid.UUID) error {
	for i := range tx.repo.legs {
		if tx.repo.legs[i].GroupID == groupID {
			tx.repo.legs[i].IsReversed = true
		}
	}
	return nil
}

func (tx *memoryTx) SumGroup(ctx context.Context, groupID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, leg := range tx.repo.legs {
		if leg.GroupID == groupID {
			sum = sum.Add(leg.Amount)
		}
	}
	return sum, nil
}

func (tx *memoryTx) UpdateMetadata(ctx context.Context, in MetadataInput) (Transaction, error) {
	for i := range tx.repo.legs {
		if tx.repo.legs[i].ID == in.TransactionID {
			if in.Description != nil {
				tx.repo.legs[i].Description = *in.Description
			}
			if in.Notes != nil {
				tx.repo.legs[i].Notes = *in.Notes
			}
			if in.Reference != nil {
				tx.repo.legs[i].Reference = *in.Reference
			}
			return tx.repo.legs[i], nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPostGroupRejectsUnbalancedLegs(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "0")
	repo.addAccount(2, true, true, "0")
	svc := NewService(repo, nil)

	_, err := svc.PostGroup(context.Background(), PostingInput{
		Type:    GroupTypeIncome,
		ActorID: 7,
		Legs: []LegInput{
			{AccountID: 1, Amount: amount("100")},
			{AccountID: 2, Amount: amount("-99.99")},
		},
	})
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.legs)
}

func TestPostGroupRequiresTwoLegs(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "0")
	svc := NewService(repo, nil)

	_, err := svc.PostGroup(context.Background(), PostingInput{
		Type:    GroupTypeIncome,
		ActorID: 7,
		Legs:    []LegInput{{AccountID: 1, Amount: amount("0")}},
	})
	require.ErrorIs(t, err, ErrTooFewLegs)
}

func TestPostGroupAdjustsBalancesAtomically(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "50")
	repo.addAccount(2, true, true, "0")
	svc := NewService(repo, nil)

	group, err := svc.PostGroup(context.Background(), PostingInput{
		Type:    GroupTypeIncome,
		ActorID: 7,
		Legs: []LegInput{
			{AccountID: 1, Amount: amount("100")},
			{AccountID: 2, Amount: amount("-100")},
		},
	})
	require.NoError(t, err)
	require.Len(t, group.Legs, 2)
	require.True(t, group.Sum().IsZero())
	require.True(t, repo.accounts[1].Balance.Equal(amount("150")))
	require.True(t, repo.accounts[2].Balance.Equal(amount("-100")))
	for _, leg := range group.Legs {
		require.Equal(t, group.ID, leg.GroupID)
	}
}

func TestPostGroupRejectsInactiveAccount(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "0")
	repo.addAccount(2, false, false, "0")
	svc := NewService(repo, nil)

	_, err := svc.PostGroup(context.Background(), PostingInput{
		Type:    GroupTypeExpense,
		ActorID: 7,
		Legs: []LegInput{
			{AccountID: 1, Amount: amount("-25")},
			{AccountID: 2, Amount: amount("25")},
		},
	})
	require.ErrorIs(t, err, accounts.ErrAccountInactive)
	require.Empty(t, repo.legs)
}

func TestPostGroupRejectsUnknownAccount(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "0")
	svc := NewService(repo, nil)

	_, err := svc.PostGroup(context.Background(), PostingInput{
		Type:    GroupTypeExpense,
		ActorID: 7,
		Legs: []LegInput{
			{AccountID: 1, Amount: amount("-25")},
			{AccountID: 99, Amount: amount("25")},
		},
	})
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestReverseRestoresBalancesAndMarksOriginals(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "0")
	repo.addAccount(2, true, true, "0")
	svc := NewService(repo, nil)
	ctx := context.Background()

	original, err := svc.PostGroup(ctx, PostingInput{
		Type:    GroupTypeSale,
		ActorID: 7,
		Legs: []LegInput{
			{AccountID: 1, Amount: amount("100")},
			{AccountID: 2, Amount: amount("-100")},
		},
	})
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, ReverseInput{
		TransactionID: original.Legs[0].ID,
		ActorID:       8,
		Reason:        "customer refund",
	})
	require.NoError(t, err)
	require.True(t, reversal.Sum().IsZero())
	require.Equal(t, GroupTypeReversal, reversal.Type)

	// Net effect of original + reversal is zero on every account.
	require.True(t, repo.accounts[1].Balance.IsZero())
	require.True(t, repo.accounts[2].Balance.IsZero())

	// Mirror legs are negated and point back at the legs they mirror.
	require.True(t, reversal.Legs[0].Amount.Equal(amount("-100")))
	require.True(t, reversal.Legs[1].Amount.Equal(amount("100")))
	require.NotNil(t, reversal.Legs[0].RelatedTxID)
	require.Equal(t, original.Legs[0].ID, *reversal.Legs[0].RelatedTxID)

	marked, err := repo.GetGroup(ctx, original.ID)
	require.NoError(t, err)
	for _, leg := range marked.Legs {
		require.True(t, leg.IsReversed)
	}
}

func TestReverseTwiceIsRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "0")
	repo.addAccount(2, true, true, "0")
	svc := NewService(repo, nil)
	ctx := context.Background()

	original, err := svc.PostGroup(ctx, PostingInput{
		Type:    GroupTypeSale,
		ActorID: 7,
		Legs: []LegInput{
			{AccountID: 1, Amount: amount("100")},
			{AccountID: 2, Amount: amount("-100")},
		},
	})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, ReverseInput{TransactionID: original.Legs[0].ID, ActorID: 8, Reason: "refund"})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, ReverseInput{TransactionID: original.Legs[0].ID, ActorID: 8, Reason: "refund again"})
	require.ErrorIs(t, err, ErrAlreadyReversed)

	// A rejected second reversal must not move balances.
	require.True(t, repo.accounts[1].Balance.IsZero())
	require.True(t, repo.accounts[2].Balance.IsZero())
}

func TestReverseMissingTransaction(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Reverse(context.Background(), ReverseInput{TransactionID: 404, ActorID: 8, Reason: "none"})
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestTransferMovesExactlyTheAmount(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "100")
	repo.addAccount(2, false, true, "5")
	svc := NewService(repo, nil)

	group, err := svc.Transfer(context.Background(), TransferInput{
		SourceID:      1,
		DestinationID: 2,
		Amount:        amount("10"),
		Description:   "float top-up",
		ActorID:       7,
	})
	require.NoError(t, err)
	require.Len(t, group.Legs, 2)
	require.True(t, group.Sum().IsZero())
	require.True(t, repo.accounts[1].Balance.Equal(amount("90")))
	require.True(t, repo.accounts[2].Balance.Equal(amount("15")))
}

func TestTransferSameAccountRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "100")
	svc := NewService(repo, nil)

	_, err := svc.Transfer(context.Background(), TransferInput{
		SourceID:      1,
		DestinationID: 1,
		Amount:        amount("10"),
		ActorID:       7,
	})
	require.ErrorIs(t, err, ErrSameAccount)
}

func TestTransferInsufficientFunds(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "5")
	repo.addAccount(2, false, true, "0")
	svc := NewService(repo, nil)

	_, err := svc.Transfer(context.Background(), TransferInput{
		SourceID:      1,
		DestinationID: 2,
		Amount:        amount("10"),
		ActorID:       7,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.True(t, repo.accounts[1].Balance.Equal(amount("5")))
}

func TestTransferOverdraftAllowedByPolicy(t *testing.T) {
	repo := newMemoryRepo()
	source := accounts.Account{ID: 1, Balance: amount("5"), AllowNegative: true, IsActive: true}
	repo.accounts[1] = source
	repo.addAccount(2, false, true, "0")
	svc := NewService(repo, nil)

	_, err := svc.Transfer(context.Background(), TransferInput{
		SourceID:      1,
		DestinationID: 2,
		Amount:        amount("10"),
		ActorID:       7,
	})
	require.NoError(t, err)
	require.True(t, repo.accounts[1].Balance.Equal(amount("-5")))
	require.True(t, repo.accounts[2].Balance.Equal(amount("10")))
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Transfer(context.Background(), TransferInput{SourceID: 1, DestinationID: 2, Amount: amount("0"), ActorID: 7})
	require.ErrorIs(t, err, ErrAmountNotPositive)

	_, err = svc.Transfer(context.Background(), TransferInput{SourceID: 1, DestinationID: 2, Amount: amount("-3"), ActorID: 7})
	require.ErrorIs(t, err, ErrAmountNotPositive)
}

func TestUpdateMetadataLeavesAmountsAlone(t *testing.T) {
	repo := newMemoryRepo()
	repo.addAccount(1, false, true, "0")
	repo.addAccount(2, true, true, "0")
	svc := NewService(repo, nil)
	ctx := context.Background()

	group, err := svc.PostGroup(ctx, PostingInput{
		Type:    GroupTypeIncome,
		ActorID: 7,
		Legs: []LegInput{
			{AccountID: 1, Amount: amount("42")},
			{AccountID: 2, Amount: amount("-42")},
		},
	})
	require.NoError(t, err)

	notes := "walk-in customer"
	leg, err := svc.UpdateMetadata(ctx, MetadataInput{TransactionID: group.Legs[0].ID, Notes: &notes, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, notes, leg.Notes)
	require.True(t, leg.Amount.Equal(amount("42")))
}
