package accounts

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	accounts map[int64]*Account
	legSums  map[int64]decimal.Decimal
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: make(map[int64]*Account),
		legSums:  make(map[int64]decimal.Decimal),
	}
}

func (r *memoryRepo) List(ctx context.Context, includeInactive bool) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if a.IsActive || includeInactive {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *a, nil
}

func (r *memoryRepo) Insert(ctx context.Context, a Account) (Account, error) {
	for _, existing := range r.accounts {
		if existing.Code == a.Code {
			return Account{}, ErrCodeTaken
		}
	}
	r.nextID++
	a.ID = r.nextID
	a.IsActive = true
	a.Balance = decimal.Zero
	r.accounts[a.ID] = &a
	return a, nil
}

func (r *memoryRepo) UpdateMetadata(ctx context.Context, id int64, name string, allowNegative bool) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	a.Name = name
	a.AllowNegative = allowNegative
	return *a, nil
}

func (r *memoryRepo) SetActive(ctx context.Context, id int64, active bool) error {
	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

func (r *memoryRepo) SumLegs(ctx context.Context, id int64) (decimal.Decimal, error) {
	return r.legSums[id], nil
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), CreateInput{Code: "X", Name: "X", Type: "SAVINGS"})
	require.Error(t, err)
}

func TestCreateNominalForcesFlag(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	account, err := svc.Create(context.Background(), CreateInput{
		Code: "REV", Name: "Revenue", Type: AccountTypeNominal,
	})
	require.NoError(t, err)
	require.True(t, account.IsNominal)
	require.Equal(t, "USD", account.Currency)
	require.True(t, account.Balance.IsZero())
}

func TestCreateDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.Create(context.Background(), CreateInput{Code: "BANK", Name: "Bank", Type: AccountTypeBank})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateInput{Code: "BANK", Name: "Other", Type: AccountTypeBank})
	require.ErrorIs(t, err, ErrCodeTaken)
}

func TestUpdateLeavesBalanceAndCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	account, err := svc.Create(context.Background(), CreateInput{Code: "BANK", Name: "Bank", Type: AccountTypeBank})
	require.NoError(t, err)

	repo.accounts[account.ID].Balance = decimal.NewFromInt(250)

	updated, err := svc.Update(context.Background(), account.ID, "Main Bank", true, 1)
	require.NoError(t, err)
	require.Equal(t, "Main Bank", updated.Name)
	require.True(t, updated.AllowNegative)
	require.Equal(t, "BANK", updated.Code)
	require.True(t, updated.Balance.Equal(decimal.NewFromInt(250)))
}

func TestDeactivateHidesFromDefaultList(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	account, err := svc.Create(context.Background(), CreateInput{Code: "OLD", Name: "Old", Type: AccountTypeCash})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), account.ID, 1))

	active, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.False(t, all[0].IsActive)
}

func TestVerifyBalancesReportsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	clean, err := svc.Create(ctx, CreateInput{Code: "A-CLEAN", Name: "Clean", Type: AccountTypeBank})
	require.NoError(t, err)
	drifted, err := svc.Create(ctx, CreateInput{Code: "B-DRIFT", Name: "Drift", Type: AccountTypeBank})
	require.NoError(t, err)

	repo.accounts[clean.ID].Balance = decimal.NewFromInt(70)
	repo.legSums[clean.ID] = decimal.NewFromInt(70)
	repo.accounts[drifted.ID].Balance = decimal.NewFromInt(90)
	repo.legSums[drifted.ID] = decimal.NewFromInt(40)

	drifts, err := svc.VerifyBalances(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, drifted.ID, drifts[0].AccountID)
	require.Equal(t, "90", drifts[0].Cached)
	require.Equal(t, "40", drifts[0].Computed)
}
