package posting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/accounts"
	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/shared"
	"github.com/meridian-erp/meridian/internal/stock"
)

// fakeState backs both engine fakes so a failed posting can restore the
// pre-transaction snapshot, mirroring a database rollback.
type fakeState struct {
	accounts     map[int64]*accounts.Account
	legs         []ledger.Transaction
	nextLegID    int64
	products     map[int64]*stock.Product
	reservations map[uuid.UUID]*stock.Reservation
}

func newFakeState() *fakeState {
	return &fakeState{
		accounts:     make(map[int64]*accounts.Account),
		products:     make(map[int64]*stock.Product),
		reservations: make(map[uuid.UUID]*stock.Reservation),
	}
}

func (s *fakeState) addAccount(id int64, balance int64) {
	s.accounts[id] = &accounts.Account{ID: id, Balance: decimal.NewFromInt(balance), IsActive: true, AllowNegative: true}
}

func (s *fakeState) addProduct(id, stockQty int64, sellingPrice int64) {
	s.products[id] = &stock.Product{ID: id, CurrentStock: stockQty, SellingPrice: decimal.NewFromInt(sellingPrice), IsActive: true}
}

func (s *fakeState) clone() *fakeState {
	out := newFakeState()
	out.nextLegID = s.nextLegID
	out.legs = append(out.legs, s.legs...)
	for id, a := range s.accounts {
		copied := *a
		out.accounts[id] = &copied
	}
	for id, p := range s.products {
		copied := *p
		out.products[id] = &copied
	}
	for id, r := range s.reservations {
		copied := *r
		out.reservations[id] = &copied
	}
	return out
}

type fakeRepo struct {
	state *fakeState
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, EngineTx) error) error {
	snapshot := r.state.clone()
	err := fn(ctx, EngineTx{
		Ledger: &fakeLedgerTx{state: r.state},
		Stock:  &fakeStockTx{state: r.state},
	})
	if err != nil {
		*r.state = *snapshot
		return err
	}
	return nil
}

type fakeLedgerTx struct {
	state *fakeState
}

func (tx *fakeLedgerTx) GetAccountForUpdate(ctx context.Context, id int64) (accounts.Account, error) {
	a, ok := tx.state.accounts[id]
	if !ok {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return *a, nil
}

func (tx *fakeLedgerTx) InsertLeg(ctx context.Context, leg ledger.Transaction) (ledger.Transaction, error) {
	tx.state.nextLegID++
	leg.ID = tx.state.nextLegID
	tx.state.legs = append(tx.state.legs, leg)
	return leg, nil
}

func (tx *fakeLedgerTx) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	a, ok := tx.state.accounts[accountID]
	if !ok {
		return accounts.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(delta)
	return nil
}

func (tx *fakeLedgerTx) GetGroupByTransaction(ctx context.Context, txID int64) (ledger.Group, error) {
	return ledger.Group{}, ledger.ErrTransactionNotFound
}

func (tx *fakeLedgerTx) MarkReversed(ctx context.Context, groupID uuid.UUID) error {
	return nil
}

func (tx *fakeLedgerTx) SumGroup(ctx context.Context, groupID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, leg := range tx.state.legs {
		if leg.GroupID == groupID {
			sum = sum.Add(leg.Amount)
		}
	}
	return sum, nil
}

func (tx *fakeLedgerTx) UpdateMetadata(ctx context.Context, in ledger.MetadataInput) (ledger.Transaction, error) {
	return ledger.Transaction{}, ledger.ErrTransactionNotFound
}

type fakeStockTx struct {
	state *fakeState
}

func (tx *fakeStockTx) ReserveStock(ctx context.Context, productID, qty int64) (bool, error) {
	p, ok := tx.state.products[productID]
	if !ok || !p.IsActive || p.CurrentStock-p.ReservedStock < qty {
		return false, nil
	}
	p.ReservedStock += qty
	return true, nil
}

func (tx *fakeStockTx) ReleaseStock(ctx context.Context, productID, qty int64) error {
	p, ok := tx.state.products[productID]
	if !ok {
		return stock.ErrProductNotFound
	}
	p.ReservedStock -= qty
	return nil
}

func (tx *fakeStockTx) CommitStock(ctx context.Context, productID, qty int64) (bool, error) {
	p, ok := tx.state.products[productID]
	if !ok || p.CurrentStock < qty || p.ReservedStock < qty {
		return false, nil
	}
	p.CurrentStock -= qty
	p.ReservedStock -= qty
	return true, nil
}

func (tx *fakeStockTx) DeductAvailable(ctx context.Context, productID, qty int64) (bool, error) {
	p, ok := tx.state.products[productID]
	if !ok || !p.IsActive || p.CurrentStock-p.ReservedStock < qty {
		return false, nil
	}
	p.CurrentStock -= qty
	return true, nil
}

func (tx *fakeStockTx) AddStock(ctx context.Context, productID, qty int64) error {
	p, ok := tx.state.products[productID]
	if !ok {
		return stock.ErrProductNotFound
	}
	p.CurrentStock += qty
	return nil
}

func (tx *fakeStockTx) GetProductForUpdate(ctx context.Context, id int64) (stock.Product, error) {
	p, ok := tx.state.products[id]
	if !ok {
		return stock.Product{}, stock.ErrProductNotFound
	}
	return *p, nil
}

func (tx *fakeStockTx) InsertReservation(ctx context.Context, res stock.Reservation) (stock.Reservation, error) {
	tx.state.reservations[res.ID] = &res
	return res, nil
}

func (tx *fakeStockTx) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (stock.Reservation, error) {
	res, ok := tx.state.reservations[id]
	if !ok {
		return stock.Reservation{}, stock.ErrReservationNotFound
	}
	return *res, nil
}

func (tx *fakeStockTx) SetReservationStatus(ctx context.Context, id uuid.UUID, status stock.ReservationStatus) error {
	res, ok := tx.state.reservations[id]
	if !ok {
		return stock.ErrReservationNotFound
	}
	res.Status = status
	return nil
}

type fakeIdempotency struct {
	seen map[string]bool
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	f.seen[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.seen, key)
	return nil
}

const revenueAccount = 100
const inventoryAccount = 101
const earningsAccount = 102
const bankAccount = 1

func newTestService(state *fakeState) (*Service, *fakeIdempotency) {
	state.addAccount(bankAccount, 1000)
	state.addAccount(revenueAccount, 0)
	state.addAccount(inventoryAccount, 0)
	state.addAccount(earningsAccount, 0)
	idem := &fakeIdempotency{}
	svc := NewService(
		&fakeRepo{state: state},
		ledger.NewService(nil, nil),
		stock.NewService(nil, nil, nil, stock.ServiceConfig{}),
		idem, nil, nil,
		Config{
			RevenueAccountID:   revenueAccount,
			InventoryAccountID: inventoryAccount,
			EarningsAccountID:  earningsAccount,
		},
	)
	return svc, idem
}

func groupSum(state *fakeState, groupID uuid.UUID) decimal.Decimal {
	sum := decimal.Zero
	for _, leg := range state.legs {
		if leg.GroupID == groupID {
			sum = sum.Add(leg.Amount)
		}
	}
	return sum
}

func legAmount(t *testing.T, state *fakeState, groupID uuid.UUID, accountID int64) decimal.Decimal {
	t.Helper()
	for _, leg := range state.legs {
		if leg.GroupID == groupID && leg.AccountID == accountID {
			return leg.Amount
		}
	}
	t.Fatalf("no leg for account %d", accountID)
	return decimal.Zero
}

func TestPostSaleMovesMoneyAndStock(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 10, 25)
	svc, _ := newTestService(state)

	result, err := svc.PostSale(context.Background(), SaleInput{
		Items:            []SaleItem{{ProductID: 1, Qty: 2}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.NoError(t, err)

	require.EqualValues(t, 8, state.products[1].CurrentStock)
	require.True(t, result.Total.Equal(decimal.NewFromInt(50)))
	require.True(t, legAmount(t, state, result.GroupID, bankAccount).Equal(decimal.NewFromInt(50)))
	require.True(t, legAmount(t, state, result.GroupID, revenueAccount).Equal(decimal.NewFromInt(-50)))
	require.True(t, groupSum(state, result.GroupID).IsZero())
	require.True(t, state.accounts[bankAccount].Balance.Equal(decimal.NewFromInt(1050)))
}

func TestPostSaleUnitPriceOverride(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 10, 25)
	svc, _ := newTestService(state)

	result, err := svc.PostSale(context.Background(), SaleInput{
		Items:            []SaleItem{{ProductID: 1, Qty: 3, UnitPrice: decimal.NewFromInt(20)}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.NoError(t, err)
	require.True(t, result.Total.Equal(decimal.NewFromInt(60)))
}

func TestPostSaleInsufficientStockRollsBack(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 3, 25)
	svc, idem := newTestService(state)

	saleID := uuid.New()
	_, err := svc.PostSale(context.Background(), SaleInput{
		SaleID:           saleID,
		Items:            []SaleItem{{ProductID: 1, Qty: 5}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	// Nothing moved and the key was released for retry.
	require.EqualValues(t, 3, state.products[1].CurrentStock)
	require.Empty(t, state.legs)
	require.True(t, state.accounts[bankAccount].Balance.Equal(decimal.NewFromInt(1000)))
	require.False(t, idem.seen["sale:"+saleID.String()])
}

func TestPostSaleConsumesReservation(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 10, 25)
	resID := uuid.New()
	state.products[1].ReservedStock = 2
	state.reservations[resID] = &stock.Reservation{
		ID: resID, ProductID: 1, Quantity: 2, Status: stock.ReservationPending,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	svc, _ := newTestService(state)

	result, err := svc.PostSale(context.Background(), SaleInput{
		Items:            []SaleItem{{ProductID: 1, Qty: 2, ReservationID: &resID}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.NoError(t, err)

	require.EqualValues(t, 8, state.products[1].CurrentStock)
	require.EqualValues(t, 0, state.products[1].ReservedStock)
	require.Equal(t, stock.ReservationCommitted, state.reservations[resID].Status)
	require.True(t, result.Total.Equal(decimal.NewFromInt(50)))
}

func TestPostSaleReservationMismatch(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 10, 25)
	resID := uuid.New()
	state.products[1].ReservedStock = 2
	state.reservations[resID] = &stock.Reservation{
		ID: resID, ProductID: 1, Quantity: 2, Status: stock.ReservationPending,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	svc, _ := newTestService(state)

	_, err := svc.PostSale(context.Background(), SaleInput{
		Items:            []SaleItem{{ProductID: 1, Qty: 3, ReservationID: &resID}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.ErrorIs(t, err, ErrReservationMismatch)
	require.Equal(t, stock.ReservationPending, state.reservations[resID].Status)
}

func TestPostSaleDuplicateRejected(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 10, 25)
	svc, _ := newTestService(state)

	input := SaleInput{
		SaleID:           uuid.New(),
		Items:            []SaleItem{{ProductID: 1, Qty: 1}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	}
	_, err := svc.PostSale(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.PostSale(context.Background(), input)
	require.ErrorIs(t, err, ErrDuplicateRequest)
	require.EqualValues(t, 9, state.products[1].CurrentStock)
}

func TestPostRestockNegotiatedCost(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 2, 150)
	svc, _ := newTestService(state)

	result, err := svc.PostRestock(context.Background(), RestockInput{
		Items: []RestockItem{{
			ProductID:      1,
			Qty:            5,
			ListCost:       decimal.NewFromInt(100),
			NegotiatedCost: decimal.NewFromInt(80),
		}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.NoError(t, err)

	require.EqualValues(t, 7, state.products[1].CurrentStock)
	require.True(t, legAmount(t, state, result.GroupID, inventoryAccount).Equal(decimal.NewFromInt(500)))
	require.True(t, legAmount(t, state, result.GroupID, bankAccount).Equal(decimal.NewFromInt(-400)))
	require.True(t, legAmount(t, state, result.GroupID, earningsAccount).Abs().Equal(decimal.NewFromInt(100)))
	require.True(t, groupSum(state, result.GroupID).IsZero())
	require.True(t, result.Savings.Equal(decimal.NewFromInt(100)))
}

func TestPostRestockAtListCost(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 0, 150)
	svc, _ := newTestService(state)

	result, err := svc.PostRestock(context.Background(), RestockInput{
		Items:            []RestockItem{{ProductID: 1, Qty: 4, ListCost: decimal.NewFromInt(50)}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.NoError(t, err)

	// No discount, no earnings leg.
	var count int
	for _, leg := range state.legs {
		if leg.GroupID == result.GroupID {
			count++
		}
	}
	require.Equal(t, 2, count)
	require.True(t, result.TotalPaid.Equal(decimal.NewFromInt(200)))
	require.True(t, result.Savings.IsZero())
}

func TestPostRestockNegotiatedAboveList(t *testing.T) {
	state := newFakeState()
	state.addProduct(1, 0, 150)
	svc, _ := newTestService(state)

	_, err := svc.PostRestock(context.Background(), RestockInput{
		Items: []RestockItem{{
			ProductID:      1,
			Qty:            1,
			ListCost:       decimal.NewFromInt(50),
			NegotiatedCost: decimal.NewFromInt(60),
		}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.ErrorIs(t, err, ErrNegotiatedAboveList)
}

func TestPostRestockUnknownProductRollsBack(t *testing.T) {
	state := newFakeState()
	svc, _ := newTestService(state)

	_, err := svc.PostRestock(context.Background(), RestockInput{
		Items:            []RestockItem{{ProductID: 9, Qty: 1, ListCost: decimal.NewFromInt(10)}},
		PaymentAccountID: bankAccount,
		ActorID:          7,
	})
	require.ErrorIs(t, err, stock.ErrProductNotFound)
	require.Empty(t, state.legs)
}
