package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian/internal/accounts"
)

// Repository encapsulates DB operations for the ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListGroups(ctx context.Context, limit int) ([]Group, error)
	GetGroup(ctx context.Context, id uuid.UUID) (Group, error)
}

// TxRepository exposes methods available within a posting transaction.
// Every leg insert and every balance adjustment runs through here so that
// the zero-sum invariant is settled before the transaction commits.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, id int64) (accounts.Account, error)
	InsertLeg(ctx context.Context, leg Transaction) (Transaction, error)
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
	GetGroupByTransaction(ctx context.Context, txID int64) (Group, error)
	MarkReversed(ctx context.Context, groupID uuid.UUID) error
	SumGroup(ctx context.Context, groupID uuid.UUID) (decimal.Decimal, error)
	UpdateMetadata(ctx context.Context, in MetadataInput) (Transaction, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const legColumns = `id, group_id, type, account_id, amount, payment_method, description, notes, reference, related_transaction_id, is_reversed, created_by, created_at`

func scanLeg(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.GroupID, &t.Type, &t.AccountID, &t.Amount, &t.PaymentMethod, &t.Description, &t.Notes, &t.Reference, &t.RelatedTxID, &t.IsReversed, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *repository) ListGroups(ctx context.Context, limit int) ([]Group, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+legColumns+` FROM transactions
WHERE group_id IN (SELECT group_id FROM transactions GROUP BY group_id ORDER BY MAX(created_at) DESC LIMIT $1)
ORDER BY created_at DESC, id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGroups(rows)
}

func (r *repository) GetGroup(ctx context.Context, id uuid.UUID) (Group, error) {
	rows, err := r.db.Query(ctx, `SELECT `+legColumns+` FROM transactions WHERE group_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Group{}, err
	}
	defer rows.Close()
	groups, err := collectGroups(rows)
	if err != nil {
		return Group{}, err
	}
	if len(groups) == 0 {
		return Group{}, ErrGroupNotFound
	}
	return groups[0], nil
}

func collectGroups(rows pgx.Rows) ([]Group, error) {
	byID := make(map[uuid.UUID]*Group)
	var order []uuid.UUID
	for rows.Next() {
		leg, err := scanLeg(rows)
		if err != nil {
			return nil, err
		}
		g, ok := byID[leg.GroupID]
		if !ok {
			g = &Group{ID: leg.GroupID, Type: leg.Type, PostedAt: leg.CreatedAt}
			byID[leg.GroupID] = g
			order = append(order, leg.GroupID)
		}
		g.Legs = append(g.Legs, leg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	groups := make([]Group, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byID[id])
	}
	return groups, nil
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction. The posting layer uses it
// to write ledger legs in the same transaction as stock movements.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (accounts.Account, error) {
	var a accounts.Account
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, type, currency, balance, is_nominal, allow_negative, is_active, created_at, updated_at
FROM accounts WHERE id=$1 FOR UPDATE`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Currency, &a.Balance, &a.IsNominal, &a.AllowNegative, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, accounts.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return a, nil
}

func (r *txRepository) InsertLeg(ctx context.Context, leg Transaction) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO transactions (group_id, type, account_id, amount, payment_method, description, notes, reference, related_transaction_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING `+legColumns,
		leg.GroupID, leg.Type, leg.AccountID, leg.Amount, leg.PaymentMethod, leg.Description, leg.Notes, leg.Reference, leg.RelatedTxID, leg.CreatedBy)
	return scanLeg(row)
}

func (r *txRepository) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at=NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return accounts.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) GetGroupByTransaction(ctx context.Context, txID int64) (Group, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+legColumns+` FROM transactions
WHERE group_id = (SELECT group_id FROM transactions WHERE id=$1) ORDER BY id ASC FOR UPDATE`, txID)
	if err != nil {
		return Group{}, err
	}
	defer rows.Close()
	groups, err := collectGroups(rows)
	if err != nil {
		return Group{}, err
	}
	if len(groups) == 0 {
		return Group{}, ErrTransactionNotFound
	}
	return groups[0], nil
}

func (r *txRepository) MarkReversed(ctx context.Context, groupID uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET is_reversed=TRUE WHERE group_id=$1`, groupID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *txRepository) SumGroup(ctx context.Context, groupID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE group_id=$1`, groupID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *txRepository) UpdateMetadata(ctx context.Context, in MetadataInput) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `UPDATE transactions SET
description = COALESCE($2, description),
notes       = COALESCE($3, notes),
reference   = COALESCE($4, reference)
WHERE id=$1 RETURNING `+legColumns,
		in.TransactionID, in.Description, in.Notes, in.Reference)
	return scanLeg(row)
}
