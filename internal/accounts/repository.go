package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for accounts.
type Repository interface {
	List(ctx context.Context, includeInactive bool) ([]Account, error)
	Get(ctx context.Context, id int64) (Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
	UpdateMetadata(ctx context.Context, id int64, name string, allowNegative bool) (Account, error)
	SetActive(ctx context.Context, id int64, active bool) error
	// SumLegs recomputes the balance from the leg history, the source of truth
	// the cached balance column must agree with.
	SumLegs(ctx context.Context, id int64) (decimal.Decimal, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, type, currency, balance, is_nominal, allow_negative, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Currency, &a.Balance, &a.IsNominal, &a.AllowNegative, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) List(ctx context.Context, includeInactive bool) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY code`
	if !includeInactive {
		query = `SELECT ` + accountColumns + ` FROM accounts WHERE is_active ORDER BY code`
	}
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (code, name, type, currency, balance, is_nominal, allow_negative, is_active)
VALUES ($1,$2,$3,$4,0,$5,$6,TRUE) RETURNING `+accountColumns,
		a.Code, a.Name, a.Type, a.Currency, a.IsNominal, a.AllowNegative)
	inserted, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrCodeTaken
		}
		return Account{}, err
	}
	return inserted, nil
}

func (r *repository) UpdateMetadata(ctx context.Context, id int64, name string, allowNegative bool) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts SET name=$2, allow_negative=$3, updated_at=NOW() WHERE id=$1 RETURNING `+accountColumns,
		id, name, allowNegative)
	return scanAccount(row)
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *repository) SumLegs(ctx context.Context, id int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id=$1`, id).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}
