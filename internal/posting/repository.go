package posting

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/stock"
)

// EngineTx exposes both engines over one open database transaction, so a
// sale or restock commits its money and inventory writes together or not
// at all.
type EngineTx struct {
	Ledger ledger.TxRepository
	Stock  stock.TxRepository
}

// Repository opens the shared transaction for composite postings.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, EngineTx) error) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, EngineTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, EngineTx{
			Ledger: ledger.NewTxRepository(tx),
			Stock:  stock.NewTxRepository(tx),
		})
	})
}
