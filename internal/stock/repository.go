package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for products and reservations.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListProducts(ctx context.Context, includeInactive bool) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error)
	ListStaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// TxRepository exposes the conditional updates that make reserve/commit
// race-free. Each guard lives in the UPDATE predicate so two concurrent
// callers can never both observe headroom that only covers one of them.
type TxRepository interface {
	// ReserveStock increments reserved_stock iff available headroom covers qty.
	// Returns false when the guard fails.
	ReserveStock(ctx context.Context, productID, qty int64) (bool, error)
	// ReleaseStock decrements reserved_stock.
	ReleaseStock(ctx context.Context, productID, qty int64) error
	// CommitStock decrements both counters iff they cover qty.
	CommitStock(ctx context.Context, productID, qty int64) (bool, error)
	// DeductAvailable decrements current_stock iff unreserved headroom covers
	// qty. Used by direct sale posting with no hold period.
	DeductAvailable(ctx context.Context, productID, qty int64) (bool, error)
	// AddStock increments current_stock.
	AddStock(ctx context.Context, productID, qty int64) error
	GetProductForUpdate(ctx context.Context, id int64) (Product, error)
	InsertReservation(ctx context.Context, r Reservation) (Reservation, error)
	GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error)
	SetReservationStatus(ctx context.Context, id uuid.UUID, status ReservationStatus) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, sku, name, category, brand, current_stock, reserved_stock, cost_price, selling_price, target_margin, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Brand, &p.CurrentStock, &p.ReservedStock, &p.CostPrice, &p.SellingPrice, &p.TargetMargin, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

const reservationColumns = `id, product_id, quantity, status, created_at, expires_at`

func scanReservation(row pgx.Row) (Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.ProductID, &r.Quantity, &r.Status, &r.CreatedAt, &r.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	return r, nil
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

func (r *repository) ListProducts(ctx context.Context, includeInactive bool) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY sku`
	if !includeInactive {
		query = `SELECT ` + productColumns + ` FROM products WHERE is_active ORDER BY sku`
	}
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

func (r *repository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO products (sku, name, category, brand, current_stock, reserved_stock, cost_price, selling_price, target_margin, is_active)
VALUES ($1,$2,$3,$4,$5,0,$6,$7,$8,TRUE) RETURNING `+productColumns,
		p.SKU, p.Name, p.Category, p.Brand, p.CurrentStock, p.CostPrice, p.SellingPrice, p.TargetMargin)
	inserted, err := scanProduct(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, ErrSKUTaken
		}
		return Product{}, err
	}
	return inserted, nil
}

func (r *repository) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	row := r.db.QueryRow(ctx, `UPDATE products SET name=$2, category=$3, brand=$4, cost_price=$5, selling_price=$6, target_margin=$7, is_active=$8, updated_at=NOW()
WHERE id=$1 RETURNING `+productColumns,
		p.ID, p.Name, p.Category, p.Brand, p.CostPrice, p.SellingPrice, p.TargetMargin, p.IsActive)
	return scanProduct(row)
}

func (r *repository) GetReservation(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return scanReservation(r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id))
}

func (r *repository) ListStaleReservations(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx, `SELECT id FROM reservations WHERE status='PENDING' AND expires_at < $1 ORDER BY expires_at ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction. The posting layer uses it
// to move stock in the same transaction as ledger legs.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) ReserveStock(ctx context.Context, productID, qty int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE products SET reserved_stock = reserved_stock + $2, updated_at=NOW()
WHERE id=$1 AND is_active AND current_stock - reserved_stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *txRepository) ReleaseStock(ctx context.Context, productID, qty int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE products SET reserved_stock = reserved_stock - $2, updated_at=NOW()
WHERE id=$1 AND reserved_stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepository) CommitStock(ctx context.Context, productID, qty int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE products SET current_stock = current_stock - $2, reserved_stock = reserved_stock - $2, updated_at=NOW()
WHERE id=$1 AND current_stock >= $2 AND reserved_stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *txRepository) DeductAvailable(ctx context.Context, productID, qty int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `UPDATE products SET current_stock = current_stock - $2, updated_at=NOW()
WHERE id=$1 AND is_active AND current_stock - reserved_stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *txRepository) AddStock(ctx context.Context, productID, qty int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE products SET current_stock = current_stock + $2, updated_at=NOW() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertReservation(ctx context.Context, res Reservation) (Reservation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO reservations (id, product_id, quantity, status, expires_at)
VALUES ($1,$2,$3,$4,$5) RETURNING `+reservationColumns,
		res.ID, res.ProductID, res.Quantity, res.Status, res.ExpiresAt)
	return scanReservation(row)
}

func (r *txRepository) GetReservationForUpdate(ctx context.Context, id uuid.UUID) (Reservation, error) {
	return scanReservation(r.tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) SetReservationStatus(ctx context.Context, id uuid.UUID, status ReservationStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE reservations SET status=$2 WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}
