package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voicetory/apiserver/types"
)

const productColumns = `owner_id, name, quantity, cost_price, selling_price, total_value, profit, created_at, updated_at`

// ProductRepository handles persistence for products in postgres.
// Every read-check-write runs as one statement or inside one transaction with
// the row locked, so concurrent mutations of a key serialize in the database.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Find(ctx context.Context, key ProductKey) (types.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE owner_id = $1 AND name = $2`
	product, err := scanProduct(r.db.QueryRowContext(ctx, query, key.Owner, key.Name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, unavailable(err)
	}
	return product, nil
}

func (r *ProductRepository) UpsertIncrement(ctx context.Context, key ProductKey, delta int, fin *types.Financials, now time.Time) (types.Product, error) {
	if delta < 0 || delta > MaxQuantity {
		return types.Product{}, ErrQuantityOverflow
	}
	if fin == nil {
		fin = &types.Financials{}
	}

	// A conflicting row that would pass MaxQuantity is left alone and nothing is returned.
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (owner_id, name) DO UPDATE
		SET quantity = products.quantity + EXCLUDED.quantity,
			cost_price = COALESCE(EXCLUDED.cost_price, products.cost_price),
			selling_price = COALESCE(EXCLUDED.selling_price, products.selling_price),
			total_value = COALESCE(EXCLUDED.total_value, products.total_value),
			profit = COALESCE(EXCLUDED.profit, products.profit),
			updated_at = EXCLUDED.updated_at
		WHERE products.quantity::bigint + EXCLUDED.quantity <= $9
		RETURNING ` + productColumns
	product, err := scanProduct(r.db.QueryRowContext(
		ctx,
		query,
		key.Owner,
		key.Name,
		delta,
		nullFloat(fin.CostPrice),
		nullFloat(fin.SellingPrice),
		nullFloat(fin.TotalValue),
		nullFloat(fin.Profit),
		now,
		MaxQuantity,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrQuantityOverflow
		}
		return types.Product{}, unavailable(err)
	}
	return product, nil
}

func (r *ProductRepository) ConditionalDecrement(ctx context.Context, key ProductKey, qty int, removeAtZero bool, now time.Time) (types.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Product{}, unavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	query := `
		UPDATE products
		SET quantity = quantity - $3, updated_at = $4
		WHERE owner_id = $1 AND name = $2 AND quantity >= $3
		RETURNING ` + productColumns
	product, err := scanProduct(tx.QueryRowContext(ctx, query, key.Owner, key.Name, qty, now))
	if errors.Is(err, sql.ErrNoRows) {
		var available int
		err = tx.QueryRowContext(ctx,
			`SELECT quantity FROM products WHERE owner_id = $1 AND name = $2`,
			key.Owner, key.Name,
		).Scan(&available)
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		if err != nil {
			return types.Product{}, unavailable(err)
		}
		return types.Product{}, &InsufficientError{Available: available}
	}
	if err != nil {
		return types.Product{}, unavailable(err)
	}

	if removeAtZero && product.Quantity == 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM products WHERE owner_id = $1 AND name = $2 AND quantity = 0`,
			key.Owner, key.Name,
		); err != nil {
			return types.Product{}, unavailable(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Product{}, unavailable(err)
	}
	return product, nil
}

func (r *ProductRepository) Delete(ctx context.Context, key ProductKey) error {
	const query = `DELETE FROM products WHERE owner_id = $1 AND name = $2`
	result, err := r.db.ExecContext(ctx, query, key.Owner, key.Name)
	if err != nil {
		return unavailable(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProductRepository) List(ctx context.Context, owner *string) ([]types.Product, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if owner == nil {
		rows, err = r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY owner_id, name`)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE owner_id = $1 ORDER BY name`, *owner)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	products := make([]types.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return products, nil
}

func (r *ProductRepository) Ping(ctx context.Context) error {
	return unavailable(r.db.PingContext(ctx))
}

func scanProduct(row rowScanner) (types.Product, error) {
	var product types.Product
	var cost, selling, total, profit sql.NullFloat64
	if err := row.Scan(
		&product.OwnerID,
		&product.Name,
		&product.Quantity,
		&cost,
		&selling,
		&total,
		&profit,
		&product.CreatedAt,
		&product.UpdatedAt,
	); err != nil {
		return types.Product{}, err
	}
	product.CostPrice = floatPtr(cost)
	product.SellingPrice = floatPtr(selling)
	product.TotalValue = floatPtr(total)
	product.Profit = floatPtr(profit)
	return product, nil
}
