package store

import (
	"context"
	"database/sql"

	"github.com/voicetory/apiserver/types"
)

// SaleRepository appends and lists sale records in postgres.
type SaleRepository struct {
	db *sql.DB
}

func NewSaleRepository(db *sql.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) AppendSale(ctx context.Context, sale types.Sale) error {
	const query = `
		INSERT INTO sales (id, owner_id, product_name, quantity_sold, sold_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		sale.ID,
		sale.OwnerID,
		sale.ProductName,
		sale.QuantitySold,
		sale.Timestamp,
	); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *SaleRepository) ListSales(ctx context.Context, owner *string) ([]types.Sale, error) {
	var (
		rows *sql.Rows
		err  error
	)
	const columns = `id, owner_id, product_name, quantity_sold, sold_at`
	if owner == nil {
		rows, err = r.db.QueryContext(ctx, `SELECT `+columns+` FROM sales ORDER BY sold_at, id`)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+columns+` FROM sales WHERE owner_id = $1 ORDER BY sold_at, id`, *owner)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	sales := make([]types.Sale, 0)
	for rows.Next() {
		var sale types.Sale
		if err := rows.Scan(
			&sale.ID,
			&sale.OwnerID,
			&sale.ProductName,
			&sale.QuantitySold,
			&sale.Timestamp,
		); err != nil {
			return nil, unavailable(err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return sales, nil
}
