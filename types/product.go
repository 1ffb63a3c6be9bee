package types

import "time"

// Financials holds the optional money fields of a product.
// A nil pointer means the value was never provided.
type Financials struct {
	CostPrice    *float64 `json:"cost_price,omitempty"`
	SellingPrice *float64 `json:"selling_price,omitempty"`
	TotalValue   *float64 `json:"total_value,omitempty"`
	Profit       *float64 `json:"profit,omitempty"`
}

// Product is one ledger row: a named quantity owned by a user.
type Product struct {
	// OwnerID scopes the product to a user. Empty means the global scope.
	OwnerID string `json:"owner_id,omitempty" db:"owner_id"`

	// Name is the display name, stored exactly as it was first provided.
	Name string `json:"name" db:"name"`

	// Quantity is never negative.
	Quantity int `json:"quantity" db:"quantity"`

	Financials

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// InventoryStats is computed on read from the owner's products.
type InventoryStats struct {
	TotalProducts int       `json:"total_products"`
	TotalQuantity int       `json:"total_quantity"`
	LowStockCount int       `json:"low_stock_count"`
	LowStockItems []Product `json:"low_stock_items"`
}
