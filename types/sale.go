package types

import "time"

// Sale is an append-only record of one successful sell.
type Sale struct {
	ID           string    `json:"id" db:"id"`
	OwnerID      string    `json:"owner_id,omitempty" db:"owner_id"`
	ProductName  string    `json:"product_name" db:"product_name"`
	QuantitySold int       `json:"quantity_sold" db:"quantity_sold"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}
