package types

import "time"

// Ledger actions, shared by commands, results and events.
const (
	ActionAdd    = "add"
	ActionSell   = "sell"
	ActionDelete = "delete"
)

// InventoryEvent is published after every successful ledger mutation.
type InventoryEvent struct {
	Action     string    `json:"action"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Product    string    `json:"product"`
	Quantity   int       `json:"quantity"`
	Remaining  int       `json:"remaining"`
	Removed    bool      `json:"removed,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
