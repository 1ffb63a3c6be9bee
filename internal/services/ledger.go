package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voicetory/apiserver/internal/store"
	"github.com/voicetory/apiserver/types"
)

const (
	// LowStockThreshold marks products with fewer units as low stock.
	LowStockThreshold = 5

	// MaxQuantity bounds every command quantity and stored stock level.
	MaxQuantity = store.MaxQuantity
)

// ProductRepository defines persistence operations for products. Find and
// List are plain reads; UpsertIncrement and ConditionalDecrement must each be
// atomic per key.
type ProductRepository interface {
	Find(ctx context.Context, key store.ProductKey) (types.Product, error)
	UpsertIncrement(ctx context.Context, key store.ProductKey, delta int, fin *types.Financials, now time.Time) (types.Product, error)
	ConditionalDecrement(ctx context.Context, key store.ProductKey, qty int, removeAtZero bool, now time.Time) (types.Product, error)
	Delete(ctx context.Context, key store.ProductKey) error
	List(ctx context.Context, owner *string) ([]types.Product, error)
}

// SaleRepository defines persistence operations for the sale log.
type SaleRepository interface {
	AppendSale(ctx context.Context, sale types.Sale) error
	ListSales(ctx context.Context, owner *string) ([]types.Sale, error)
}

// EventPublisher is satisfied by *mq.MQ.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// LedgerResult describes a successful mutation.
type LedgerResult struct {
	Action    string `json:"action"`
	Product   string `json:"product"`
	Quantity  int    `json:"quantity"`
	Remaining int    `json:"remaining"`
	Created   bool   `json:"created,omitempty"`
	Removed   bool   `json:"removed,omitempty"`
}

// LedgerService is the only writer of product and sale records.
type LedgerService struct {
	products ProductRepository
	sales    SaleRepository

	events        EventPublisher
	eventsChannel string

	now func() time.Time
}

func NewLedgerService(products ProductRepository, sales SaleRepository) *LedgerService {
	return &LedgerService{
		products: products,
		sales:    sales,
		now:      time.Now,
	}
}

// PublishEvents makes every successful mutation emit an InventoryEvent on channel.
func (s *LedgerService) PublishEvents(publisher EventPublisher, channel string) {
	s.events = publisher
	s.eventsChannel = channel
}

// Execute applies a parsed command for owner.
func (s *LedgerService) Execute(ctx context.Context, owner string, cmd Command) (LedgerResult, error) {
	switch cmd.Action {
	case types.ActionAdd:
		return s.Add(ctx, owner, cmd.Product, cmd.Quantity, nil)
	case types.ActionSell:
		return s.Sell(ctx, owner, cmd.Product, cmd.Quantity)
	case types.ActionDelete:
		return s.Delete(ctx, owner, cmd.Product, cmd.Quantity)
	default:
		return LedgerResult{}, fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

// Add increments the product, creating it when absent. Provided financial
// fields overwrite the stored ones.
func (s *LedgerService) Add(ctx context.Context, owner, name string, qty int, fin *types.Financials) (LedgerResult, error) {
	key, err := productKey(owner, name, qty)
	if err != nil {
		return LedgerResult{}, err
	}

	now := s.now()
	product, err := s.products.UpsertIncrement(ctx, key, qty, fin, now)
	if err != nil {
		log.Printf("ledger: add %q for %q failed: %v", key.Name, owner, err)
		return LedgerResult{}, storageError(err, nil)
	}

	result := LedgerResult{
		Action:    types.ActionAdd,
		Product:   product.Name,
		Quantity:  qty,
		Remaining: product.Quantity,
		Created:   product.Quantity == qty && product.CreatedAt.Equal(product.UpdatedAt),
	}
	s.publish(ctx, owner, result)
	return result, nil
}

// Sell decrements the product and appends a Sale. A zero-quantity row is kept.
func (s *LedgerService) Sell(ctx context.Context, owner, name string, qty int) (LedgerResult, error) {
	key, err := productKey(owner, name, qty)
	if err != nil {
		return LedgerResult{}, err
	}

	now := s.now()
	product, err := s.products.ConditionalDecrement(ctx, key, qty, false, now)
	if err != nil {
		return LedgerResult{}, decrementError(key, err)
	}

	sale := types.Sale{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		ProductName:  product.Name,
		QuantitySold: qty,
		Timestamp:    now,
	}
	if err := s.sales.AppendSale(ctx, sale); err != nil {
		log.Printf("ledger: record sale of %q for %q failed, restoring stock: %v", key.Name, owner, err)
		if _, restoreErr := s.products.UpsertIncrement(ctx, key, qty, nil, s.now()); restoreErr != nil {
			log.Printf("ledger: CRITICAL restore of %d %q for %q failed: %v", qty, key.Name, owner, restoreErr)
		}
		return LedgerResult{}, storageError(err, nil)
	}

	result := LedgerResult{
		Action:    types.ActionSell,
		Product:   product.Name,
		Quantity:  qty,
		Remaining: product.Quantity,
	}
	s.publish(ctx, owner, result)
	return result, nil
}

// Delete decrements the product without a sale and removes it at exactly zero.
func (s *LedgerService) Delete(ctx context.Context, owner, name string, qty int) (LedgerResult, error) {
	key, err := productKey(owner, name, qty)
	if err != nil {
		return LedgerResult{}, err
	}

	product, err := s.products.ConditionalDecrement(ctx, key, qty, true, s.now())
	if err != nil {
		return LedgerResult{}, decrementError(key, err)
	}

	result := LedgerResult{
		Action:    types.ActionDelete,
		Product:   product.Name,
		Quantity:  qty,
		Remaining: product.Quantity,
		Removed:   product.Quantity == 0,
	}
	s.publish(ctx, owner, result)
	return result, nil
}

// List returns the owner's products, or every product when owner is empty.
func (s *LedgerService) List(ctx context.Context, owner string) ([]types.Product, error) {
	products, err := s.products.List(ctx, scope(owner))
	if err != nil {
		return nil, storageError(err, nil)
	}
	return products, nil
}

// Get returns one product of owner.
func (s *LedgerService) Get(ctx context.Context, owner, name string) (types.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Product{}, ErrInvalidName
	}
	product, err := s.products.Find(ctx, store.ProductKey{Owner: owner, Name: name})
	if err != nil {
		return types.Product{}, storageError(err, ErrProductNotFound)
	}
	return product, nil
}

// Sales returns the owner's sale log.
func (s *LedgerService) Sales(ctx context.Context, owner string) ([]types.Sale, error) {
	sales, err := s.sales.ListSales(ctx, scope(owner))
	if err != nil {
		return nil, storageError(err, nil)
	}
	return sales, nil
}

// Stats derives totals and the low stock list from the current products.
func (s *LedgerService) Stats(ctx context.Context, owner string) (types.InventoryStats, error) {
	products, err := s.List(ctx, owner)
	if err != nil {
		return types.InventoryStats{}, err
	}

	stats := types.InventoryStats{
		TotalProducts: len(products),
		LowStockItems: make([]types.Product, 0),
	}
	for _, product := range products {
		stats.TotalQuantity += product.Quantity
		if product.Quantity < LowStockThreshold {
			stats.LowStockItems = append(stats.LowStockItems, product)
		}
	}
	stats.LowStockCount = len(stats.LowStockItems)
	return stats, nil
}

func (s *LedgerService) publish(ctx context.Context, owner string, result LedgerResult) {
	if s.events == nil || s.eventsChannel == "" {
		return
	}

	event := types.InventoryEvent{
		Action:     result.Action,
		OwnerID:    owner,
		Product:    result.Product,
		Quantity:   result.Quantity,
		Remaining:  result.Remaining,
		Removed:    result.Removed,
		OccurredAt: s.now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ledger: encode event failed: %v", err)
		return
	}
	attrs := map[string]string{"action": event.Action}
	if owner != "" {
		attrs["owner_id"] = owner
	}
	if _, err := s.events.Publish(ctx, s.eventsChannel, data, attrs); err != nil {
		log.Printf("ledger: publish %s event for %q failed: %v", event.Action, event.Product, err)
	}
}

func productKey(owner, name string, qty int) (store.ProductKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.ProductKey{}, ErrInvalidName
	}
	if qty <= 0 || qty > MaxQuantity {
		return store.ProductKey{}, ErrInvalidQuantity
	}
	return store.ProductKey{Owner: owner, Name: name}, nil
}

func decrementError(key store.ProductKey, err error) error {
	var insufficient *store.InsufficientError
	if errors.As(err, &insufficient) {
		return &InsufficientQuantityError{Product: key.Name, Available: insufficient.Available}
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Printf("ledger: decrement %q for %q failed: %v", key.Name, key.Owner, err)
	}
	return storageError(err, ErrProductNotFound)
}

func scope(owner string) *string {
	if owner == "" {
		return nil
	}
	return &owner
}
