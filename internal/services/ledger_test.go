package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicetory/apiserver/internal/store"
	"github.com/voicetory/apiserver/types"
)

func newTestLedger() (*LedgerService, *store.MemoryStore) {
	mem := store.NewMemoryStore()
	return NewLedgerService(mem, mem), mem
}

func TestLedgerAddMergesQuantity(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	first, err := ledger.Add(ctx, "u1", "apples", 10, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !first.Created || first.Remaining != 10 {
		t.Fatalf("first add = %+v, want created with 10", first)
	}

	second, err := ledger.Add(ctx, "u1", "apples", 5, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if second.Created || second.Remaining != 15 {
		t.Fatalf("second add = %+v, want merged 15", second)
	}

	products, err := ledger.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 1 || products[0].Quantity != 15 {
		t.Fatalf("products = %+v, want one record with 15", products)
	}
}

func TestLedgerOwnersAreIsolated(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	if _, err := ledger.Add(ctx, "u1", "milk", 4, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := ledger.Add(ctx, "u2", "milk", 7, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := ledger.Sell(ctx, "u2", "milk", 5); err != nil {
		t.Fatalf("sell: %v", err)
	}
	mine, err := ledger.Get(ctx, "u1", "milk")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if mine.Quantity != 4 {
		t.Fatalf("u1 milk = %d, want 4", mine.Quantity)
	}

	all, err := ledger.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list all = %d products, want 2", len(all))
	}
}

func TestLedgerSellKeepsZeroRecord(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	if _, err := ledger.Add(ctx, "u1", "soap", 5, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	result, err := ledger.Sell(ctx, "u1", "soap", 5)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if result.Remaining != 0 || result.Removed {
		t.Fatalf("sell result = %+v, want remaining 0 and kept", result)
	}

	product, err := ledger.Get(ctx, "u1", "soap")
	if err != nil {
		t.Fatalf("get after selling out: %v", err)
	}
	if product.Quantity != 0 {
		t.Fatalf("quantity = %d, want 0", product.Quantity)
	}

	sales, err := ledger.Sales(ctx, "u1")
	if err != nil {
		t.Fatalf("sales: %v", err)
	}
	if len(sales) != 1 || sales[0].QuantitySold != 5 || sales[0].ProductName != "soap" {
		t.Fatalf("sales = %+v, want one sale of 5 soap", sales)
	}
}

func TestLedgerDeleteRemovesAtZero(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	if _, err := ledger.Add(ctx, "u1", "oil", 3, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	partial, err := ledger.Delete(ctx, "u1", "oil", 2)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if partial.Removed || partial.Remaining != 1 {
		t.Fatalf("partial delete = %+v, want 1 remaining", partial)
	}

	final, err := ledger.Delete(ctx, "u1", "oil", 1)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !final.Removed {
		t.Fatalf("final delete = %+v, want removed", final)
	}
	if _, err := ledger.Get(ctx, "u1", "oil"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("get after delete error = %v, want ErrProductNotFound", err)
	}

	sales, _ := ledger.Sales(ctx, "u1")
	if len(sales) != 0 {
		t.Fatalf("delete must not record sales, got %d", len(sales))
	}
}

func TestLedgerInsufficientQuantity(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	if _, err := ledger.Add(ctx, "u1", "apples", 2, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	for _, op := range []func() (LedgerResult, error){
		func() (LedgerResult, error) { return ledger.Sell(ctx, "u1", "apples", 3) },
		func() (LedgerResult, error) { return ledger.Delete(ctx, "u1", "apples", 3) },
	} {
		_, err := op()
		var insufficient *InsufficientQuantityError
		if !errors.As(err, &insufficient) {
			t.Fatalf("error = %v, want *InsufficientQuantityError", err)
		}
		if insufficient.Available != 2 {
			t.Fatalf("available = %d, want 2", insufficient.Available)
		}
		if !errors.Is(err, ErrInsufficientQuantity) {
			t.Fatalf("error does not match ErrInsufficientQuantity")
		}
	}

	product, _ := ledger.Get(ctx, "u1", "apples")
	if product.Quantity != 2 {
		t.Fatalf("quantity = %d, want unchanged 2", product.Quantity)
	}
}

func TestLedgerNotFoundAndValidation(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	if _, err := ledger.Sell(ctx, "u1", "ghost", 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("sell missing error = %v, want ErrProductNotFound", err)
	}
	if _, err := ledger.Delete(ctx, "u1", "ghost", 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("delete missing error = %v, want ErrProductNotFound", err)
	}
	if _, err := ledger.Add(ctx, "u1", "apples", 0, nil); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("add 0 error = %v, want ErrInvalidQuantity", err)
	}
	if _, err := ledger.Add(ctx, "u1", "   ", 1, nil); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("add blank error = %v, want ErrInvalidName", err)
	}
}

func TestLedgerExecute(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	for _, text := range []string{"add 10 apples", "sold 4 apples", "delete 6 apples"} {
		cmd, err := ParseCommand(text)
		if err != nil {
			t.Fatalf("parse %q: %v", text, err)
		}
		if _, err := ledger.Execute(ctx, "u1", cmd); err != nil {
			t.Fatalf("execute %q: %v", text, err)
		}
	}
	if _, err := ledger.Get(ctx, "u1", "apples"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("get error = %v, want product removed", err)
	}
}

func TestLedgerConcurrentSellsNeverOversell(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	const stock = 50
	const buyers = 200
	if _, err := ledger.Add(ctx, "u1", "ticket", stock, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	var wg sync.WaitGroup
	var sold, rejected atomic.Int32
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Sell(ctx, "u1", "ticket", 1)
			switch {
			case err == nil:
				sold.Add(1)
			case errors.Is(err, ErrInsufficientQuantity):
				rejected.Add(1)
			default:
				t.Errorf("unexpected sell error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sold.Load() != stock {
		t.Fatalf("sold = %d, want %d", sold.Load(), stock)
	}
	if rejected.Load() != buyers-stock {
		t.Fatalf("rejected = %d, want %d", rejected.Load(), buyers-stock)
	}
	product, _ := ledger.Get(ctx, "u1", "ticket")
	if product.Quantity != 0 {
		t.Fatalf("remaining = %d, want 0", product.Quantity)
	}
	sales, _ := ledger.Sales(ctx, "u1")
	if len(sales) != stock {
		t.Fatalf("sales = %d, want %d", len(sales), stock)
	}
}

func TestLedgerConcurrentSellOfLastUnit(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	if _, err := ledger.Add(ctx, "u1", "rare", 1, nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Sell(ctx, "u1", "rare", 1); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 {
		t.Fatalf("successful sells = %d, want exactly 1", ok.Load())
	}
}

func TestLedgerUnavailableStorage(t *testing.T) {
	ctx := context.Background()
	down := store.NewUnavailable(errors.New("connection refused"))
	ledger := NewLedgerService(down, down)

	if _, err := ledger.Add(ctx, "u1", "apples", 1, nil); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("add error = %v, want ErrStorageUnavailable", err)
	}
	if _, err := ledger.Sell(ctx, "u1", "apples", 1); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("sell error = %v, want ErrStorageUnavailable", err)
	}
	if _, err := ledger.Stats(ctx, "u1"); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("stats error = %v, want ErrStorageUnavailable", err)
	}
}

type failingSales struct{}

func (failingSales) AppendSale(ctx context.Context, sale types.Sale) error {
	return store.ErrUnavailable
}

func (failingSales) ListSales(ctx context.Context, owner *string) ([]types.Sale, error) {
	return nil, store.ErrUnavailable
}

func TestLedgerSellRestoresStockWhenSaleFails(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	ledger := NewLedgerService(mem, failingSales{})

	if _, err := ledger.Add(ctx, "u1", "apples", 5, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := ledger.Sell(ctx, "u1", "apples", 3); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("sell error = %v, want ErrStorageUnavailable", err)
	}
	product, err := ledger.Get(ctx, "u1", "apples")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if product.Quantity != 5 {
		t.Fatalf("quantity = %d, want restored 5", product.Quantity)
	}
}

func TestLedgerStats(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	for name, qty := range map[string]int{"apples": 20, "milk": 4, "soap": 5, "oil": 1} {
		if _, err := ledger.Add(ctx, "u1", name, qty, nil); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	stats, err := ledger.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalProducts != 4 || stats.TotalQuantity != 30 {
		t.Fatalf("stats = %+v, want 4 products and 30 units", stats)
	}
	if stats.LowStockCount != 2 || len(stats.LowStockItems) != 2 {
		t.Fatalf("low stock = %d, want milk and oil", stats.LowStockCount)
	}
}

func TestLedgerFinancialsOverwrite(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	cost, price := 1.5, 2.0
	if _, err := ledger.Add(ctx, "u1", "apples", 10, &types.Financials{CostPrice: &cost, SellingPrice: &price}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := ledger.Add(ctx, "u1", "apples", 1, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	newPrice := 2.5
	if _, err := ledger.Add(ctx, "u1", "apples", 1, &types.Financials{SellingPrice: &newPrice}); err != nil {
		t.Fatalf("add: %v", err)
	}

	product, _ := ledger.Get(ctx, "u1", "apples")
	if product.CostPrice == nil || *product.CostPrice != 1.5 {
		t.Fatalf("cost price = %v, want kept 1.5", product.CostPrice)
	}
	if product.SellingPrice == nil || *product.SellingPrice != 2.5 {
		t.Fatalf("selling price = %v, want overwritten 2.5", product.SellingPrice)
	}
	if product.Quantity != 12 {
		t.Fatalf("quantity = %d, want 12", product.Quantity)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.InventoryEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	var event types.InventoryEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return "1", nil
}

func TestLedgerPublishesEvents(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return fixed }

	publisher := &recordingPublisher{}
	ledger.PublishEvents(publisher, "inventory.events")

	if _, err := ledger.Add(ctx, "u1", "apples", 3, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := ledger.Sell(ctx, "u1", "apples", 1); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if _, err := ledger.Sell(ctx, "u1", "apples", 9); err == nil {
		t.Fatalf("oversell succeeded")
	}

	if len(publisher.events) != 2 {
		t.Fatalf("events = %d, want 2 (failed mutations publish nothing)", len(publisher.events))
	}
	sell := publisher.events[1]
	if sell.Action != types.ActionSell || sell.Remaining != 2 || sell.OwnerID != "u1" || !sell.OccurredAt.Equal(fixed) {
		t.Fatalf("sell event = %+v", sell)
	}
}

func TestLedgerBoundsQuantity(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger()

	cmd, err := ParseCommand("add 9223372036854775807 milk")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := ledger.Execute(ctx, "u1", cmd); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("huge add error = %v, want ErrInvalidQuantity", err)
	}

	if _, err := ledger.Add(ctx, "u1", "milk", MaxQuantity, nil); err != nil {
		t.Fatalf("add max: %v", err)
	}
	if _, err := ledger.Add(ctx, "u1", "milk", 1, nil); !errors.Is(err, ErrQuantityLimit) {
		t.Fatalf("overflowing add error = %v, want ErrQuantityLimit", err)
	}

	milk, err := ledger.Get(ctx, "u1", "milk")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if milk.Quantity != MaxQuantity {
		t.Fatalf("stored quantity = %d, want %d", milk.Quantity, MaxQuantity)
	}
}
