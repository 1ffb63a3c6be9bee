package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicetory/apiserver/types"
)

type productStore interface {
	Find(ctx context.Context, key ProductKey) (types.Product, error)
	UpsertIncrement(ctx context.Context, key ProductKey, delta int, fin *types.Financials, now time.Time) (types.Product, error)
	ConditionalDecrement(ctx context.Context, key ProductKey, qty int, removeAtZero bool, now time.Time) (types.Product, error)
	Delete(ctx context.Context, key ProductKey) error
	List(ctx context.Context, owner *string) ([]types.Product, error)
	AppendSale(ctx context.Context, sale types.Sale) error
	ListSales(ctx context.Context, owner *string) ([]types.Sale, error)
}

func float(v float64) *float64 { return &v }

// runProductStoreTests exercises behavior every product backend must share.
func runProductStoreTests(t *testing.T, newStore func(t *testing.T) productStore) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("upsert creates then increments", func(t *testing.T) {
		s := newStore(t)
		key := ProductKey{Owner: "u1", Name: "Apples"}

		created, err := s.UpsertIncrement(ctx, key, 5, nil, now)
		if err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}
		if created.Quantity != 5 || created.Name != "Apples" || created.OwnerID != "u1" {
			t.Fatalf("unexpected product: %+v", created)
		}

		later := now.Add(time.Minute)
		updated, err := s.UpsertIncrement(ctx, key, 3, &types.Financials{CostPrice: float(1.5)}, later)
		if err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}
		if updated.Quantity != 8 {
			t.Fatalf("expected quantity 8, got %d", updated.Quantity)
		}
		if updated.CostPrice == nil || *updated.CostPrice != 1.5 {
			t.Fatalf("expected cost price 1.5, got %v", updated.CostPrice)
		}
		if !updated.CreatedAt.Equal(now) || !updated.UpdatedAt.Equal(later) {
			t.Fatalf("unexpected timestamps: created %v updated %v", updated.CreatedAt, updated.UpdatedAt)
		}

		found, err := s.Find(ctx, key)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if found.Quantity != 8 {
			t.Fatalf("expected stored quantity 8, got %d", found.Quantity)
		}
	})

	t.Run("increment past the maximum is refused", func(t *testing.T) {
		s := newStore(t)
		key := ProductKey{Owner: "u1", Name: "Grain"}
		if _, err := s.UpsertIncrement(ctx, key, MaxQuantity-1, nil, now); err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}
		if _, err := s.UpsertIncrement(ctx, key, 2, nil, now); !errors.Is(err, ErrQuantityOverflow) {
			t.Fatalf("expected ErrQuantityOverflow, got %v", err)
		}
		if _, err := s.UpsertIncrement(ctx, ProductKey{Owner: "u1", Name: "Other"}, MaxQuantity+1, nil, now); !errors.Is(err, ErrQuantityOverflow) {
			t.Fatalf("expected ErrQuantityOverflow for an oversized delta, got %v", err)
		}

		product, err := s.Find(ctx, key)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if product.Quantity != MaxQuantity-1 {
			t.Fatalf("quantity changed to %d", product.Quantity)
		}
	})

	t.Run("owners are isolated", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.UpsertIncrement(ctx, ProductKey{Owner: "u1", Name: "Milk"}, 2, nil, now); err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}
		if _, err := s.UpsertIncrement(ctx, ProductKey{Owner: "u2", Name: "Milk"}, 7, nil, now); err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}

		owner := "u1"
		products, err := s.List(ctx, &owner)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(products) != 1 || products[0].Quantity != 2 {
			t.Fatalf("expected only u1 milk, got %+v", products)
		}

		all, err := s.List(ctx, nil)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected two products across owners, got %d", len(all))
		}
	})

	t.Run("conditional decrement", func(t *testing.T) {
		s := newStore(t)
		key := ProductKey{Owner: "u1", Name: "Eggs"}
		if _, err := s.UpsertIncrement(ctx, key, 4, nil, now); err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}

		_, err := s.ConditionalDecrement(ctx, key, 5, false, now)
		var insufficient *InsufficientError
		if !errors.As(err, &insufficient) || insufficient.Available != 4 {
			t.Fatalf("expected insufficient with 4 available, got %v", err)
		}

		left, err := s.ConditionalDecrement(ctx, key, 4, false, now)
		if err != nil {
			t.Fatalf("ConditionalDecrement: %v", err)
		}
		if left.Quantity != 0 {
			t.Fatalf("expected 0 left, got %d", left.Quantity)
		}
		if _, err := s.Find(ctx, key); err != nil {
			t.Fatalf("zero quantity row should be kept, got %v", err)
		}

		if _, err := s.ConditionalDecrement(ctx, ProductKey{Owner: "u1", Name: "Missing"}, 1, false, now); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("decrement removes at zero", func(t *testing.T) {
		s := newStore(t)
		key := ProductKey{Owner: "u1", Name: "Bread"}
		if _, err := s.UpsertIncrement(ctx, key, 2, nil, now); err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}
		if _, err := s.ConditionalDecrement(ctx, key, 2, true, now); err != nil {
			t.Fatalf("ConditionalDecrement: %v", err)
		}
		if _, err := s.Find(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected product to be removed, got %v", err)
		}

		owner := "u1"
		products, err := s.List(ctx, &owner)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(products) != 0 {
			t.Fatalf("expected empty list, got %+v", products)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		key := ProductKey{Owner: "", Name: "Rice"}
		if _, err := s.UpsertIncrement(ctx, key, 1, nil, now); err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}
		if err := s.Delete(ctx, key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(ctx, key); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("sales are filtered by owner", func(t *testing.T) {
		s := newStore(t)
		for _, sale := range []types.Sale{
			{ID: "s1", OwnerID: "u1", ProductName: "Apples", QuantitySold: 2, Timestamp: now},
			{ID: "s2", OwnerID: "u2", ProductName: "Apples", QuantitySold: 1, Timestamp: now},
			{ID: "s3", OwnerID: "u1", ProductName: "Milk", QuantitySold: 1, Timestamp: now},
		} {
			if err := s.AppendSale(ctx, sale); err != nil {
				t.Fatalf("AppendSale: %v", err)
			}
		}

		owner := "u1"
		sales, err := s.ListSales(ctx, &owner)
		if err != nil {
			t.Fatalf("ListSales: %v", err)
		}
		if len(sales) != 2 || sales[0].ID != "s1" || sales[1].ID != "s3" {
			t.Fatalf("unexpected u1 sales: %+v", sales)
		}
	})

	t.Run("concurrent decrements never oversell", func(t *testing.T) {
		s := newStore(t)
		key := ProductKey{Owner: "u1", Name: "Tickets"}
		if _, err := s.UpsertIncrement(ctx, key, 25, nil, now); err != nil {
			t.Fatalf("UpsertIncrement: %v", err)
		}

		var sold atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 60; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.ConditionalDecrement(ctx, key, 1, false, now); err == nil {
					sold.Add(1)
				}
			}()
		}
		wg.Wait()

		if sold.Load() != 25 {
			t.Fatalf("expected 25 successful decrements, got %d", sold.Load())
		}
		product, err := s.Find(ctx, key)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if product.Quantity != 0 {
			t.Fatalf("expected 0 left, got %d", product.Quantity)
		}
	})
}
