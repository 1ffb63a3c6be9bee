package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voicetory/apiserver/types"
)

// MemoryStore keeps every collection in process memory. Each product key has
// its own mutex, so mutations on different keys never wait for each other.
type MemoryStore struct {
	products sync.Map // ProductKey -> *productEntry

	salesMu sync.Mutex
	sales   []types.Sale

	usersMu sync.RWMutex
	users   map[string]types.User

	sessionsMu sync.RWMutex
	sessions   map[string]types.Session
}

type productEntry struct {
	mu      sync.Mutex
	product types.Product
	dead    bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]types.User),
		sessions: make(map[string]types.Session),
	}
}

// lockEntry returns the locked live entry for key, creating it when create is set.
func (s *MemoryStore) lockEntry(key ProductKey, create bool) (*productEntry, bool) {
	for {
		var value any
		if create {
			value, _ = s.products.LoadOrStore(key, &productEntry{})
		} else {
			var ok bool
			value, ok = s.products.Load(key)
			if !ok {
				return nil, false
			}
		}
		entry := value.(*productEntry)
		entry.mu.Lock()
		if entry.dead {
			// Removed while we waited; retry against the current map state.
			entry.mu.Unlock()
			continue
		}
		return entry, true
	}
}

// removeLocked drops a locked entry from the map. The caller still unlocks it.
func (s *MemoryStore) removeLocked(key ProductKey, entry *productEntry) {
	entry.dead = true
	s.products.CompareAndDelete(key, entry)
}

func (s *MemoryStore) Find(ctx context.Context, key ProductKey) (types.Product, error) {
	entry, ok := s.lockEntry(key, false)
	if !ok {
		return types.Product{}, ErrNotFound
	}
	defer entry.mu.Unlock()
	if entry.product.Name == "" {
		return types.Product{}, ErrNotFound
	}
	return cloneProduct(entry.product), nil
}

func (s *MemoryStore) UpsertIncrement(ctx context.Context, key ProductKey, delta int, fin *types.Financials, now time.Time) (types.Product, error) {
	entry, _ := s.lockEntry(key, true)
	defer entry.mu.Unlock()

	if delta < 0 || delta > MaxQuantity-entry.product.Quantity {
		return types.Product{}, ErrQuantityOverflow
	}
	if entry.product.Name == "" {
		entry.product = types.Product{
			OwnerID:   key.Owner,
			Name:      key.Name,
			CreatedAt: now,
		}
	}
	entry.product.Quantity += delta
	entry.product.UpdatedAt = now
	mergeFinancials(&entry.product.Financials, fin)
	return cloneProduct(entry.product), nil
}

func (s *MemoryStore) ConditionalDecrement(ctx context.Context, key ProductKey, qty int, removeAtZero bool, now time.Time) (types.Product, error) {
	entry, ok := s.lockEntry(key, false)
	if !ok {
		return types.Product{}, ErrNotFound
	}
	defer entry.mu.Unlock()

	if entry.product.Name == "" {
		return types.Product{}, ErrNotFound
	}
	if entry.product.Quantity < qty {
		return types.Product{}, &InsufficientError{Available: entry.product.Quantity}
	}
	entry.product.Quantity -= qty
	entry.product.UpdatedAt = now
	result := cloneProduct(entry.product)
	if removeAtZero && entry.product.Quantity == 0 {
		s.removeLocked(key, entry)
	}
	return result, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key ProductKey) error {
	entry, ok := s.lockEntry(key, false)
	if !ok {
		return ErrNotFound
	}
	defer entry.mu.Unlock()
	if entry.product.Name == "" {
		return ErrNotFound
	}
	s.removeLocked(key, entry)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, owner *string) ([]types.Product, error) {
	products := make([]types.Product, 0)
	s.products.Range(func(k, v any) bool {
		key := k.(ProductKey)
		if owner != nil && key.Owner != *owner {
			return true
		}
		entry := v.(*productEntry)
		entry.mu.Lock()
		if !entry.dead && entry.product.Name != "" {
			products = append(products, cloneProduct(entry.product))
		}
		entry.mu.Unlock()
		return true
	})
	sortProducts(products)
	return products, nil
}

func (s *MemoryStore) AppendSale(ctx context.Context, sale types.Sale) error {
	s.salesMu.Lock()
	defer s.salesMu.Unlock()
	s.sales = append(s.sales, sale)
	return nil
}

func (s *MemoryStore) ListSales(ctx context.Context, owner *string) ([]types.Sale, error) {
	s.salesMu.Lock()
	defer s.salesMu.Unlock()
	sales := make([]types.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if owner != nil && sale.OwnerID != *owner {
			continue
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, user types.User) (types.User, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return types.User{}, ErrDuplicate
	}
	for _, existing := range s.users {
		if existing.Username == user.Username || strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, ErrDuplicate
		}
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, query UserQuery) (types.User, error) {
	if query.empty() {
		return types.User{}, ErrNotFound
	}
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	if query.ID != "" {
		user, ok := s.users[query.ID]
		if !ok {
			return types.User{}, ErrNotFound
		}
		return user, nil
	}
	for _, user := range s.users {
		if query.Username != "" && user.Username == query.Username {
			return user, nil
		}
		if query.Email != "" && strings.EqualFold(user.Email, query.Email) {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (s *MemoryStore) SetUserActive(ctx context.Context, id string, active bool, now time.Time) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.IsActive = active
	user.UpdatedAt = now
	s.users[id] = user
	return nil
}

func (s *MemoryStore) CreateSession(ctx context.Context, session types.Session) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if _, ok := s.sessions[session.Token]; ok {
		return ErrDuplicate
	}
	s.sessions[session.Token] = session
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, token string) (types.Session, error) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return types.Session{}, ErrNotFound
	}
	return session, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, token string) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if _, ok := s.sessions[token]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, token)
	return nil
}

func (s *MemoryStore) RevokeUserSessions(ctx context.Context, userID string) error {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	for token, session := range s.sessions {
		if session.UserID == userID {
			session.IsActive = false
			s.sessions[token] = session
		}
	}
	return nil
}

func (s *MemoryStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	removed := 0
	for token, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func mergeFinancials(dst *types.Financials, src *types.Financials) {
	if src == nil {
		return
	}
	if src.CostPrice != nil {
		dst.CostPrice = float64Ptr(*src.CostPrice)
	}
	if src.SellingPrice != nil {
		dst.SellingPrice = float64Ptr(*src.SellingPrice)
	}
	if src.TotalValue != nil {
		dst.TotalValue = float64Ptr(*src.TotalValue)
	}
	if src.Profit != nil {
		dst.Profit = float64Ptr(*src.Profit)
	}
}

func cloneProduct(p types.Product) types.Product {
	out := p
	out.Financials = types.Financials{}
	mergeFinancials(&out.Financials, &p.Financials)
	return out
}

func sortProducts(products []types.Product) {
	sort.Slice(products, func(i, j int) bool {
		if products[i].OwnerID != products[j].OwnerID {
			return products[i].OwnerID < products[j].OwnerID
		}
		return products[i].Name < products[j].Name
	})
}

func float64Ptr(v float64) *float64 {
	return &v
}
