package store

import (
	"context"
	"fmt"
	"time"

	"github.com/voicetory/apiserver/types"
)

// Unavailable stands in for a backend that could not be reached at startup.
// Every method fails with ErrUnavailable, so callers degrade to an explicit
// "storage unavailable" result instead of crashing.
type Unavailable struct {
	cause error
}

func NewUnavailable(cause error) *Unavailable {
	return &Unavailable{cause: cause}
}

func (u *Unavailable) err() error {
	if u.cause == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, u.cause)
}

func (u *Unavailable) Find(ctx context.Context, key ProductKey) (types.Product, error) {
	return types.Product{}, u.err()
}

func (u *Unavailable) UpsertIncrement(ctx context.Context, key ProductKey, delta int, fin *types.Financials, now time.Time) (types.Product, error) {
	return types.Product{}, u.err()
}

func (u *Unavailable) ConditionalDecrement(ctx context.Context, key ProductKey, qty int, removeAtZero bool, now time.Time) (types.Product, error) {
	return types.Product{}, u.err()
}

func (u *Unavailable) Delete(ctx context.Context, key ProductKey) error {
	return u.err()
}

func (u *Unavailable) List(ctx context.Context, owner *string) ([]types.Product, error) {
	return nil, u.err()
}

func (u *Unavailable) AppendSale(ctx context.Context, sale types.Sale) error {
	return u.err()
}

func (u *Unavailable) ListSales(ctx context.Context, owner *string) ([]types.Sale, error) {
	return nil, u.err()
}

func (u *Unavailable) CreateUser(ctx context.Context, user types.User) (types.User, error) {
	return types.User{}, u.err()
}

func (u *Unavailable) GetUser(ctx context.Context, query UserQuery) (types.User, error) {
	return types.User{}, u.err()
}

func (u *Unavailable) SetUserActive(ctx context.Context, id string, active bool, now time.Time) error {
	return u.err()
}

func (u *Unavailable) CreateSession(ctx context.Context, session types.Session) error {
	return u.err()
}

func (u *Unavailable) GetSession(ctx context.Context, token string) (types.Session, error) {
	return types.Session{}, u.err()
}

func (u *Unavailable) DeleteSession(ctx context.Context, token string) error {
	return u.err()
}

func (u *Unavailable) RevokeUserSessions(ctx context.Context, userID string) error {
	return u.err()
}

func (u *Unavailable) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	return 0, u.err()
}

func (u *Unavailable) Ping(ctx context.Context) error {
	return u.err()
}
