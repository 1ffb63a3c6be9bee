package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voicetory/apiserver/types"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user-sessions:"
)

// RedisSessionStore keeps sessions as JSON values that expire with the session.
type RedisSessionStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

func (r *RedisSessionStore) CreateSession(ctx context.Context, session types.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		ttl = time.Second
	}

	ok, err := r.client.SetNX(ctx, sessionKeyPrefix+session.Token, payload, ttl).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return ErrDuplicate
	}
	if err := r.client.SAdd(ctx, userSessionKeyPrefix+session.UserID, session.Token).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *RedisSessionStore) GetSession(ctx context.Context, token string) (types.Session, error) {
	payload, err := r.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, unavailable(err)
	}
	var session types.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return types.Session{}, unavailable(err)
	}
	return session, nil
}

func (r *RedisSessionStore) DeleteSession(ctx context.Context, token string) error {
	session, err := r.GetSession(ctx, token)
	if err != nil {
		return err
	}
	removed, err := r.client.Del(ctx, sessionKeyPrefix+token).Result()
	if err != nil {
		return unavailable(err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	_ = r.client.SRem(ctx, userSessionKeyPrefix+session.UserID, token).Err()
	return nil
}

func (r *RedisSessionStore) RevokeUserSessions(ctx context.Context, userID string) error {
	tokens, err := r.client.SMembers(ctx, userSessionKeyPrefix+userID).Result()
	if err != nil {
		return unavailable(err)
	}
	for _, token := range tokens {
		session, err := r.GetSession(ctx, token)
		if errors.Is(err, ErrNotFound) {
			_ = r.client.SRem(ctx, userSessionKeyPrefix+userID, token).Err()
			continue
		}
		if err != nil {
			return err
		}
		if err := r.deactivate(ctx, session); err != nil {
			if errors.Is(err, ErrNotFound) {
				_ = r.client.SRem(ctx, userSessionKeyPrefix+userID, token).Err()
				continue
			}
			return err
		}
	}
	return nil
}

// deactivate rewrites an existing session key as inactive and keeps its TTL. A
// key that expired since it was read stays gone and ErrNotFound is returned.
func (r *RedisSessionStore) deactivate(ctx context.Context, session types.Session) error {
	session.IsActive = false
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	err = r.client.SetArgs(ctx, sessionKeyPrefix+session.Token, payload, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteExpiredSessions only prunes the per-user token sets; Redis expires the
// session keys themselves.
func (r *RedisSessionStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	var cursor uint64
	removed := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, userSessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return removed, unavailable(err)
		}
		for _, key := range keys {
			tokens, err := r.client.SMembers(ctx, key).Result()
			if err != nil {
				return removed, unavailable(err)
			}
			for _, token := range tokens {
				exists, err := r.client.Exists(ctx, sessionKeyPrefix+token).Result()
				if err != nil {
					return removed, unavailable(err)
				}
				if exists == 0 {
					_ = r.client.SRem(ctx, key, token).Err()
					removed++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
