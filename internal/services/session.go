package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/voicetory/apiserver/types"
)

// SessionTTL is the fixed lifetime of a session.
const SessionTTL = 24 * time.Hour

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session types.Session) error
	GetSession(ctx context.Context, token string) (types.Session, error)
	DeleteSession(ctx context.Context, token string) error
	RevokeUserSessions(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// SessionService issues, validates and revokes session tokens. Tokens are
// signed so forgeries are rejected without a lookup, but the stored session
// stays authoritative for revocation and expiry.
type SessionService struct {
	repo   SessionRepository
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionService(repo SessionRepository, secret string) *SessionService {
	return &SessionService{
		repo:   repo,
		secret: []byte(secret),
		ttl:    SessionTTL,
		now:    time.Now,
	}
}

// Create issues a session for the user that expires after SessionTTL.
func (s *SessionService) Create(ctx context.Context, userID, username string) (types.Session, error) {
	now := s.now().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)

	tokenID, err := newTokenID()
	if err != nil {
		return types.Session{}, err
	}
	claims := jwt.RegisteredClaims{
		ID:        tokenID,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return types.Session{}, err
	}

	session := types.Session{
		Token:     token,
		UserID:    userID,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return types.Session{}, storageError(err, nil)
	}
	return session, nil
}

// Validate resolves a token to the identity it was issued for.
func (s *SessionService) Validate(ctx context.Context, token string) (types.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.Identity{}, ErrSessionInvalid
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return types.Identity{}, ErrSessionExpired
		}
		return types.Identity{}, ErrSessionInvalid
	}

	session, err := s.repo.GetSession(ctx, token)
	if err != nil {
		return types.Identity{}, storageError(err, ErrSessionInvalid)
	}
	if !session.IsActive || session.UserID != claims.Subject {
		return types.Identity{}, ErrSessionInvalid
	}
	if session.Expired(s.now()) {
		return types.Identity{}, ErrSessionExpired
	}

	return types.Identity{UserID: session.UserID, Username: session.Username}, nil
}

// Delete revokes a token. Deleting an unknown token reports ErrSessionNotFound.
func (s *SessionService) Delete(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrSessionNotFound
	}
	return storageError(s.repo.DeleteSession(ctx, token), ErrSessionNotFound)
}

func (s *SessionService) RevokeUserSessions(ctx context.Context, userID string) error {
	return storageError(s.repo.RevokeUserSessions(ctx, userID), nil)
}

// Sweep deletes sessions that are already past their expiry.
func (s *SessionService) Sweep(ctx context.Context) (int, error) {
	removed, err := s.repo.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return removed, storageError(err, nil)
	}
	return removed, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("sessions: sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("sessions: removed %d expired sessions", removed)
			}
		}
	}
}

func newTokenID() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
