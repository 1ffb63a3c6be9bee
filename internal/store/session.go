package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/voicetory/apiserver/types"
)

// SessionRepository handles persistence for sessions in postgres.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session types.Session) error {
	const query = `
		INSERT INTO sessions (token, user_id, username, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		session.Token,
		session.UserID,
		session.Username,
		session.CreatedAt,
		session.ExpiresAt,
		session.IsActive,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return unavailable(err)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, token string) (types.Session, error) {
	const query = `
		SELECT token, user_id, username, created_at, expires_at, is_active
		FROM sessions
		WHERE token = $1`
	var session types.Session
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&session.Token,
		&session.UserID,
		&session.Username,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, unavailable(err)
	}
	return session, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return unavailable(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepository) RevokeUserSessions(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sessions SET is_active = FALSE WHERE user_id = $1`, userID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, unavailable(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(affected), nil
}
