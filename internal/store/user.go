package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/voicetory/apiserver/types"
)

const userColumns = `id, username, email, full_name, role, is_active, password_hash, salt, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetUser(ctx context.Context, query UserQuery) (types.User, error) {
	var row *sql.Row
	switch {
	case query.ID != "":
		row = r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, query.ID)
	case query.Username != "":
		row = r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, query.Username)
	case query.Email != "":
		row = r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, query.Email)
	default:
		return types.User{}, ErrNotFound
	}

	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.Role,
		&user.IsActive,
		&user.PasswordHash,
		&user.Salt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, unavailable(err)
	}
	return user, nil
}

func (r *UserRepository) CreateUser(ctx context.Context, user types.User) (types.User, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Username,
		user.Email,
		user.FullName,
		user.Role,
		user.IsActive,
		user.PasswordHash,
		user.Salt,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, unavailable(err)
	}
	return user, nil
}

func (r *UserRepository) SetUserActive(ctx context.Context, id string, active bool, now time.Time) error {
	const query = `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, active, now, id)
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

func (r *UserRepository) Ping(ctx context.Context) error {
	return unavailable(r.db.PingContext(ctx))
}
