package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/voicetory/apiserver/types"
)

type postgresProducts struct {
	*ProductRepository
	*SaleRepository
}

// newTestDB opens TEST_DATABASE_URL, applies the schema and empties every table.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	schema, err := os.ReadFile("../db/migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE sessions, users, products, sales`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func TestPostgresProductStore(t *testing.T) {
	runProductStoreTests(t, func(t *testing.T) productStore {
		db := newTestDB(t)
		return postgresProducts{NewProductRepository(db), NewSaleRepository(db)}
	})
}

func TestPostgresUsersAndSessions(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	sessions := NewSessionRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	user := types.User{
		ID:           "u1",
		Username:     "alice",
		Email:        "alice@example.com",
		Role:         "user",
		IsActive:     true,
		PasswordHash: "hash",
		Salt:         "salt",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := users.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	user.ID = "u2"
	user.Username = "alice2"
	user.Email = "ALICE@example.com"
	if _, err := users.CreateUser(ctx, user); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for email in another case, got %v", err)
	}

	session := types.Session{Token: "tok", UserID: "u1", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour), IsActive: true}
	if err := sessions.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	removed, err := sessions.DeleteExpiredSessions(ctx, now.Add(2*time.Hour))
	if err != nil || removed != 1 {
		t.Fatalf("DeleteExpiredSessions: removed %d, err %v", removed, err)
	}
}
