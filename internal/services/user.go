package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voicetory/apiserver/internal/store"
	"github.com/voicetory/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const defaultUserRole = "user"

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user types.User) (types.User, error)
	GetUser(ctx context.Context, query store.UserQuery) (types.User, error)
	SetUserActive(ctx context.Context, id string, active bool, now time.Time) error
}

// SessionRevoker invalidates every session of a user.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) error
}

// NewUser is the signup payload.
type NewUser struct {
	Username string
	Email    string
	Password string
	FullName string
}

// UserService encapsulates account creation and credential checks.
type UserService struct {
	repo     UserRepository
	sessions SessionRevoker

	bcryptCost int
	now        func() time.Time
}

func NewUserService(repo UserRepository, sessions SessionRevoker) *UserService {
	return &UserService{
		repo:       repo,
		sessions:   sessions,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// Create validates and stores a new active user with a freshly salted hash.
func (s *UserService) Create(ctx context.Context, in NewUser) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return types.User{}, ErrMissingFields
	}
	if !emailPattern.MatchString(in.Email) {
		return types.User{}, ErrInvalidEmail
	}

	for _, query := range []store.UserQuery{{Username: in.Username}, {Email: in.Email}} {
		if _, err := s.repo.GetUser(ctx, query); err == nil {
			return types.User{}, ErrDuplicateEntity
		} else if !errors.Is(err, store.ErrNotFound) {
			return types.User{}, storageError(err, nil)
		}
	}

	salt, err := newSalt()
	if err != nil {
		return types.User{}, err
	}
	hashed, err := bcrypt.GenerateFromPassword(saltedDigest(in.Password, salt), s.bcryptCost)
	if err != nil {
		return types.User{}, err
	}

	now := s.now()
	user, err := s.repo.CreateUser(ctx, types.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Role:         defaultUserRole,
		IsActive:     true,
		PasswordHash: string(hashed),
		Salt:         salt,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return types.User{}, storageError(err, nil)
	}
	return user, nil
}

// Authenticate looks the user up by username, then by email, and verifies the password.
func (s *UserService) Authenticate(ctx context.Context, login, password string) (types.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetUser(ctx, store.UserQuery{Username: login})
	if errors.Is(err, store.ErrNotFound) && strings.Contains(login, "@") {
		user, err = s.repo.GetUser(ctx, store.UserQuery{Email: login})
	}
	if err != nil {
		return types.User{}, storageError(err, ErrUserNotFound)
	}

	if !user.IsActive {
		return types.User{}, ErrDeactivated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), saltedDigest(password, user.Salt)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Profile returns the user. Secrets never leave types.User through JSON.
func (s *UserService) Profile(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetUser(ctx, store.UserQuery{ID: id})
	if err != nil {
		return types.User{}, storageError(err, ErrUserNotFound)
	}
	return user, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	user, err := s.repo.GetUser(ctx, store.UserQuery{Username: strings.TrimSpace(username)})
	if err != nil {
		return types.User{}, storageError(err, ErrUserNotFound)
	}
	return user, nil
}

// SetActive toggles the account. Deactivating also revokes its sessions.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.repo.SetUserActive(ctx, id, active, s.now()); err != nil {
		return storageError(err, ErrUserNotFound)
	}
	if !active && s.sessions != nil {
		if err := s.sessions.RevokeUserSessions(ctx, id); err != nil {
			return storageError(err, nil)
		}
	}
	return nil
}

func newSalt() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// saltedDigest keeps bcrypt input under its 72 byte limit for any password length.
func saltedDigest(password, salt string) []byte {
	sum := sha256.Sum256([]byte(password + salt))
	return []byte(hex.EncodeToString(sum[:]))
}
