package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/voicetory/apiserver/internal/services"
	"github.com/voicetory/apiserver/types"
)

// AuthHandler provides signup, login and session endpoints.
type AuthHandler struct {
	users    *services.UserService
	sessions *services.SessionService
}

func NewAuthHandler(users *services.UserService, sessions *services.SessionService) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, users *services.UserService, sessions *services.SessionService) {
	handler := NewAuthHandler(users, sessions)

	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Post("/validate", handler.Validate)
	r.Post("/logout", handler.Logout)
	r.With(RequireSession(sessions)).Get("/profile", handler.Profile)
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginRequest struct {
	// Username also accepts an email address.
	Username string `json:"username"`
	Password string `json:"password"`
}

type SessionRequest struct {
	SessionToken string `json:"session_token"`
}

type SignupResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type LoginResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
}

type ValidateResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type ProfileResponse struct {
	Success bool       `json:"success"`
	User    types.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Create(r.Context(), services.NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{
		Success:  true,
		Message:  "User created successfully",
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, loginError(err))
		return
	}

	session, err := h.sessions.Create(r.Context(), user.ID, user.Username)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Success:      true,
		Message:      "Login successful",
		SessionToken: session.Token,
		ExpiresAt:    session.ExpiresAt,
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		FullName:     user.FullName,
	})
}

func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requestToken(w, r)
	if !ok {
		return
	}

	identity, err := h.sessions.Validate(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{
		Success:  true,
		Message:  "Session is valid",
		UserID:   identity.UserID,
		Username: identity.Username,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.requestToken(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Delete(r.Context(), token); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.users.Profile(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Success: true, User: user})
}

// requestToken reads the token from the body, falling back to the bearer header.
func (h *AuthHandler) requestToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return "", false
	}
	token := strings.TrimSpace(req.SessionToken)
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "Session token is required")
		return "", false
	}
	return token, true
}

// loginError hides whether the account exists.
func loginError(err error) error {
	if errors.Is(err, services.ErrUserNotFound) {
		return services.ErrInvalidCredentials
	}
	return err
}
