package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/voicetory/apiserver/types"
)

const (
	sessionTokenField = "session_token"
	maxTokenBodyBytes = 1 << 20
)

// SessionValidator is satisfied by *services.SessionService.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (types.Identity, error)
}

// RequireSession resolves the session token from the Authorization header,
// then the session_token query parameter on GET, then the session_token
// field of a JSON body. The identity is stored in the request context.
func RequireSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := sessionToken(w, r)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			identity, err := sessions.Validate(r.Context(), token)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

func sessionToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if token := bearerToken(r); token != "" {
		return token, nil
	}

	if r.Method == http.MethodGet {
		return strings.TrimSpace(r.URL.Query().Get(sessionTokenField)), nil
	}

	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return "", nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTokenBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		return "", err
	}
	// The handler reads the same body again.
	r.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		SessionToken string `json:"session_token"`
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.SessionToken), nil
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
