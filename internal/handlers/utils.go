package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/voicetory/apiserver/internal/services"
	"github.com/voicetory/apiserver/types"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

func withIdentity(ctx context.Context, identity types.Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

// IdentityFromContext returns the identity set by RequireSession.
func IdentityFromContext(ctx context.Context) (types.Identity, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(types.Identity)
	return identity, ok && identity.UserID != ""
}

// ErrorResponse is the failure payload of every endpoint.
type ErrorResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Available *int     `json:"available,omitempty"`
	Examples  []string `json:"command_examples,omitempty"`
	Columns   []string `json:"missing_columns,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

// writeServiceError maps the service error taxonomy onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		parseErr        *services.ParseError
		insufficientErr *services.InsufficientQuantityError
		columnsErr      *services.MissingColumnsError
	)

	switch {
	case errors.As(err, &parseErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: parseErr.Message, Examples: parseErr.Examples})
	case errors.As(err, &insufficientErr):
		available := insufficientErr.Available
		writeJSON(w, http.StatusConflict, ErrorResponse{Message: insufficientErr.Error(), Available: &available})
	case errors.As(err, &columnsErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: columnsErr.Error(), Columns: columnsErr.Columns})
	case errors.Is(err, services.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrDuplicateEntity),
		errors.Is(err, services.ErrQuantityLimit):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrDeactivated),
		errors.Is(err, services.ErrSessionExpired),
		errors.Is(err, services.ErrSessionInvalid):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidName),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrMissingFields),
		errors.Is(err, services.ErrNoValidRows),
		errors.Is(err, services.ErrInvalidSpreadsheet):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("handlers: unexpected error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Healthz is the liveness check.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
