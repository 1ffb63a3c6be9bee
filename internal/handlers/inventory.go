package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/voicetory/apiserver/internal/services"
	"github.com/voicetory/apiserver/types"
)

const (
	formFieldSpreadsheet = "excel_file"
	maxMultipartMemory   = 32 << 20
	defaultMaxImport     = 16 << 20
)

// Pinger reports whether the inventory backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InventoryHandler serves inventory commands, listings and imports.
type InventoryHandler struct {
	ledger    *services.LedgerService
	importer  *services.ImportService
	backend   Pinger
	maxImport int64
}

func NewInventoryHandler(ledger *services.LedgerService, importer *services.ImportService, backend Pinger, maxImport int64) *InventoryHandler {
	if maxImport <= 0 {
		maxImport = defaultMaxImport
	}
	return &InventoryHandler{ledger: ledger, importer: importer, backend: backend, maxImport: maxImport}
}

// InventoryRouter registers inventory routes. Everything except the command
// examples and the health check requires a session.
func InventoryRouter(r chi.Router, handler *InventoryHandler, sessions SessionValidator) {
	r.Get("/examples", handler.Examples)
	r.Get("/health", handler.Health)

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(sessions))
		r.Post("/command", handler.Command)
		r.Get("/inventory", handler.Inventory)
		r.Get("/stats", handler.Stats)
		r.Get("/sales", handler.Sales)
		r.Delete("/delete", handler.Delete)
		r.Post("/import-excel", handler.Import)
	})
}

type CommandRequest struct {
	Text string `json:"text"`
}

type DeleteRequest struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
}

type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Text    string `json:"text,omitempty"`
	services.LedgerResult
}

type InventoryResponse struct {
	Success  bool            `json:"success"`
	Products []types.Product `json:"products"`
	Count    int             `json:"count"`
}

type StatsResponse struct {
	Success bool                 `json:"success"`
	Stats   types.InventoryStats `json:"stats"`
}

type SalesResponse struct {
	Success bool         `json:"success"`
	Sales   []types.Sale `json:"sales"`
}

type ImportResponse struct {
	Success bool `json:"success"`
	services.ImportReport
}

func (h *InventoryHandler) Command(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "No text provided in request")
		return
	}

	cmd, err := services.ParseCommand(text)
	if err != nil {
		log.Printf("inventory: rejected command %q: %v", text, err)
		writeServiceError(w, err)
		return
	}

	result, err := h.ledger.Execute(r.Context(), identity.UserID, cmd)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CommandResponse{
		Success:      true,
		Message:      commandMessage(result),
		Text:         text,
		LedgerResult: result,
	})
}

func (h *InventoryHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	products, err := h.ledger.List(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InventoryResponse{Success: true, Products: products, Count: len(products)})
}

func (h *InventoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	stats, err := h.ledger.Stats(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Success: true, Stats: stats})
}

func (h *InventoryHandler) Sales(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sales, err := h.ledger.Sales(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sales == nil {
		sales = []types.Sale{}
	}
	writeJSON(w, http.StatusOK, SalesResponse{Success: true, Sales: sales})
}

func (h *InventoryHandler) Examples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "examples": services.CommandExamples()})
}

func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req DeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Product name is required")
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "Quantity is required")
		return
	}

	result, err := h.ledger.Delete(r.Context(), identity.UserID, req.Name, *req.Quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{
		Success:      true,
		Message:      commandMessage(result),
		LedgerResult: result,
	})
}

func (h *InventoryHandler) Import(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImport+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldSpreadsheet)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	data, err := readFileLimited(file, h.maxImport)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.importer.ImportFile(r.Context(), identity.UserID, header.Filename, data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Success: true, ImportReport: report})
}

func (h *InventoryHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, message := "healthy", "Inventory service is running and storage is connected"
	if h.backend == nil {
		status, message = "degraded", "Inventory service is running but storage is not configured"
	} else if err := h.backend.Ping(r.Context()); err != nil {
		log.Printf("inventory: health ping failed: %v", err)
		status, message = "degraded", "Inventory service is running but storage is not connected"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": status, "message": message})
}

func commandMessage(result services.LedgerResult) string {
	switch result.Action {
	case types.ActionAdd:
		return "Added " + strconv.Itoa(result.Quantity) + " " + result.Product
	case types.ActionSell:
		return "Sold " + strconv.Itoa(result.Quantity) + " " + result.Product
	case types.ActionDelete:
		if result.Removed {
			return "Removed " + result.Product + " from inventory"
		}
		return "Deleted " + strconv.Itoa(result.Quantity) + " " + result.Product
	default:
		return "Command processed"
	}
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
