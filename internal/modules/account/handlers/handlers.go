// Package handlers provides HTTP handlers for account operations.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/aristath/basket/internal/modules/account"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles account HTTP requests
type Handler struct {
	registry *account.Registry
	log      zerolog.Logger
}

// NewHandler creates a new account handler
func NewHandler(registry *account.Registry, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		log:      log.With().Str("handler", "account").Logger(),
	}
}

// HandleList returns all known accounts
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	accounts := h.registry.All()

	snapshots := make([]account.Snapshot, 0, len(accounts))
	for _, acc := range accounts {
		if tracked, ok := acc.(*account.TrackedAccount); ok {
			snapshots = append(snapshots, tracked.Snapshot())
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": snapshots,
	})
}

// HandleGet returns one account
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	acc := h.registry.Get(chi.URLParam(r, "accountID"))
	if acc == nil {
		h.writeError(w, http.StatusNotFound, "account not found")
		return
	}

	tracked, ok := acc.(*account.TrackedAccount)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "unexpected account type")
		return
	}

	h.writeJSON(w, http.StatusOK, tracked.Snapshot())
}

// HandleUpsert applies a manually supplied account snapshot, creating the
// account if unknown. Member baskets recompute off the resulting change
// notifications exactly as they do for connector updates.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var snap account.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if snap.ID == "" {
		h.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	tracked := h.registry.Apply(snap, "api")
	h.writeJSON(w, http.StatusOK, tracked.Snapshot())
}

// HandleUpdate applies a snapshot to the account named in the path.
// The path ID wins over any ID in the body; unknown accounts are 404, not
// implicitly created.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if h.registry.Get(accountID) == nil {
		h.writeError(w, http.StatusNotFound, "account not found")
		return
	}

	var snap account.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap.ID = accountID

	tracked := h.registry.Apply(snap, "api")
	h.writeJSON(w, http.StatusOK, tracked.Snapshot())
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
