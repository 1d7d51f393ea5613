// Package handlers provides HTTP handlers for basket operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aristath/basket/internal/domain"
	"github.com/aristath/basket/internal/modules/basket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles basket HTTP requests
type Handler struct {
	service *basket.Service
	history *basket.HistoryRepository
	log     zerolog.Logger
}

// NewHandler creates a new basket handler. history may be nil; the history
// endpoint then answers 404.
func NewHandler(service *basket.Service, history *basket.HistoryRepository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		history: history,
		log:     log.With().Str("handler", "basket").Logger(),
	}
}

// CreateRequest is the body of POST /baskets.
type CreateRequest struct {
	ID           string `json:"id"`
	BaseCurrency string `json:"base_currency"`
}

// MemberRequest is the body of POST /baskets/{id}/members.
type MemberRequest struct {
	AccountID string `json:"account_id"`
	Weight    string `json:"weight"`
}

// WeightRequest is the body of PUT /baskets/{id}/members/{accountID}.
type WeightRequest struct {
	Weight string `json:"weight"`
}

// HandleList returns summaries of all baskets
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"baskets": h.service.List(),
	})
}

// HandleCreate creates a new basket
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		h.writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.BaseCurrency == "" {
		h.writeError(w, http.StatusBadRequest, "base_currency is required")
		return
	}

	b, err := h.service.Create(req.ID, domain.Currency(req.BaseCurrency))
	if err != nil {
		if errors.Is(err, basket.ErrDuplicateBasket) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, b.Summary())
}

// HandleGet returns one basket's summary and weight table
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	b, ok := h.service.Get(chi.URLParam(r, "basketID"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "basket not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": b.Summary(),
		"members": b.Weights(),
	})
}

// HandleDelete deletes a basket
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.service.Delete(chi.URLParam(r, "basketID")) {
		h.writeError(w, http.StatusNotFound, "basket not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleListMembers returns the weight table
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	b, ok := h.service.Get(chi.URLParam(r, "basketID"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "basket not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"members": b.Weights(),
	})
}

// HandleAddMember adds an account to the basket
func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	basketID := chi.URLParam(r, "basketID")

	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	weight, err := decimal.NewFromString(req.Weight)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid weight")
		return
	}

	if err := h.service.AddMember(basketID, req.AccountID, weight); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

// HandleRemoveMember removes an account from the basket
func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	basketID := chi.URLParam(r, "basketID")
	accountID := chi.URLParam(r, "accountID")

	removed, err := h.service.RemoveMember(basketID, accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !removed {
		h.writeError(w, http.StatusNotFound, "account is not a member")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// HandleSetWeight replaces a member's weight
func (h *Handler) HandleSetWeight(w http.ResponseWriter, r *http.Request) {
	basketID := chi.URLParam(r, "basketID")
	accountID := chi.URLParam(r, "accountID")

	var req WeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	weight, err := decimal.NewFromString(req.Weight)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid weight")
		return
	}

	if err := h.service.SetWeight(basketID, accountID, weight); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// HandleGetPositions returns weight-scaled positions grouped by instrument
func (h *Handler) HandleGetPositions(w http.ResponseWriter, r *http.Request) {
	basketID := chi.URLParam(r, "basketID")

	views, err := h.service.Positions(r.Context(), basketID)
	if err != nil {
		if errors.Is(err, basket.ErrBasketNotFound) {
			h.writeError(w, http.StatusNotFound, "basket not found")
			return
		}
		if errors.Is(err, domain.ErrSourceUnavailable) {
			h.writeError(w, http.StatusBadGateway, "position source unavailable")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": views,
	})
}

// HandleGetHistory returns recorded valuation snapshots, newest first
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	basketID := chi.URLParam(r, "basketID")

	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "history not available")
		return
	}
	if _, ok := h.service.Get(basketID); !ok {
		h.writeError(w, http.StatusNotFound, "basket not found")
		return
	}

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.history.List(basketID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": records,
	})
}

// HandleRecompute forces a recomputation pass
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	b, ok := h.service.Get(chi.URLParam(r, "basketID"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "basket not found")
		return
	}

	if err := b.Recompute(); err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, b.Summary())
}

// writeServiceError maps service errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, basket.ErrBasketNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, basket.ErrDuplicateBasket), errors.Is(err, domain.ErrDuplicateMember):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidAccount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
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
