// Package handlers provides HTTP handlers for currency operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/basket/internal/domain"
	"github.com/aristath/basket/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles currency HTTP requests
type Handler struct {
	exchangeService *services.CurrencyExchangeService
	rates           services.RateProviderInterface
	log             zerolog.Logger
}

// NewHandler creates a new currency handler
func NewHandler(
	exchangeService *services.CurrencyExchangeService,
	rates services.RateProviderInterface,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		exchangeService: exchangeService,
		rates:           rates,
		log:             log.With().Str("handler", "currency").Logger(),
	}
}

// ConvertRequest represents a request to convert an amount between currencies
type ConvertRequest struct {
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
	Amount       string `json:"amount"`
}

// HandleConvert converts an amount between currencies
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FromCurrency == "" || req.ToCurrency == "" {
		h.writeError(w, http.StatusBadRequest, "from_currency and to_currency are required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	converted, err := h.exchangeService.Convert(amount, domain.Currency(req.FromCurrency), domain.Currency(req.ToCurrency))
	if err != nil {
		if errors.Is(err, domain.ErrConversionFailed) {
			h.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from_currency": req.FromCurrency,
		"to_currency":   req.ToCurrency,
		"amount":        amount.String(),
		"converted":     converted.String(),
	})
}

// HandleGetRate returns the current exchange rate for a pair
func (h *Handler) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")

	rate, err := h.rates.GetRate(from, to)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"from_currency": from,
		"to_currency":   to,
		"rate":          rate,
	})
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
