// Package services holds cross-module services that sit between clients and
// the basket engine.
package services

import (
	"fmt"

	"github.com/aristath/basket/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateProviderInterface supplies exchange rates as floats. Implemented by
// the exchangerate client; kept narrow so tests can substitute a mock.
type RateProviderInterface interface {
	GetRate(fromCurrency, toCurrency string) (float64, error)
}

// CurrencyExchangeService converts decimal amounts between currencies using
// a rate provider. Implements domain.CurrencyConverter for the basket engine.
type CurrencyExchangeService struct {
	rates RateProviderInterface
	log   zerolog.Logger
}

// NewCurrencyExchangeService creates a new currency exchange service.
func NewCurrencyExchangeService(rates RateProviderInterface, log zerolog.Logger) *CurrencyExchangeService {
	return &CurrencyExchangeService{
		rates: rates,
		log:   log.With().Str("service", "currency_exchange").Logger(),
	}
}

// Convert converts an amount between currencies. Same-currency conversions
// are exact no-ops and never touch the rate provider. Any provider failure
// wraps domain.ErrConversionFailed so callers can keep previous values.
func (s *CurrencyExchangeService) Convert(amount decimal.Decimal, from, to domain.Currency) (decimal.Decimal, error) {
	if from == to || from == "" || to == "" {
		return amount, nil
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	rate, err := s.rates.GetRate(string(from), string(to))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %v", domain.ErrConversionFailed, from, to, err)
	}
	if rate <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: non-positive rate %f", domain.ErrConversionFailed, from, to, rate)
	}

	return amount.Mul(decimal.NewFromFloat(rate)), nil
}
