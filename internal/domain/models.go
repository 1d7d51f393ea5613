// Package domain provides core domain models and types.
package domain

import "github.com/shopspring/decimal"

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
	CurrencyRUB Currency = "RUB"
)

// Money represents a monetary value with currency
type Money struct {
	Currency Currency        `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// NewMoney creates a new Money value
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// Position represents a per-instrument holding within an account,
// as reported by the position connector.
type Position struct {
	AccountID    string          `json:"account_id"`
	Instrument   string          `json:"instrument"`
	BeginValue   decimal.Decimal `json:"begin_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
	BlockedValue decimal.Decimal `json:"blocked_value"`
}
