package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PositionSource defines the connector capability consumed by the basket engine.
// This interface abstracts away connector-specific implementations so the engine
// can be tested without live transport.
type PositionSource interface {
	// PositionsOf returns every currently known position belonging to any of
	// the given accounts. All-or-nothing: on any failure it returns
	// ErrSourceUnavailable (wrapped) and no partial result.
	PositionsOf(ctx context.Context, accountIDs []string) ([]Position, error)
}

// CurrencyConverter defines the currency-conversion capability.
// Used by the basket engine whenever a member's native currency differs from
// the basket's accumulation currency.
type CurrencyConverter interface {
	// Convert converts amount from one currency to another. Deterministic for
	// fixed rate inputs. Returns ErrConversionFailed (wrapped) when no rate
	// can be produced.
	Convert(amount decimal.Decimal, from, to Currency) (decimal.Decimal, error)
}

// AccountProvider resolves account IDs to live account objects.
// Breaks the import cycle between the basket and account modules.
type AccountProvider interface {
	// Get returns the account with the given ID, or nil if unknown.
	Get(id string) Account
	// All returns every known account.
	All() []Account
}
