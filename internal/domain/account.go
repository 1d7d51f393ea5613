package domain

import "github.com/shopspring/decimal"

// Account is the account capability consumed by the basket engine.
// Implementations are owned by the surrounding system (see modules/account);
// the engine only reads the money fields and subscribes to change notifications.
type Account interface {
	ID() string
	Name() string
	Currency() Currency
	BeginValue() decimal.Decimal
	CurrentValue() decimal.Decimal
	BlockedValue() decimal.Decimal
	Leverage() decimal.Decimal
	Commission() decimal.Decimal

	// Subscribe registers a change callback fired after any observable field
	// mutates. Implementations must invoke callbacks outside their own lock.
	// The returned Subscription is the caller's obligation: exactly one Cancel
	// per Subscribe, after which the callback is never invoked again.
	Subscribe(fn func()) Subscription
}

// Subscription is an owned change-notification registration.
type Subscription interface {
	Cancel()
}
