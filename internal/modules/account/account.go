// Package account provides live trading account objects with change
// notifications, and a registry that keeps them current from connector
// updates. Baskets subscribe to these accounts; every applied update fires
// the account's change callbacks.
package account

import (
	"sync"

	"github.com/aristath/basket/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot is the full observable state of an account at one instant.
type Snapshot struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Currency     domain.Currency `json:"currency"`
	BeginValue   decimal.Decimal `json:"begin_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
	BlockedValue decimal.Decimal `json:"blocked_value"`
	Leverage     decimal.Decimal `json:"leverage"`
	Commission   decimal.Decimal `json:"commission"`
}

// TrackedAccount is a live account. Implements domain.Account.
//
// Change callbacks fire after every applied update, always outside the
// account's own lock, so a subscriber may read any getter from within its
// callback without deadlocking.
type TrackedAccount struct {
	id string

	mu           sync.RWMutex
	name         string
	currency     domain.Currency
	beginValue   decimal.Decimal
	currentValue decimal.Decimal
	blockedValue decimal.Decimal
	leverage     decimal.Decimal
	commission   decimal.Decimal
	listeners    map[string]func()
}

// NewTrackedAccount creates an account from an initial snapshot.
func NewTrackedAccount(snap Snapshot) *TrackedAccount {
	return &TrackedAccount{
		id:           snap.ID,
		name:         snap.Name,
		currency:     snap.Currency,
		beginValue:   snap.BeginValue,
		currentValue: snap.CurrentValue,
		blockedValue: snap.BlockedValue,
		leverage:     snap.Leverage,
		commission:   snap.Commission,
		listeners:    make(map[string]func()),
	}
}

// ID returns the account identifier.
func (a *TrackedAccount) ID() string { return a.id }

// Name returns the display name.
func (a *TrackedAccount) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

// Currency returns the account's native currency.
func (a *TrackedAccount) Currency() domain.Currency {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currency
}

// BeginValue returns the value at period start.
func (a *TrackedAccount) BeginValue() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.beginValue
}

// CurrentValue returns the current value.
func (a *TrackedAccount) CurrentValue() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentValue
}

// BlockedValue returns the blocked value.
func (a *TrackedAccount) BlockedValue() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.blockedValue
}

// Leverage returns the account leverage.
func (a *TrackedAccount) Leverage() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.leverage
}

// Commission returns accumulated commission.
func (a *TrackedAccount) Commission() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.commission
}

// Snapshot returns a consistent copy of all observable fields.
func (a *TrackedAccount) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		ID:           a.id,
		Name:         a.name,
		Currency:     a.currency,
		BeginValue:   a.beginValue,
		CurrentValue: a.currentValue,
		BlockedValue: a.blockedValue,
		Leverage:     a.leverage,
		Commission:   a.commission,
	}
}

// Apply replaces the account's observable fields with the snapshot's values
// and notifies every subscriber. The snapshot's ID is ignored.
func (a *TrackedAccount) Apply(snap Snapshot) {
	a.mu.Lock()
	if snap.Name != "" {
		a.name = snap.Name
	}
	if snap.Currency != "" {
		a.currency = snap.Currency
	}
	a.beginValue = snap.BeginValue
	a.currentValue = snap.CurrentValue
	a.blockedValue = snap.BlockedValue
	a.leverage = snap.Leverage
	a.commission = snap.Commission
	a.mu.Unlock()

	a.notify()
}

// Subscribe registers a change callback. Implements domain.Account.
func (a *TrackedAccount) Subscribe(fn func()) domain.Subscription {
	token := uuid.NewString()

	a.mu.Lock()
	a.listeners[token] = fn
	a.mu.Unlock()

	return &subscription{account: a, token: token}
}

// SubscriberCount returns the number of live subscriptions.
func (a *TrackedAccount) SubscriberCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.listeners)
}

// notify invokes every listener registered at the moment of the update.
// The listener set is copied under the lock and invoked outside it.
func (a *TrackedAccount) notify() {
	a.mu.RLock()
	callbacks := make([]func(), 0, len(a.listeners))
	for _, fn := range a.listeners {
		callbacks = append(callbacks, fn)
	}
	a.mu.RUnlock()

	for _, fn := range callbacks {
		fn()
	}
}

// subscription is an owned change-notification registration.
// Cancel is idempotent.
type subscription struct {
	account *TrackedAccount
	token   string
	once    sync.Once
}

// Cancel removes the subscription from the account.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.account.mu.Lock()
		delete(s.account.listeners, s.token)
		s.account.mu.Unlock()
	})
}
