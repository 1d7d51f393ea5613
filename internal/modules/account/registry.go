package account

import (
	"sort"
	"sync"

	"github.com/aristath/basket/internal/domain"
	"github.com/aristath/basket/internal/events"
	"github.com/rs/zerolog"
)

// Registry holds all known accounts by ID and keeps them current from
// connector updates. Implements domain.AccountProvider.
type Registry struct {
	mu           sync.RWMutex
	accounts     map[string]*TrackedAccount
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewRegistry creates a new account registry.
// eventManager is optional - if nil, no events are emitted.
func NewRegistry(eventManager *events.Manager, log zerolog.Logger) *Registry {
	return &Registry{
		accounts:     make(map[string]*TrackedAccount),
		eventManager: eventManager,
		log:          log.With().Str("service", "account_registry").Logger(),
	}
}

// Get returns the account with the given ID, or nil if unknown.
// The nil return is typed as domain.Account(nil), not a nil *TrackedAccount.
func (r *Registry) Get(id string) domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[id]
	if !ok {
		return nil
	}
	return acc
}

// All returns every known account, ordered by ID for deterministic output.
func (r *Registry) All() []domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]domain.Account, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.accounts[id])
	}
	return result
}

// Count returns the number of known accounts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

// Apply upserts the account described by the snapshot. An existing account
// is updated in place (firing its change notifications); an unknown one is
// created. Returns the affected account.
func (r *Registry) Apply(snap Snapshot, source string) *TrackedAccount {
	if snap.ID == "" {
		r.log.Warn().Msg("Ignoring account snapshot without ID")
		return nil
	}

	r.mu.Lock()
	acc, exists := r.accounts[snap.ID]
	if !exists {
		acc = NewTrackedAccount(snap)
		r.accounts[snap.ID] = acc
	}
	r.mu.Unlock()

	if exists {
		acc.Apply(snap)
	} else {
		r.log.Info().Str("account_id", snap.ID).Str("source", source).Msg("Registered new account")
	}

	if r.eventManager != nil {
		r.eventManager.EmitTyped(events.AccountUpdated, "account", &events.AccountUpdatedData{
			AccountID: snap.ID,
			Source:    source,
		})
	}

	return acc
}
