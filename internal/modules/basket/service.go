package basket

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/basket/internal/domain"
	"github.com/aristath/basket/internal/events"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrBasketNotFound is returned for operations on an unknown basket ID.
	ErrBasketNotFound = errors.New("basket not found")

	// ErrDuplicateBasket is returned when creating a basket whose ID is taken.
	ErrDuplicateBasket = errors.New("basket already exists")
)

// Service manages the set of named baskets: lifecycle, membership edits,
// persistence of definitions and event emission. The per-basket math lives
// in WeightedBasket; the service layers identity and durability on top.
type Service struct {
	accounts     domain.AccountProvider
	converter    domain.CurrencyConverter
	source       domain.PositionSource
	repo         *Repository
	eventManager *events.Manager
	log          zerolog.Logger

	mu      sync.RWMutex
	baskets map[string]*WeightedBasket
}

// NewService creates a basket service. repo and eventManager may be nil
// (no persistence, no events).
func NewService(
	accounts domain.AccountProvider,
	converter domain.CurrencyConverter,
	source domain.PositionSource,
	repo *Repository,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		accounts:     accounts,
		converter:    converter,
		source:       source,
		repo:         repo,
		eventManager: eventManager,
		log:          log.With().Str("service", "basket").Logger(),
		baskets:      make(map[string]*WeightedBasket),
	}
}

// Create registers a new empty basket.
func (s *Service) Create(id string, baseCurrency domain.Currency) (*WeightedBasket, error) {
	if id == "" {
		return nil, errors.New("basket id must not be empty")
	}

	s.mu.Lock()
	if _, exists := s.baskets[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBasket, id)
	}

	b := New(id, baseCurrency, s.converter, s.source, s.log)
	s.attachRecomputeHook(b)
	s.baskets[id] = b
	s.mu.Unlock()

	if err := s.persist(b); err != nil {
		s.log.Error().Err(err).Str("basket_id", id).Msg("Failed to persist new basket")
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped(events.BasketCreated, "basket", &events.BasketCreatedData{
			BasketID:     id,
			BaseCurrency: string(baseCurrency),
		})
	}

	s.log.Info().Str("basket_id", id).Str("currency", string(baseCurrency)).Msg("Basket created")
	return b, nil
}

// Delete clears a basket's membership, removes it from the registry and
// deletes its persisted definition. Returns false for an unknown ID.
func (s *Service) Delete(id string) bool {
	s.mu.Lock()
	b, ok := s.baskets[id]
	if ok {
		delete(s.baskets, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	// Cancels every member subscription so a deleted basket stops reacting.
	b.Clear()

	if s.repo != nil {
		if _, err := s.repo.Delete(id); err != nil {
			s.log.Error().Err(err).Str("basket_id", id).Msg("Failed to delete persisted basket")
		}
	}

	if s.eventManager != nil {
		s.eventManager.Emit(events.BasketDeleted, "basket", map[string]interface{}{
			"basket_id": id,
		})
	}

	s.log.Info().Str("basket_id", id).Msg("Basket deleted")
	return true
}

// Get returns a basket by ID.
func (s *Service) Get(id string) (*WeightedBasket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baskets[id]
	return b, ok
}

// List returns a summary of every basket, ordered by ID.
func (s *Service) List() []Summary {
	s.mu.RLock()
	baskets := make([]*WeightedBasket, 0, len(s.baskets))
	for _, b := range s.baskets {
		baskets = append(baskets, b)
	}
	s.mu.RUnlock()

	summaries := make([]Summary, 0, len(baskets))
	for _, b := range baskets {
		summaries = append(summaries, b.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// Count returns the number of registered baskets.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.baskets)
}

// AddMember resolves an account by ID and adds it to the basket.
func (s *Service) AddMember(basketID, accountID string, weight decimal.Decimal) error {
	b, ok := s.Get(basketID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBasketNotFound, basketID)
	}

	acc := s.accounts.Get(accountID)
	if acc == nil {
		return fmt.Errorf("%w: unknown account %s", domain.ErrInvalidAccount, accountID)
	}

	if err := b.Add(acc, weight); err != nil {
		return err
	}

	if err := s.persist(b); err != nil {
		s.log.Error().Err(err).Str("basket_id", basketID).Msg("Failed to persist membership change")
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped(events.MemberAdded, "basket", &events.MemberAddedData{
			BasketID:  basketID,
			AccountID: accountID,
			Weight:    weight.String(),
		})
	}

	return nil
}

// RemoveMember removes an account from the basket. The bool reports whether
// the account was a member; unknown baskets are an error, unknown members
// are not.
func (s *Service) RemoveMember(basketID, accountID string) (bool, error) {
	b, ok := s.Get(basketID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrBasketNotFound, basketID)
	}

	removed := b.Remove(accountID)
	if !removed {
		return false, nil
	}

	if err := s.persist(b); err != nil {
		s.log.Error().Err(err).Str("basket_id", basketID).Msg("Failed to persist membership change")
	}

	if s.eventManager != nil {
		s.eventManager.EmitTyped(events.MemberRemoved, "basket", &events.MemberRemovedData{
			BasketID:  basketID,
			AccountID: accountID,
		})
	}

	return true, nil
}

// SetWeight replaces a member's weight.
func (s *Service) SetWeight(basketID, accountID string, weight decimal.Decimal) error {
	b, ok := s.Get(basketID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBasketNotFound, basketID)
	}

	if err := b.SetWeight(accountID, weight); err != nil {
		return err
	}

	if err := s.persist(b); err != nil {
		s.log.Error().Err(err).Str("basket_id", basketID).Msg("Failed to persist weight change")
	}
	return nil
}

// Positions returns the basket's weight-scaled position views.
func (s *Service) Positions(ctx context.Context, basketID string) ([]WeightedPositionView, error) {
	b, ok := s.Get(basketID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBasketNotFound, basketID)
	}
	return b.Positions(ctx)
}

// Restore rebuilds baskets from persisted definitions. Members whose
// accounts are not (yet) known are skipped with a warning; the rest of the
// basket still loads.
func (s *Service) Restore() error {
	if s.repo == nil {
		return nil
	}

	defs, err := s.repo.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load basket definitions: %w", err)
	}

	for _, def := range defs {
		b := New(def.ID, def.BaseCurrency, s.converter, s.source, s.log)
		s.attachRecomputeHook(b)

		for _, m := range def.Members {
			acc := s.accounts.Get(m.AccountID)
			if acc == nil {
				s.log.Warn().
					Str("basket_id", def.ID).
					Str("account_id", m.AccountID).
					Msg("Skipping persisted member, account unknown")
				continue
			}
			if err := b.Add(acc, m.Weight); err != nil {
				s.log.Warn().Err(err).
					Str("basket_id", def.ID).
					Str("account_id", m.AccountID).
					Msg("Skipping persisted member")
			}
		}

		s.mu.Lock()
		s.baskets[def.ID] = b
		s.mu.Unlock()

		s.log.Info().
			Str("basket_id", def.ID).
			Int("members", len(b.Weights())).
			Msg("Basket restored")
	}

	return nil
}

// attachRecomputeHook wires a basket's recompute hook to the event bus.
func (s *Service) attachRecomputeHook(b *WeightedBasket) {
	if s.eventManager == nil {
		return
	}
	b.SetOnRecompute(func(summary Summary) {
		s.eventManager.EmitTyped(events.BasketRecomputed, "basket", &events.BasketRecomputedData{
			BasketID:     summary.ID,
			Name:         summary.Name,
			CurrentValue: summary.CurrentValue.String(),
			Members:      summary.Members,
		})
	})
}

// persist saves the basket's current definition.
func (s *Service) persist(b *WeightedBasket) error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Save(Definition{
		ID:           b.ID(),
		BaseCurrency: b.BaseCurrency(),
		Members:      b.Weights(),
	})
}
