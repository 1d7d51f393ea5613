// Package basket provides the weighted basket aggregation engine.
//
// A WeightedBasket combines several independently-updating accounts into one
// synthetic portfolio. Basket-level metrics (begin value, current value,
// leverage, commission) are recomputed wholesale whenever the membership,
// a weight, or a member account changes, and constituent positions are
// re-grouped by instrument across accounts on demand.
package basket

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aristath/basket/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WeightEntry is one (account, weight) pair of a basket's weight table.
type WeightEntry struct {
	AccountID string          `json:"account_id"`
	Weight    decimal.Decimal `json:"weight"`
}

// Summary is a consistent snapshot of a basket's derived state.
type Summary struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	BaseCurrency domain.Currency `json:"base_currency"`
	BeginValue   decimal.Decimal `json:"begin_value"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Leverage     decimal.Decimal `json:"leverage"`
	Commission   decimal.Decimal `json:"commission"`
	Members      int             `json:"members"`
}

// memberEntry ties a member account to its weight and the owned
// change-notification subscription. Exactly one live subscription exists
// per table key; removing the entry cancels it.
type memberEntry struct {
	account domain.Account
	weight  decimal.Decimal
	sub     domain.Subscription
}

// WeightedBasket is the aggregation engine.
//
// One mutex guards the weight table and all derived fields as a single unit:
// a reader can never observe some fields reflecting the old membership and
// others the new one. Derived values are a pure function of
// (membership, weights, live member state); every trigger recomputes them
// wholesale - currency conversion and the leverage formula make incremental
// deltas error-prone.
type WeightedBasket struct {
	id           string
	baseCurrency domain.Currency
	converter    domain.CurrencyConverter
	source       domain.PositionSource
	log          zerolog.Logger

	// onRecompute, when set, fires after every successful recomputation,
	// outside the basket lock.
	onRecompute func(Summary)

	mu           sync.Mutex
	entries      []*memberEntry // insertion order
	name         string
	beginValue   decimal.Decimal
	currentValue decimal.Decimal
	leverage     decimal.Decimal
	commission   decimal.Decimal
}

// New creates an empty basket accumulating in baseCurrency.
func New(
	id string,
	baseCurrency domain.Currency,
	converter domain.CurrencyConverter,
	source domain.PositionSource,
	log zerolog.Logger,
) *WeightedBasket {
	return &WeightedBasket{
		id:           id,
		baseCurrency: baseCurrency,
		converter:    converter,
		source:       source,
		log:          log.With().Str("service", "basket").Str("basket_id", id).Logger(),
		beginValue:   decimal.Zero,
		currentValue: decimal.Zero,
		leverage:     decimal.Zero,
		commission:   decimal.Zero,
	}
}

// SetOnRecompute registers a hook fired after every successful
// recomputation pass. Must be set before the basket is shared.
func (b *WeightedBasket) SetOnRecompute(fn func(Summary)) {
	b.onRecompute = fn
}

// ID returns the basket identifier.
func (b *WeightedBasket) ID() string { return b.id }

// BaseCurrency returns the accumulation currency.
func (b *WeightedBasket) BaseCurrency() domain.Currency { return b.baseCurrency }

// Add inserts an account into the weight table, subscribes to its change
// notifications and synchronously recomputes name and derived values.
// Fails with ErrInvalidAccount on a nil account and ErrDuplicateMember if
// the account is already a member; state is unchanged on failure.
func (b *WeightedBasket) Add(account domain.Account, weight decimal.Decimal) error {
	if account == nil || account.ID() == "" {
		return domain.ErrInvalidAccount
	}

	b.mu.Lock()
	if b.findLocked(account.ID()) != nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrDuplicateMember, account.ID())
	}

	entry := &memberEntry{
		account: account,
		weight:  weight,
		sub:     account.Subscribe(b.onMemberChange),
	}
	b.entries = append(b.entries, entry)

	summary, err := b.refreshLocked()
	b.mu.Unlock()

	b.publish(summary, err)
	return nil
}

// Remove deletes an account from the weight table, cancels its subscription
// and recomputes. Returns false (a no-op, not an error) if the account is
// not a member.
func (b *WeightedBasket) Remove(accountID string) bool {
	b.mu.Lock()
	idx := -1
	for i, e := range b.entries {
		if e.account.ID() == accountID {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return false
	}

	entry := b.entries[idx]
	b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
	entry.sub.Cancel()

	summary, err := b.refreshLocked()
	b.mu.Unlock()

	b.publish(summary, err)
	return true
}

// Clear removes every member one at a time via Remove. Each removal runs
// its own recomputation pass, so derived state is consistent after every
// step, never only at the end.
func (b *WeightedBasket) Clear() {
	for {
		b.mu.Lock()
		if len(b.entries) == 0 {
			b.mu.Unlock()
			return
		}
		id := b.entries[0].account.ID()
		b.mu.Unlock()

		b.Remove(id)
	}
}

// SetWeight replaces the weight of an existing member in a single
// recomputation pass. End state is identical to Remove followed by Add with
// the same weight. Fails with ErrInvalidAccount if the account is not a
// member.
func (b *WeightedBasket) SetWeight(accountID string, weight decimal.Decimal) error {
	b.mu.Lock()
	entry := b.findLocked(accountID)
	if entry == nil {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s is not a member", domain.ErrInvalidAccount, accountID)
	}
	entry.weight = weight

	summary, err := b.refreshLocked()
	b.mu.Unlock()

	b.publish(summary, err)
	return nil
}

// Weights returns the weight table in insertion order.
func (b *WeightedBasket) Weights() []WeightEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]WeightEntry, 0, len(b.entries))
	for _, e := range b.entries {
		result = append(result, WeightEntry{AccountID: e.account.ID(), Weight: e.weight})
	}
	return result
}

// InnerPortfolios returns the member accounts in insertion order.
func (b *WeightedBasket) InnerPortfolios() []domain.Account {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]domain.Account, 0, len(b.entries))
	for _, e := range b.entries {
		result = append(result, e.account)
	}
	return result
}

// Name returns the deterministic rendering of the weight table,
// "w1*pf1, w2*pf2, ..." in insertion order. It changes exactly when
// membership or weights change, never on a pure value refresh.
func (b *WeightedBasket) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

// BeginValue returns the weighted begin value in the basket currency.
func (b *WeightedBasket) BeginValue() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.beginValue
}

// CurrentValue returns the weighted current value in the basket currency.
func (b *WeightedBasket) CurrentValue() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentValue
}

// Leverage returns the weighted leverage sum divided by the member count,
// zero for an empty basket.
func (b *WeightedBasket) Leverage() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leverage
}

// Commission returns the weighted commission in the basket currency.
func (b *WeightedBasket) Commission() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commission
}

// Summary returns a consistent snapshot of name and derived values.
func (b *WeightedBasket) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.summaryLocked()
}

// Recompute re-derives the basket values from current member state.
// On conversion failure the previously published values stay in place and
// the error is returned.
func (b *WeightedBasket) Recompute() error {
	b.mu.Lock()
	summary, err := b.refreshLocked()
	b.mu.Unlock()

	b.publish(summary, err)
	return err
}

// onMemberChange handles a change notification from a member account.
// Notifications may arrive on any goroutine; the lock is acquired here,
// never inside a callback that already holds it.
func (b *WeightedBasket) onMemberChange() {
	_ = b.Recompute() // failure already logged by publish
}

// findLocked returns the entry for the account ID, or nil. Callers hold b.mu.
func (b *WeightedBasket) findLocked(accountID string) *memberEntry {
	for _, e := range b.entries {
		if e.account.ID() == accountID {
			return e
		}
	}
	return nil
}

// refreshLocked recomputes the name and the four derived values.
// Callers hold b.mu.
//
// The name is pure bookkeeping and always updates. Value accumulation runs
// into locals and publishes all four at once; on conversion failure nothing
// is published and the previous consistent values remain.
func (b *WeightedBasket) refreshLocked() (Summary, error) {
	b.name = b.renderNameLocked()

	begin := decimal.Zero
	current := decimal.Zero
	leverage := decimal.Zero
	commission := decimal.Zero

	for _, e := range b.entries {
		acc := e.account
		from := acc.Currency()

		fields := [4]decimal.Decimal{
			acc.BeginValue(), acc.CurrentValue(), acc.Leverage(), acc.Commission(),
		}
		for i, v := range fields {
			converted, err := b.convert(v, from)
			if err != nil {
				return Summary{}, fmt.Errorf("account %s: %w", acc.ID(), err)
			}
			fields[i] = converted.Mul(e.weight)
		}

		begin = begin.Add(fields[0])
		current = current.Add(fields[1])
		leverage = leverage.Add(fields[2])
		commission = commission.Add(fields[3])
	}

	// Leverage divides by raw member count, not by the weight sum. The
	// source system defines it this way; zero members means zero leverage.
	if count := len(b.entries); count > 0 {
		leverage = leverage.Div(decimal.NewFromInt(int64(count)))
	} else {
		leverage = decimal.Zero
	}

	b.beginValue = begin
	b.currentValue = current
	b.leverage = leverage
	b.commission = commission

	return b.summaryLocked(), nil
}

// convert converts v from the given currency into the basket currency.
func (b *WeightedBasket) convert(v decimal.Decimal, from domain.Currency) (decimal.Decimal, error) {
	if from == "" || from == b.baseCurrency {
		return v, nil
	}
	return b.converter.Convert(v, from, b.baseCurrency)
}

// renderNameLocked renders the weight table in insertion order.
// Callers hold b.mu.
func (b *WeightedBasket) renderNameLocked() string {
	parts := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		parts = append(parts, e.weight.String()+"*"+e.account.ID())
	}
	return strings.Join(parts, ", ")
}

// summaryLocked builds a Summary. Callers hold b.mu.
func (b *WeightedBasket) summaryLocked() Summary {
	return Summary{
		ID:           b.id,
		Name:         b.name,
		BaseCurrency: b.baseCurrency,
		BeginValue:   b.beginValue,
		CurrentValue: b.currentValue,
		Leverage:     b.leverage,
		Commission:   b.commission,
		Members:      len(b.entries),
	}
}

// publish fires the recompute hook for a successful pass, or logs the
// failure of an aborted one. Runs outside the basket lock so the hook may
// read the basket freely.
func (b *WeightedBasket) publish(summary Summary, err error) {
	if err != nil {
		b.log.Warn().Err(err).Msg("Recomputation aborted, keeping previous derived values")
		return
	}
	if b.onRecompute != nil {
		b.onRecompute(summary)
	}
}
