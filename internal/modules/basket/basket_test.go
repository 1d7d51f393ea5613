package basket

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aristath/basket/internal/domain"
	"github.com/aristath/basket/internal/modules/account"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityConverter returns amounts unchanged regardless of currency pair.
type identityConverter struct{}

func (identityConverter) Convert(amount decimal.Decimal, from, to domain.Currency) (decimal.Decimal, error) {
	return amount, nil
}

// fixedRateConverter converts through a static pair table.
type fixedRateConverter struct {
	rates map[string]decimal.Decimal // "FROM/TO" -> rate
}

func (c *fixedRateConverter) Convert(amount decimal.Decimal, from, to domain.Currency) (decimal.Decimal, error) {
	rate, ok := c.rates[string(from)+"/"+string(to)]
	if !ok {
		return decimal.Zero, domain.ErrConversionFailed
	}
	return amount.Mul(rate), nil
}

// failingConverter fails every conversion.
type failingConverter struct{}

func (failingConverter) Convert(amount decimal.Decimal, from, to domain.Currency) (decimal.Decimal, error) {
	return decimal.Zero, domain.ErrConversionFailed
}

// stubSource is a canned PositionSource for engine tests.
type stubSource struct {
	mu        sync.Mutex
	positions []domain.Position
	err       error
	lastQuery []string
}

func (s *stubSource) PositionsOf(ctx context.Context, accountIDs []string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = append([]string(nil), accountIDs...)
	if s.err != nil {
		return nil, s.err
	}
	return s.positions, nil
}

func testAccount(id string, currency domain.Currency, begin, current, leverage, commission float64) *account.TrackedAccount {
	return account.NewTrackedAccount(account.Snapshot{
		ID:           id,
		Name:         id,
		Currency:     currency,
		BeginValue:   decimal.NewFromFloat(begin),
		CurrentValue: decimal.NewFromFloat(current),
		Leverage:     decimal.NewFromFloat(leverage),
		Commission:   decimal.NewFromFloat(commission),
	})
}

func newTestBasket(t *testing.T, converter domain.CurrencyConverter) *WeightedBasket {
	t.Helper()
	if converter == nil {
		converter = identityConverter{}
	}
	return New("b1", domain.CurrencyUSD, converter, &stubSource{}, zerolog.Nop())
}

func TestAdd(t *testing.T) {
	t.Run("accumulates weighted values", func(t *testing.T) {
		b := newTestBasket(t, nil)

		p1 := testAccount("p1", domain.CurrencyUSD, 100, 110, 2, 1)
		p2 := testAccount("p2", domain.CurrencyUSD, 200, 180, 4, 3)

		require.NoError(t, b.Add(p1, decimal.NewFromInt(2)))
		require.NoError(t, b.Add(p2, decimal.NewFromInt(3)))

		// begin = 2*100 + 3*200, current = 2*110 + 3*180
		assert.True(t, b.BeginValue().Equal(decimal.NewFromInt(800)), "got %s", b.BeginValue())
		assert.True(t, b.CurrentValue().Equal(decimal.NewFromInt(760)), "got %s", b.CurrentValue())
		// commission = 2*1 + 3*3
		assert.True(t, b.Commission().Equal(decimal.NewFromInt(11)), "got %s", b.Commission())
		// leverage = (2*2 + 3*4) / 2 members
		assert.True(t, b.Leverage().Equal(decimal.NewFromInt(8)), "got %s", b.Leverage())
	})

	t.Run("rejects nil account", func(t *testing.T) {
		b := newTestBasket(t, nil)
		err := b.Add(nil, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, domain.ErrInvalidAccount)
	})

	t.Run("rejects duplicate member", func(t *testing.T) {
		b := newTestBasket(t, nil)
		p1 := testAccount("p1", domain.CurrencyUSD, 100, 100, 1, 0)

		require.NoError(t, b.Add(p1, decimal.NewFromInt(1)))
		err := b.Add(p1, decimal.NewFromInt(2))
		require.ErrorIs(t, err, domain.ErrDuplicateMember)

		// Failed add leaves the weight table and subscriptions untouched.
		assert.Len(t, b.Weights(), 1)
		assert.True(t, b.Weights()[0].Weight.Equal(decimal.NewFromInt(1)))
		assert.Equal(t, 1, p1.SubscriberCount())
	})

	t.Run("subscribes to member changes", func(t *testing.T) {
		b := newTestBasket(t, nil)
		p1 := testAccount("p1", domain.CurrencyUSD, 100, 100, 1, 0)

		require.NoError(t, b.Add(p1, decimal.NewFromInt(1)))
		assert.Equal(t, 1, p1.SubscriberCount())

		snap := p1.Snapshot()
		snap.CurrentValue = decimal.NewFromInt(150)
		p1.Apply(snap)

		assert.True(t, b.CurrentValue().Equal(decimal.NewFromInt(150)), "got %s", b.CurrentValue())
	})
}

func TestRemove(t *testing.T) {
	t.Run("removes member and recomputes", func(t *testing.T) {
		b := newTestBasket(t, nil)
		p1 := testAccount("p1", domain.CurrencyUSD, 100, 100, 1, 0)
		p2 := testAccount("p2", domain.CurrencyUSD, 50, 50, 1, 0)
		require.NoError(t, b.Add(p1, decimal.NewFromInt(1)))
		require.NoError(t, b.Add(p2, decimal.NewFromInt(1)))

		assert.True(t, b.Remove("p1"))
		assert.True(t, b.BeginValue().Equal(decimal.NewFromInt(50)), "got %s", b.BeginValue())
		assert.Equal(t, 0, p1.SubscriberCount())
	})

	t.Run("non-member is a no-op", func(t *testing.T) {
		b := newTestBasket(t, nil)
		p1 := testAccount("p1", domain.CurrencyUSD, 100, 100, 1, 0)
		require.NoError(t, b.Add(p1, decimal.NewFromInt(1)))

		before := b.Summary()
		assert.False(t, b.Remove("ghost"))
		assert.Equal(t, before, b.Summary())
		assert.Equal(t, 1, p1.SubscriberCount())
	})

	t.Run("removed member no longer triggers recomputation", func(t *testing.T) {
		b := newTestBasket(t, nil)
		p1 := testAccount("p1", domain.CurrencyUSD, 100, 100, 1, 0)
		require.NoError(t, b.Add(p1, decimal.NewFromInt(1)))
		require.True(t, b.Remove("p1"))

		snap := p1.Snapshot()
		snap.CurrentValue = decimal.NewFromInt(999)
		p1.Apply(snap)

		assert.True(t, b.CurrentValue().Equal(decimal.Zero), "got %s", b.CurrentValue())
	})
}

func TestName(t *testing.T) {
	t.Run("renders weight table in insertion order", func(t *testing.T) {
		b := newTestBasket(t, nil)
		require.NoError(t, b.Add(testAccount("pf1", domain.CurrencyUSD, 0, 0, 0, 0), decimal.NewFromFloat(1.5)))
		require.NoError(t, b.Add(testAccount("pf2", domain.CurrencyUSD, 0, 0, 0, 0), decimal.NewFromInt(2)))

		assert.Equal(t, "1.5*pf1, 2*pf2", b.Name())
	})

	t.Run("empty basket has empty name", func(t *testing.T) {
		b := newTestBasket(t, nil)
		assert.Equal(t, "", b.Name())
	})

	t.Run("restored exactly after add then remove", func(t *testing.T) {
		b := newTestBasket(t, nil)
		require.NoError(t, b.Add(testAccount("pf1", domain.CurrencyUSD, 0, 0, 0, 0), decimal.NewFromInt(1)))
		before := b.Name()

		require.NoError(t, b.Add(testAccount("pf2", domain.CurrencyUSD, 0, 0, 0, 0), decimal.NewFromInt(2)))
		assert.NotEqual(t, before, b.Name())

		require.True(t, b.Remove("pf2"))
		assert.Equal(t, before, b.Name())
	})

	t.Run("unchanged by value refresh", func(t *testing.T) {
		b := newTestBasket(t, nil)
		p1 := testAccount("pf1", domain.CurrencyUSD, 100, 100, 1, 0)
		require.NoError(t, b.Add(p1, decimal.NewFromInt(1)))
		before := b.Name()

		snap := p1.Snapshot()
		snap.CurrentValue = decimal.NewFromInt(500)
		p1.Apply(snap)

		assert.Equal(t, before, b.Name())
	})
}

func TestSetWeight(t *testing.T) {
	t.Run("matches remove then add", func(t *testing.T) {
		direct := newTestBasket(t, nil)
		roundabout := newTestBasket(t, nil)

		mk := func() (*account.TrackedAccount, *account.TrackedAccount) {
			return testAccount("p1", domain.CurrencyUSD, 100, 110, 2, 1),
				testAccount("p2", domain.CurrencyUSD, 200, 180, 4, 3)
		}

		d1, d2 := mk()
		require.NoError(t, direct.Add(d1, decimal.NewFromInt(1)))
		require.NoError(t, direct.Add(d2, decimal.NewFromInt(3)))
		require.NoError(t, direct.SetWeight("p2", decimal.NewFromInt(5)))

		r1, r2 := mk()
		require.NoError(t, roundabout.Add(r1, decimal.NewFromInt(1)))
		require.NoError(t, roundabout.Add(r2, decimal.NewFromInt(3)))
		require.True(t, roundabout.Remove("p2"))
		require.NoError(t, roundabout.Add(r2, decimal.NewFromInt(5)))

		ds, rs := direct.Summary(), roundabout.Summary()
		assert.True(t, ds.BeginValue.Equal(rs.BeginValue))
		assert.True(t, ds.CurrentValue.Equal(rs.CurrentValue))
		assert.True(t, ds.Leverage.Equal(rs.Leverage))
		assert.True(t, ds.Commission.Equal(rs.Commission))
		assert.Equal(t, ds.Name, rs.Name)
	})

	t.Run("non-member fails", func(t *testing.T) {
		b := newTestBasket(t, nil)
		err := b.SetWeight("ghost", decimal.NewFromInt(2))
		assert.ErrorIs(t, err, domain.ErrInvalidAccount)
	})
}

func TestClear(t *testing.T) {
	b := newTestBasket(t, nil)
	p1 := testAccount("p1", domain.CurrencyUSD, 100, 100, 1, 0)
	p2 := testAccount("p2", domain.CurrencyUSD, 200, 200, 1, 0)
	require.NoError(t, b.Add(p1, decimal.NewFromInt(1)))
	require.NoError(t, b.Add(p2, decimal.NewFromInt(1)))

	b.Clear()

	assert.Empty(t, b.Weights())
	assert.Equal(t, "", b.Name())
	assert.True(t, b.BeginValue().Equal(decimal.Zero))
	assert.True(t, b.Leverage().Equal(decimal.Zero))
	assert.Equal(t, 0, p1.SubscriberCount())
	assert.Equal(t, 0, p2.SubscriberCount())
}

func TestCurrencyConversion(t *testing.T) {
	t.Run("converts member values into basket currency", func(t *testing.T) {
		converter := &fixedRateConverter{rates: map[string]decimal.Decimal{
			"EUR/USD": decimal.NewFromFloat(1.1),
		}}
		b := New("b1", domain.CurrencyUSD, converter, &stubSource{}, zerolog.Nop())

		usd := testAccount("usd", domain.CurrencyUSD, 100, 100, 0, 0)
		eur := testAccount("eur", domain.CurrencyEUR, 100, 100, 0, 0)
		require.NoError(t, b.Add(usd, decimal.NewFromInt(1)))
		require.NoError(t, b.Add(eur, decimal.NewFromInt(1)))

		// 100 + 100*1.1
		assert.True(t, b.BeginValue().Equal(decimal.NewFromInt(210)), "got %s", b.BeginValue())
	})

	t.Run("failure keeps previous derived values", func(t *testing.T) {
		converter := &fixedRateConverter{rates: map[string]decimal.Decimal{}}
		b := New("b1", domain.CurrencyUSD, converter, &stubSource{}, zerolog.Nop())

		usd := testAccount("usd", domain.CurrencyUSD, 100, 100, 1, 0)
		require.NoError(t, b.Add(usd, decimal.NewFromInt(1)))
		require.True(t, b.BeginValue().Equal(decimal.NewFromInt(100)))

		// The EUR member cannot be converted; membership changes but the
		// previous derived values stay published.
		eur := testAccount("eur", domain.CurrencyEUR, 500, 500, 1, 0)
		require.NoError(t, b.Add(eur, decimal.NewFromInt(1)))

		assert.Len(t, b.Weights(), 2)
		assert.True(t, b.BeginValue().Equal(decimal.NewFromInt(100)), "got %s", b.BeginValue())

		err := b.Recompute()
		assert.ErrorIs(t, err, domain.ErrConversionFailed)
	})
}

func TestLeverage(t *testing.T) {
	t.Run("zero for empty basket", func(t *testing.T) {
		b := newTestBasket(t, nil)
		assert.True(t, b.Leverage().Equal(decimal.Zero))

		b2 := newTestBasket(t, failingConverter{})
		require.NoError(t, b2.Add(testAccount("p1", domain.CurrencyUSD, 0, 0, 6, 0), decimal.NewFromInt(1)))
		require.True(t, b2.Remove("p1"))
		assert.True(t, b2.Leverage().Equal(decimal.Zero))
	})

	t.Run("divides weighted sum by member count", func(t *testing.T) {
		b := newTestBasket(t, nil)
		require.NoError(t, b.Add(testAccount("p1", domain.CurrencyUSD, 0, 0, 2, 0), decimal.NewFromInt(3)))
		require.NoError(t, b.Add(testAccount("p2", domain.CurrencyUSD, 0, 0, 4, 0), decimal.NewFromInt(1)))

		// (3*2 + 1*4) / 2
		assert.True(t, b.Leverage().Equal(decimal.NewFromInt(5)), "got %s", b.Leverage())
	})
}

func TestEquivalentHistories(t *testing.T) {
	// Add(p1), Add(p2), Remove(p1) must equal a fresh basket with only p2.
	grown := newTestBasket(t, nil)
	p1 := testAccount("p1", domain.CurrencyUSD, 100, 110, 2, 1)
	p2a := testAccount("p2", domain.CurrencyUSD, 200, 180, 4, 3)
	require.NoError(t, grown.Add(p1, decimal.NewFromInt(1)))
	require.NoError(t, grown.Add(p2a, decimal.NewFromInt(2)))
	require.True(t, grown.Remove("p1"))

	fresh := newTestBasket(t, nil)
	p2b := testAccount("p2", domain.CurrencyUSD, 200, 180, 4, 3)
	require.NoError(t, fresh.Add(p2b, decimal.NewFromInt(2)))

	gs, fs := grown.Summary(), fresh.Summary()
	assert.Equal(t, fs.Name, gs.Name)
	assert.True(t, fs.BeginValue.Equal(gs.BeginValue))
	assert.True(t, fs.CurrentValue.Equal(gs.CurrentValue))
	assert.True(t, fs.Leverage.Equal(gs.Leverage))
	assert.True(t, fs.Commission.Equal(gs.Commission))
}

func TestOnRecompute(t *testing.T) {
	b := newTestBasket(t, nil)

	var mu sync.Mutex
	var seen []Summary
	b.SetOnRecompute(func(s Summary) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	require.NoError(t, b.Add(testAccount("p1", domain.CurrencyUSD, 100, 100, 1, 0), decimal.NewFromInt(1)))
	require.True(t, b.Remove("p1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].Members)
	assert.Equal(t, 0, seen[1].Members)
}

func TestConcurrentChanges(t *testing.T) {
	b := newTestBasket(t, nil)

	accounts := make([]*account.TrackedAccount, 8)
	for i := range accounts {
		accounts[i] = testAccount(string(rune('a'+i)), domain.CurrencyUSD, 100, 100, 1, 0)
		require.NoError(t, b.Add(accounts[i], decimal.NewFromInt(1)))
	}

	var wg sync.WaitGroup
	for _, acc := range accounts {
		wg.Add(1)
		go func(a *account.TrackedAccount) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				snap := a.Snapshot()
				snap.CurrentValue = snap.CurrentValue.Add(decimal.NewFromInt(1))
				a.Apply(snap)
			}
		}(acc)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Remove(accounts[0].ID())
		_ = b.SetWeight(accounts[1].ID(), decimal.NewFromInt(2))
	}()
	wg.Wait()

	require.NoError(t, b.Recompute())

	// After quiescence the derived values equal a clean recomputation from
	// final member state.
	expected := decimal.Zero
	for _, entry := range b.Weights() {
		for _, acc := range accounts {
			if acc.ID() == entry.AccountID {
				expected = expected.Add(acc.CurrentValue().Mul(entry.Weight))
			}
		}
	}
	assert.True(t, b.CurrentValue().Equal(expected), "got %s want %s", b.CurrentValue(), expected)
	assert.Len(t, b.Weights(), 7)
}

func TestRecomputeErrorIsMatchable(t *testing.T) {
	b := newTestBasket(t, failingConverter{})
	p1 := testAccount("p1", domain.CurrencyEUR, 100, 100, 1, 0)
	require.NoError(t, b.Add(p1, decimal.NewFromInt(1)))

	err := b.Recompute()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConversionFailed))
}
