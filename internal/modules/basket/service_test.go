package basket

import (
	"context"
	"sync"
	"testing"

	"github.com/aristath/basket/internal/domain"
	"github.com/aristath/basket/internal/events"
	"github.com/aristath/basket/internal/modules/account"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T, withRepo bool) (*Service, *account.Registry) {
	t.Helper()

	registry := account.NewRegistry(nil, zerolog.Nop())
	var repo *Repository
	if withRepo {
		repo = NewRepository(setupBasketDB(t), zerolog.Nop())
	}
	svc := NewService(registry, identityConverter{}, &stubSource{}, repo, nil, zerolog.Nop())
	return svc, registry
}

func registerAccount(registry *account.Registry, id string, current float64) {
	registry.Apply(account.Snapshot{
		ID:           id,
		Name:         id,
		Currency:     domain.CurrencyUSD,
		CurrentValue: decimal.NewFromFloat(current),
	}, "test")
}

func TestServiceCreate(t *testing.T) {
	t.Run("creates and lists", func(t *testing.T) {
		svc, _ := setupService(t, false)

		_, err := svc.Create("b1", domain.CurrencyUSD)
		require.NoError(t, err)

		summaries := svc.List()
		require.Len(t, summaries, 1)
		assert.Equal(t, "b1", summaries[0].ID)
		assert.Equal(t, domain.CurrencyUSD, summaries[0].BaseCurrency)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		svc, _ := setupService(t, false)
		_, err := svc.Create("b1", domain.CurrencyUSD)
		require.NoError(t, err)

		_, err = svc.Create("b1", domain.CurrencyEUR)
		assert.ErrorIs(t, err, ErrDuplicateBasket)
	})

	t.Run("rejects empty id", func(t *testing.T) {
		svc, _ := setupService(t, false)
		_, err := svc.Create("", domain.CurrencyUSD)
		assert.Error(t, err)
	})

	t.Run("list is ordered by id", func(t *testing.T) {
		svc, _ := setupService(t, false)
		for _, id := range []string{"c", "a", "b"} {
			_, err := svc.Create(id, domain.CurrencyUSD)
			require.NoError(t, err)
		}

		summaries := svc.List()
		require.Len(t, summaries, 3)
		assert.Equal(t, "a", summaries[0].ID)
		assert.Equal(t, "b", summaries[1].ID)
		assert.Equal(t, "c", summaries[2].ID)
	})
}

func TestServiceMembership(t *testing.T) {
	t.Run("add, reweight, remove", func(t *testing.T) {
		svc, registry := setupService(t, false)
		registerAccount(registry, "p1", 100)

		_, err := svc.Create("b1", domain.CurrencyUSD)
		require.NoError(t, err)

		require.NoError(t, svc.AddMember("b1", "p1", decimal.NewFromInt(2)))

		b, ok := svc.Get("b1")
		require.True(t, ok)
		assert.True(t, b.CurrentValue().Equal(decimal.NewFromInt(200)))

		require.NoError(t, svc.SetWeight("b1", "p1", decimal.NewFromInt(3)))
		assert.True(t, b.CurrentValue().Equal(decimal.NewFromInt(300)))

		removed, err := svc.RemoveMember("b1", "p1")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.True(t, b.CurrentValue().Equal(decimal.Zero))
	})

	t.Run("unknown account fails", func(t *testing.T) {
		svc, _ := setupService(t, false)
		_, err := svc.Create("b1", domain.CurrencyUSD)
		require.NoError(t, err)

		err = svc.AddMember("b1", "ghost", decimal.NewFromInt(1))
		assert.ErrorIs(t, err, domain.ErrInvalidAccount)
	})

	t.Run("unknown basket fails", func(t *testing.T) {
		svc, _ := setupService(t, false)
		err := svc.AddMember("ghost", "p1", decimal.NewFromInt(1))
		assert.ErrorIs(t, err, ErrBasketNotFound)

		_, err = svc.RemoveMember("ghost", "p1")
		assert.ErrorIs(t, err, ErrBasketNotFound)

		_, err = svc.Positions(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrBasketNotFound)
	})

	t.Run("removing non-member is not an error", func(t *testing.T) {
		svc, _ := setupService(t, false)
		_, err := svc.Create("b1", domain.CurrencyUSD)
		require.NoError(t, err)

		removed, err := svc.RemoveMember("b1", "ghost")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestServiceDelete(t *testing.T) {
	svc, registry := setupService(t, false)
	registerAccount(registry, "p1", 100)

	_, err := svc.Create("b1", domain.CurrencyUSD)
	require.NoError(t, err)
	require.NoError(t, svc.AddMember("b1", "p1", decimal.NewFromInt(1)))

	b, _ := svc.Get("b1")
	assert.True(t, svc.Delete("b1"))
	assert.False(t, svc.Delete("b1"))

	_, ok := svc.Get("b1")
	assert.False(t, ok)

	// Deleted basket dropped its member subscriptions.
	assert.Empty(t, b.Weights())
	tracked, _ := registry.Get("p1").(*account.TrackedAccount)
	require.NotNil(t, tracked)
	assert.Equal(t, 0, tracked.SubscriberCount())
}

func TestServicePersistenceRoundTrip(t *testing.T) {
	db := setupBasketDB(t)
	registry := account.NewRegistry(nil, zerolog.Nop())
	registerAccount(registry, "p1", 100)
	registerAccount(registry, "p2", 50)

	repo := NewRepository(db, zerolog.Nop())
	svc := NewService(registry, identityConverter{}, &stubSource{}, repo, nil, zerolog.Nop())

	_, err := svc.Create("b1", domain.CurrencyUSD)
	require.NoError(t, err)
	require.NoError(t, svc.AddMember("b1", "p2", decimal.NewFromInt(3)))
	require.NoError(t, svc.AddMember("b1", "p1", decimal.NewFromInt(1)))

	// Fresh service over the same database simulates a restart.
	restored := NewService(registry, identityConverter{}, &stubSource{}, repo, nil, zerolog.Nop())
	require.NoError(t, restored.Restore())

	b, ok := restored.Get("b1")
	require.True(t, ok)
	assert.Equal(t, "3*p2, 1*p1", b.Name())
	// 3*50 + 1*100
	assert.True(t, b.CurrentValue().Equal(decimal.NewFromInt(250)), "got %s", b.CurrentValue())
}

func TestServiceRestoreSkipsUnknownAccounts(t *testing.T) {
	db := setupBasketDB(t)
	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Save(Definition{
		ID:           "b1",
		BaseCurrency: domain.CurrencyUSD,
		Members: []WeightEntry{
			{AccountID: "known", Weight: decimal.NewFromInt(1)},
			{AccountID: "ghost", Weight: decimal.NewFromInt(2)},
		},
	}))

	registry := account.NewRegistry(nil, zerolog.Nop())
	registerAccount(registry, "known", 100)

	svc := NewService(registry, identityConverter{}, &stubSource{}, repo, nil, zerolog.Nop())
	require.NoError(t, svc.Restore())

	b, ok := svc.Get("b1")
	require.True(t, ok)
	weights := b.Weights()
	require.Len(t, weights, 1)
	assert.Equal(t, "known", weights[0].AccountID)
}

func TestServiceEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	manager := events.NewManager(bus, zerolog.Nop())

	var mu sync.Mutex
	var seen []events.EventType
	for _, et := range []events.EventType{
		events.BasketCreated, events.BasketDeleted,
		events.MemberAdded, events.MemberRemoved, events.BasketRecomputed,
	} {
		bus.Subscribe(et, func(e *events.Event) {
			mu.Lock()
			seen = append(seen, e.Type)
			mu.Unlock()
		})
	}

	registry := account.NewRegistry(nil, zerolog.Nop())
	registerAccount(registry, "p1", 100)

	svc := NewService(registry, identityConverter{}, &stubSource{}, nil, manager, zerolog.Nop())

	_, err := svc.Create("b1", domain.CurrencyUSD)
	require.NoError(t, err)
	require.NoError(t, svc.AddMember("b1", "p1", decimal.NewFromInt(1)))
	_, err = svc.RemoveMember("b1", "p1")
	require.NoError(t, err)
	require.True(t, svc.Delete("b1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, events.BasketCreated)
	assert.Contains(t, seen, events.MemberAdded)
	assert.Contains(t, seen, events.MemberRemoved)
	assert.Contains(t, seen, events.BasketRecomputed)
	assert.Contains(t, seen, events.BasketDeleted)
}
