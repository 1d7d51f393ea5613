package basket

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/basket/internal/domain"
	"github.com/shopspring/decimal"
)

// WeightedPositionView is a derived, read-only position: the positions of
// all member accounts for one instrument, scaled by each account's weight.
// Views are snapshots - created fresh on every Positions call, never mutated
// after construction, never cached across queries.
type WeightedPositionView struct {
	Instrument            string            `json:"instrument"`
	BeginValue            decimal.Decimal   `json:"begin_value"`
	CurrentValue          decimal.Decimal   `json:"current_value"`
	BlockedValue          decimal.Decimal   `json:"blocked_value"`
	ContributingPositions []domain.Position `json:"contributing_positions"`
}

// Positions queries the connector for every position belonging to any
// current member account, groups them by instrument and returns one
// weight-scaled view per instrument, ordered by instrument. Instruments
// with no contributing positions are absent, not present with zero values.
//
// The membership table is copied under the basket lock before the connector
// round trip, so a member removed mid-query never contributes. Connector
// failures surface as ErrSourceUnavailable with no partial result.
func (b *WeightedBasket) Positions(ctx context.Context) ([]WeightedPositionView, error) {
	b.mu.Lock()
	accountIDs := make([]string, 0, len(b.entries))
	weights := make(map[string]decimal.Decimal, len(b.entries))
	for _, e := range b.entries {
		accountIDs = append(accountIDs, e.account.ID())
		weights[e.account.ID()] = e.weight
	}
	b.mu.Unlock()

	if len(accountIDs) == 0 {
		return nil, nil
	}

	positions, err := b.source.PositionsOf(ctx, accountIDs)
	if err != nil {
		return nil, fmt.Errorf("querying positions for basket %s: %w", b.id, err)
	}

	groups := make(map[string][]domain.Position)
	for _, p := range positions {
		if _, member := weights[p.AccountID]; !member {
			// Connector may return more than asked for; only members count.
			continue
		}
		groups[p.Instrument] = append(groups[p.Instrument], p)
	}

	views := make([]WeightedPositionView, 0, len(groups))
	for instrument, group := range groups {
		view := WeightedPositionView{
			Instrument:            instrument,
			BeginValue:            decimal.Zero,
			CurrentValue:          decimal.Zero,
			BlockedValue:          decimal.Zero,
			ContributingPositions: group,
		}
		for _, p := range group {
			w := weights[p.AccountID]
			view.BeginValue = view.BeginValue.Add(p.BeginValue.Mul(w))
			view.CurrentValue = view.CurrentValue.Add(p.CurrentValue.Mul(w))
			view.BlockedValue = view.BlockedValue.Add(p.BlockedValue.Mul(w))
		}
		views = append(views, view)
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].Instrument < views[j].Instrument
	})

	return views, nil
}
