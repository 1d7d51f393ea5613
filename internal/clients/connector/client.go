// Package connector provides the client for the position connector service.
// The connector is the external system of record for accounts and their
// per-instrument positions; this package exposes it as the PositionSource
// capability plus a websocket stream of live account updates.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/basket/internal/clientdata"
	"github.com/aristath/basket/internal/domain"
	"github.com/rs/zerolog"
)

// Client fetches positions from the connector over HTTP.
// Implements domain.PositionSource.
type Client struct {
	baseURL   string
	client    *http.Client
	cacheRepo *clientdata.Repository
	log       zerolog.Logger
}

// NewClient creates a new connector client.
// cacheRepo is optional - if nil, per-account snapshot caching is disabled.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		cacheRepo: cacheRepo,
		log:       log.With().Str("client", "connector").Logger(),
	}
}

// PositionsOf returns every position belonging to any of the given accounts.
// All-or-nothing: any transport or decode failure yields ErrSourceUnavailable
// and no partial result. Results are never served from cache here; the basket
// engine always aggregates from live connector state.
func (c *Client) PositionsOf(ctx context.Context, accountIDs []string) ([]domain.Position, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/positions?accounts=%s",
		c.baseURL, url.QueryEscape(strings.Join(accountIDs, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: connector returned status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	var result struct {
		Positions []domain.Position `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", domain.ErrSourceUnavailable, err)
	}

	c.cacheSnapshots(accountIDs, result.Positions)

	c.log.Debug().
		Int("accounts", len(accountIDs)).
		Int("positions", len(result.Positions)).
		Msg("Fetched positions")

	return result.Positions, nil
}

// CachedPositions returns the last successfully fetched positions for an
// account, fresh or stale. Diagnostic use only - the basket engine never
// aggregates from this. Returns nil if nothing was ever cached.
func (c *Client) CachedPositions(accountID string) []domain.Position {
	if c.cacheRepo == nil {
		return nil
	}

	data, err := c.cacheRepo.Get("connector_positions", accountID)
	if err != nil || data == nil {
		return nil
	}

	var positions []domain.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil
	}

	return positions
}

// cacheSnapshots stores the per-account slices of a successful fetch (best effort).
func (c *Client) cacheSnapshots(accountIDs []string, positions []domain.Position) {
	if c.cacheRepo == nil {
		return
	}

	byAccount := make(map[string][]domain.Position, len(accountIDs))
	for _, id := range accountIDs {
		byAccount[id] = []domain.Position{}
	}
	for _, p := range positions {
		byAccount[p.AccountID] = append(byAccount[p.AccountID], p)
	}

	for id, slice := range byAccount {
		if err := c.cacheRepo.Store("connector_positions", id, slice, clientdata.TTLConnectorPositions); err != nil {
			c.log.Warn().Err(err).Str("account_id", id).Msg("Failed to cache position snapshot")
		}
	}
}
