// Package exchangerate provides currency exchange rate fetching and caching functionality.
package exchangerate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/basket/internal/clientdata"
	"github.com/rs/zerolog"
)

// Client for exchangerate-api.com
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new exchangerate-api.com client
// cacheRepo is optional - if nil, caching is disabled
func NewClient(cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   "https://api.exchangerate-api.com/v4/latest",
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "exchangerate-api").Logger(),
		cacheRepo: cacheRepo,
	}
}

// SetBaseURL overrides the API base URL. Used in tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// cachedExchangeRate is the structure stored in the cache
type cachedExchangeRate struct {
	Rate float64 `json:"rate"`
}

// GetRate fetches the exchange rate for a single pair, cache-first.
// If the API fails, returns stale cached data if available (stale data > no data).
func (c *Client) GetRate(fromCurrency, toCurrency string) (float64, error) {
	if fromCurrency == toCurrency {
		return 1.0, nil
	}

	cacheKey := fromCurrency + ":" + toCurrency

	// Check persistent cache for fresh data
	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh("exchangerate", cacheKey)
		if err == nil && data != nil {
			var cached cachedExchangeRate
			if err := json.Unmarshal(data, &cached); err == nil {
				c.log.Debug().
					Str("from", fromCurrency).
					Str("to", toCurrency).
					Float64("rate", cached.Rate).
					Msg("Cache hit")
				return cached.Rate, nil
			}
		}
	}

	rates, err := c.fetchRates(fromCurrency)
	if err != nil {
		// API failed - try stale cached data as fallback
		if staleRate, ok := c.getStaleFromCache(cacheKey); ok {
			c.log.Warn().
				Err(err).
				Str("from", fromCurrency).
				Str("to", toCurrency).
				Float64("rate", staleRate).
				Msg("API failed, using stale cached rate")
			return staleRate, nil
		}
		return 0, err
	}

	rate, exists := rates[toCurrency]
	if !exists {
		if staleRate, ok := c.getStaleFromCache(cacheKey); ok {
			c.log.Warn().
				Str("from", fromCurrency).
				Str("to", toCurrency).
				Float64("rate", staleRate).
				Msg("Rate not in API response, using stale cached rate")
			return staleRate, nil
		}
		return 0, fmt.Errorf("rate not found for %s->%s", fromCurrency, toCurrency)
	}

	c.cacheRate(cacheKey, rate)

	c.log.Info().
		Str("from", fromCurrency).
		Str("to", toCurrency).
		Float64("rate", rate).
		Msg("Fetched rate")

	return rate, nil
}

// SyncRates warms the cache with every pair among the given currencies.
// One API call per base currency; returns the number of pairs cached and the
// number of fetch failures.
func (c *Client) SyncRates(currencies []string) (int, int) {
	cached := 0
	failures := 0

	for _, from := range currencies {
		rates, err := c.fetchRates(from)
		if err != nil {
			c.log.Warn().Err(err).Str("base", from).Msg("Failed to fetch rates for base currency")
			failures++
			continue
		}

		for _, to := range currencies {
			if to == from {
				continue
			}
			rate, exists := rates[to]
			if !exists {
				failures++
				continue
			}
			c.cacheRate(from+":"+to, rate)
			cached++
		}
	}

	return cached, failures
}

// fetchRates fetches the full rate table for a base currency from the API.
func (c *Client) fetchRates(fromCurrency string) (map[string]float64, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, fromCurrency)
	c.log.Debug().Str("url", url).Msg("Fetching rates")

	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return result.Rates, nil
}

// cacheRate stores a rate in the persistent cache (best effort).
func (c *Client) cacheRate(cacheKey string, rate float64) {
	if c.cacheRepo == nil {
		return
	}
	cached := cachedExchangeRate{Rate: rate}
	if err := c.cacheRepo.Store("exchangerate", cacheKey, cached, clientdata.TTLExchangeRate); err != nil {
		c.log.Warn().Err(err).Str("pair", cacheKey).Msg("Failed to cache exchange rate")
	}
}

// getStaleFromCache retrieves cached rate even if expired.
// Use this as a fallback when API calls fail - stale data is better than no data.
func (c *Client) getStaleFromCache(cacheKey string) (float64, bool) {
	if c.cacheRepo == nil {
		return 0, false
	}

	data, err := c.cacheRepo.Get("exchangerate", cacheKey)
	if err != nil || data == nil {
		return 0, false
	}

	var cached cachedExchangeRate
	if err := json.Unmarshal(data, &cached); err != nil {
		return 0, false
	}

	return cached.Rate, true
}
