package scheduler

import (
	"fmt"

	"github.com/aristath/basket/internal/events"
	"github.com/rs/zerolog"
)

// RateSyncerInterface is the exchange-rate sync contract.
type RateSyncerInterface interface {
	SyncRates(currencies []string) (cached int, failures int)
}

// RateSyncEmitterInterface emits the sync-completed event.
type RateSyncEmitterInterface interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// RateSyncJob refreshes the cached exchange rates for the configured
// currencies so basket recomputations convert against fresh quotes.
type RateSyncJob struct {
	syncer       RateSyncerInterface
	currencies   []string
	eventManager RateSyncEmitterInterface
	log          zerolog.Logger
}

// NewRateSyncJob creates a rate sync job. eventManager may be nil.
func NewRateSyncJob(syncer RateSyncerInterface, currencies []string, eventManager RateSyncEmitterInterface, log zerolog.Logger) *RateSyncJob {
	return &RateSyncJob{
		syncer:       syncer,
		currencies:   currencies,
		eventManager: eventManager,
		log:          log.With().Str("job", "rate_sync").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *RateSyncJob) Name() string {
	return "rate_sync"
}

// Run syncs rates for every configured currency pair. A partial sync is
// not a failure; the job errors only when no pair could be refreshed.
func (j *RateSyncJob) Run() error {
	if len(j.currencies) < 2 {
		return nil
	}

	cached, failures := j.syncer.SyncRates(j.currencies)

	j.log.Info().
		Int("cached", cached).
		Int("failures", failures).
		Msg("Exchange rate sync completed")

	if j.eventManager != nil {
		j.eventManager.EmitTyped(events.RatesSynced, "scheduler", &events.RatesSyncedData{
			Pairs:  cached,
			Errors: failures,
		})
	}

	if cached == 0 && failures > 0 {
		return fmt.Errorf("exchange rate sync failed for all %d pairs", failures)
	}
	return nil
}
