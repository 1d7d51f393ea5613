package scheduler

import (
	"fmt"
	"time"

	"github.com/aristath/basket/internal/events"
	"github.com/aristath/basket/internal/modules/basket"
	"github.com/rs/zerolog"
)

// BasketListerInterface supplies the current basket summaries.
type BasketListerInterface interface {
	List() []basket.Summary
}

// SnapshotRecorderInterface persists valuation snapshots.
type SnapshotRecorderInterface interface {
	Record(summary basket.Summary, at time.Time) error
}

// SnapshotEmitterInterface emits the snapshots-recorded event.
type SnapshotEmitterInterface interface {
	Emit(eventType events.EventType, module string, data map[string]interface{})
}

// SnapshotJob records a valuation snapshot of every basket so derived
// values have a queryable history.
type SnapshotJob struct {
	baskets      BasketListerInterface
	history      SnapshotRecorderInterface
	eventManager SnapshotEmitterInterface
	log          zerolog.Logger
}

// NewSnapshotJob creates a valuation snapshot job. eventManager may be nil.
func NewSnapshotJob(baskets BasketListerInterface, history SnapshotRecorderInterface, eventManager SnapshotEmitterInterface, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		baskets:      baskets,
		history:      history,
		eventManager: eventManager,
		log:          log.With().Str("job", "valuation_snapshot").Logger(),
	}
}

// Name returns the job name for scheduling and logging.
func (j *SnapshotJob) Name() string {
	return "valuation_snapshot"
}

// Run snapshots every basket at one shared timestamp. A failure on one
// basket does not stop the others.
func (j *SnapshotJob) Run() error {
	summaries := j.baskets.List()
	if len(summaries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var failed int
	for _, summary := range summaries {
		if err := j.history.Record(summary, now); err != nil {
			j.log.Error().Err(err).Str("basket_id", summary.ID).Msg("Failed to record snapshot")
			failed++
		}
	}

	recorded := len(summaries) - failed
	if recorded > 0 && j.eventManager != nil {
		j.eventManager.Emit(events.SnapshotsRecorded, "scheduler", map[string]interface{}{
			"recorded": recorded,
			"failed":   failed,
		})
	}

	if failed > 0 {
		return fmt.Errorf("failed to record %d of %d snapshots", failed, len(summaries))
	}
	return nil
}
