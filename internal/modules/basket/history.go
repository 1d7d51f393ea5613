package basket

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotRecord is one recorded valuation of a basket. Decimals are stored
// as strings inside the msgpack payload so precision survives the round trip.
type SnapshotRecord struct {
	BasketID     string    `json:"basket_id" msgpack:"-"`
	RecordedAt   time.Time `json:"recorded_at" msgpack:"-"`
	Name         string    `json:"name" msgpack:"name"`
	BeginValue   string    `json:"begin_value" msgpack:"begin_value"`
	CurrentValue string    `json:"current_value" msgpack:"current_value"`
	Leverage     string    `json:"leverage" msgpack:"leverage"`
	Commission   string    `json:"commission" msgpack:"commission"`
	Members      int       `json:"members" msgpack:"members"`
}

// HistoryRepository persists periodic basket valuation snapshots.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a valuation history repository.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("repo", "basket_history").Logger(),
	}
}

// Record stores one valuation snapshot.
func (r *HistoryRepository) Record(summary Summary, at time.Time) error {
	record := SnapshotRecord{
		Name:         summary.Name,
		BeginValue:   summary.BeginValue.String(),
		CurrentValue: summary.CurrentValue.String(),
		Leverage:     summary.Leverage.String(),
		Commission:   summary.Commission.String(),
		Members:      summary.Members,
	}

	data, err := msgpack.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", summary.ID, err)
	}

	_, err = r.db.Exec(
		"INSERT INTO basket_snapshots (basket_id, recorded_at, data) VALUES (?, ?, ?)",
		summary.ID, at.Unix(), data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot for %s: %w", summary.ID, err)
	}
	return nil
}

// List returns the most recent snapshots of one basket, newest first,
// capped at limit (<= 0 means a default of 100).
func (r *HistoryRepository) List(basketID string, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(
		"SELECT basket_id, recorded_at, data FROM basket_snapshots WHERE basket_id = ? ORDER BY recorded_at DESC LIMIT ?",
		basketID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots of %s: %w", basketID, err)
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		var record SnapshotRecord
		var recordedAt int64
		var data []byte
		if err := rows.Scan(&record.BasketID, &recordedAt, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot of %s: %w", basketID, err)
		}
		if err := msgpack.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("corrupt snapshot for %s at %d: %w", basketID, recordedAt, err)
		}
		record.RecordedAt = time.Unix(recordedAt, 0).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots of %s: %w", basketID, err)
	}

	return records, nil
}

// Prune deletes snapshots older than the cutoff and returns the count.
func (r *HistoryRepository) Prune(olderThan time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM basket_snapshots WHERE recorded_at < ?", olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}
