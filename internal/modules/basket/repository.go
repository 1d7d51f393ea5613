package basket

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/basket/internal/database"
	"github.com/aristath/basket/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Definition is the persisted shape of a basket: identity, accumulation
// currency and the ordered weight table. Derived values are never stored -
// they are recomputed from live state after restore.
type Definition struct {
	ID           string
	BaseCurrency domain.Currency
	Members      []WeightEntry
}

// Repository persists basket definitions.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new basket definition repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "basket").Logger(),
	}
}

// Save upserts a basket definition, replacing its member rows.
func (r *Repository) Save(def Definition) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO baskets (id, base_currency, created_at) VALUES (?, ?, ?)",
			def.ID, string(def.BaseCurrency), time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert basket %s: %w", def.ID, err)
		}

		if _, err := tx.Exec("DELETE FROM basket_members WHERE basket_id = ?", def.ID); err != nil {
			return fmt.Errorf("failed to clear members of %s: %w", def.ID, err)
		}

		for i, m := range def.Members {
			_, err := tx.Exec(
				"INSERT INTO basket_members (basket_id, account_id, weight, position) VALUES (?, ?, ?, ?)",
				def.ID, m.AccountID, m.Weight.String(), i,
			)
			if err != nil {
				return fmt.Errorf("failed to insert member %s of %s: %w", m.AccountID, def.ID, err)
			}
		}

		return nil
	})
}

// Delete removes a basket definition and its member rows.
// Returns false if the basket was not persisted.
func (r *Repository) Delete(id string) (bool, error) {
	result, err := r.db.Exec("DELETE FROM baskets WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete basket %s: %w", id, err)
	}

	// Member rows cascade via the foreign key, but not every deployment has
	// foreign_keys enabled on old database files.
	if _, err := r.db.Exec("DELETE FROM basket_members WHERE basket_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete members of %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetAll returns every persisted basket definition with members in
// insertion order.
func (r *Repository) GetAll() ([]Definition, error) {
	rows, err := r.db.Query("SELECT id, base_currency FROM baskets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query baskets: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var def Definition
		var currency string
		if err := rows.Scan(&def.ID, &currency); err != nil {
			return nil, fmt.Errorf("failed to scan basket: %w", err)
		}
		def.BaseCurrency = domain.Currency(currency)
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating baskets: %w", err)
	}

	for i := range defs {
		members, err := r.getMembers(defs[i].ID)
		if err != nil {
			return nil, err
		}
		defs[i].Members = members
	}

	return defs, nil
}

// getMembers returns the ordered weight table of one basket.
func (r *Repository) getMembers(basketID string) ([]WeightEntry, error) {
	rows, err := r.db.Query(
		"SELECT account_id, weight FROM basket_members WHERE basket_id = ? ORDER BY position",
		basketID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query members of %s: %w", basketID, err)
	}
	defer rows.Close()

	var members []WeightEntry
	for rows.Next() {
		var accountID, weightStr string
		if err := rows.Scan(&accountID, &weightStr); err != nil {
			return nil, fmt.Errorf("failed to scan member of %s: %w", basketID, err)
		}

		weight, err := decimal.NewFromString(weightStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt weight %q for %s in %s: %w", weightStr, accountID, basketID, err)
		}

		members = append(members, WeightEntry{AccountID: accountID, Weight: weight})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members of %s: %w", basketID, err)
	}

	return members, nil
}
