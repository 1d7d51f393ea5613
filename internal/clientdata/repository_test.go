package clientdata

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	schema := `
	CREATE TABLE exchangerate (
		pair TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE connector_positions (
		account_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func TestStoreAndGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	err := repo.Store("exchangerate", "USD:EUR", map[string]float64{"rate": 0.91}, TTLExchangeRate)
	require.NoError(t, err)

	data, err := repo.GetIfFresh("exchangerate", "USD:EUR")
	require.NoError(t, err)
	require.NotNil(t, data)

	var cached map[string]float64
	require.NoError(t, json.Unmarshal(data, &cached))
	assert.Equal(t, 0.91, cached["rate"])
}

func TestGetIfFreshMissingKey(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	data, err := repo.GetIfFresh("exchangerate", "USD:JPY")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestGetIfFreshExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	err := repo.Store("exchangerate", "USD:EUR", map[string]float64{"rate": 0.91}, -time.Hour)
	require.NoError(t, err)

	// Expired entries are invisible to GetIfFresh but still returned by Get
	data, err := repo.GetIfFresh("exchangerate", "USD:EUR")
	require.NoError(t, err)
	assert.Nil(t, data)

	stale, err := repo.Get("exchangerate", "USD:EUR")
	require.NoError(t, err)
	assert.NotNil(t, stale)
}

func TestStoreInvalidTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	err := repo.Store("bogus_table", "key", "data", time.Hour)
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.Store("connector_positions", "pf1", []string{"AAPL"}, TTLConnectorPositions))
	require.NoError(t, repo.Delete("connector_positions", "pf1"))

	data, err := repo.Get("connector_positions", "pf1")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	assert.Equal(t, "client_data_cleanup", job.Name())

	require.NoError(t, repo.Store("exchangerate", "USD:EUR", "stale", -time.Hour))
	require.NoError(t, repo.Store("exchangerate", "EUR:GBP", "fresh", time.Hour))

	require.NoError(t, job.Run())

	stale, err := repo.Get("exchangerate", "USD:EUR")
	require.NoError(t, err)
	assert.Nil(t, stale)

	fresh, err := repo.Get("exchangerate", "EUR:GBP")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}
