package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Currency exchange rates change continuously but basket valuation
	// tolerates hour-old rates.
	TTLExchangeRate = time.Hour

	// Connector position snapshots are only a fallback for a briefly
	// unreachable connector.
	TTLConnectorPositions = 10 * time.Minute
)
