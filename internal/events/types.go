// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	BasketCreated     EventType = "BASKET_CREATED"
	BasketDeleted     EventType = "BASKET_DELETED"
	MemberAdded       EventType = "MEMBER_ADDED"
	MemberRemoved     EventType = "MEMBER_REMOVED"
	BasketRecomputed  EventType = "BASKET_RECOMPUTED"
	AccountUpdated    EventType = "ACCOUNT_UPDATED"
	RatesSynced       EventType = "RATES_SYNCED"
	SnapshotsRecorded EventType = "SNAPSHOTS_RECORDED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
