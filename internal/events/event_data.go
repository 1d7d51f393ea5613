package events

// EventData is the interface that all typed event data types implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// BasketCreatedData contains data for BasketCreated events
type BasketCreatedData struct {
	BasketID     string `json:"basket_id"`
	BaseCurrency string `json:"base_currency"`
}

// EventType returns the event type for BasketCreatedData
func (d *BasketCreatedData) EventType() EventType {
	return BasketCreated
}

// MemberAddedData contains data for MemberAdded events
type MemberAddedData struct {
	BasketID  string `json:"basket_id"`
	AccountID string `json:"account_id"`
	Weight    string `json:"weight"`
}

// EventType returns the event type for MemberAddedData
func (d *MemberAddedData) EventType() EventType {
	return MemberAdded
}

// MemberRemovedData contains data for MemberRemoved events
type MemberRemovedData struct {
	BasketID  string `json:"basket_id"`
	AccountID string `json:"account_id"`
}

// EventType returns the event type for MemberRemovedData
func (d *MemberRemovedData) EventType() EventType {
	return MemberRemoved
}

// BasketRecomputedData contains data for BasketRecomputed events
type BasketRecomputedData struct {
	BasketID     string `json:"basket_id"`
	Name         string `json:"name"`
	CurrentValue string `json:"current_value"`
	Members      int    `json:"members"`
}

// EventType returns the event type for BasketRecomputedData
func (d *BasketRecomputedData) EventType() EventType {
	return BasketRecomputed
}

// AccountUpdatedData contains data for AccountUpdated events
type AccountUpdatedData struct {
	AccountID string `json:"account_id"`
	Source    string `json:"source,omitempty"`
}

// EventType returns the event type for AccountUpdatedData
func (d *AccountUpdatedData) EventType() EventType {
	return AccountUpdated
}

// RatesSyncedData contains data for RatesSynced events
type RatesSyncedData struct {
	Pairs  int `json:"pairs"`
	Errors int `json:"errors"`
}

// EventType returns the event type for RatesSyncedData
func (d *RatesSyncedData) EventType() EventType {
	return RatesSynced
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
