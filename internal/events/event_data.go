package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// SnapshotUpdatedData contains data for SnapshotUpdated events
type SnapshotUpdatedData struct {
	PollID      string    `json:"poll_id"`
	TotalValue  float64   `json:"total_value"`
	CashBalance float64   `json:"cash_balance"`
	Currency    string    `json:"currency"`
	ClientName  string    `json:"client_name"`
	LastUpdated time.Time `json:"last_updated"`
	CacheHit    bool      `json:"performance_cache_hit"`
}

// EventType returns the event type for SnapshotUpdatedData
func (d *SnapshotUpdatedData) EventType() EventType {
	return SnapshotUpdated
}

// PollFailedData contains data for PollFailed events
type PollFailedData struct {
	PollID    string `json:"poll_id"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// EventType returns the event type for PollFailedData
func (d *PollFailedData) EventType() EventType {
	return PollFailed
}

// ReauthRequiredData contains data for ReauthRequired events
type ReauthRequiredData struct {
	Reason string `json:"reason"`
}

// EventType returns the event type for ReauthRequiredData
func (d *ReauthRequiredData) EventType() EventType {
	return ReauthRequired
}

// ReloadRequestedData contains data for ReloadRequested events
type ReloadRequestedData struct {
	ClientName string `json:"client_name"`
}

// EventType returns the event type for ReloadRequestedData
func (d *ReloadRequestedData) EventType() EventType {
	return ReloadRequested
}

// IntervalChangedData contains data for IntervalChanged events
type IntervalChangedData struct {
	PreviousSeconds float64 `json:"previous_seconds"`
	CurrentSeconds  float64 `json:"current_seconds"`
	MarketOpen      bool    `json:"market_open"`
}

// EventType returns the event type for IntervalChangedData
func (d *IntervalChangedData) EventType() EventType {
	return IntervalChanged
}

// TokenRefreshedData contains data for TokenRefreshed events
type TokenRefreshedData struct {
	Generation uint64 `json:"generation"`
}

// EventType returns the event type for TokenRefreshedData
func (d *TokenRefreshedData) EventType() EventType {
	return TokenRefreshed
}

// SettingsChangedData contains data for SettingsChanged events
type SettingsChangedData struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// EventType returns the event type for SettingsChangedData
func (d *SettingsChangedData) EventType() EventType {
	return SettingsChanged
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

// GetTypedData converts the event's data map back into its typed form.
// Returns nil for unknown types or malformed data.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	var data EventData
	switch e.Type {
	case SnapshotUpdated:
		data = &SnapshotUpdatedData{}
	case PollFailed:
		data = &PollFailedData{}
	case ReauthRequired:
		data = &ReauthRequiredData{}
	case ReloadRequested:
		data = &ReloadRequestedData{}
	case IntervalChanged:
		data = &IntervalChangedData{}
	case TokenRefreshed:
		data = &TokenRefreshedData{}
	case SettingsChanged:
		data = &SettingsChangedData{}
	case ErrorOccurred:
		data = &ErrorEventData{}
	default:
		return nil
	}

	jsonBytes, err := json.Marshal(e.Data)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(jsonBytes, data); err != nil {
		return nil
	}
	return data
}
