// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	SnapshotUpdated EventType = "SNAPSHOT_UPDATED"
	PollFailed      EventType = "POLL_FAILED"
	ReauthRequired  EventType = "REAUTH_REQUIRED"
	ReloadRequested EventType = "RELOAD_REQUESTED"
	IntervalChanged EventType = "INTERVAL_CHANGED"
	TokenRefreshed  EventType = "TOKEN_REFRESHED"
	SettingsChanged EventType = "SETTINGS_CHANGED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every type a stream subscriber can receive.
var AllEventTypes = []EventType{
	SnapshotUpdated,
	PollFailed,
	ReauthRequired,
	ReloadRequested,
	IntervalChanged,
	TokenRefreshed,
	SettingsChanged,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
