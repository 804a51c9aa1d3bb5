// Package store provides the in-memory activity feed for the cowork daemon.
package store

import "time"

// UpdateType defines what kind of activity happened.
type UpdateType string

const (
	UpdateExecutionStarted   UpdateType = "execution_started"
	UpdateExecutionCompleted UpdateType = "execution_completed"
	UpdateExecutionFailed    UpdateType = "execution_failed"
	UpdateSessionKilled      UpdateType = "session_killed"
	UpdateContextCleared     UpdateType = "context_cleared"
	UpdateMessage            UpdateType = "message"
	UpdateConfigReload       UpdateType = "config_reload"
)

// Update is one entry in the activity feed.
type Update struct {
	Type      UpdateType `json:"update_type"`
	Source    string     `json:"source,omitempty"` // Which component recorded it (e.g., "api", "config")
	Directory string     `json:"directory,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// State is a snapshot of the feed.
type State struct {
	Recent []Update           `json:"recent"`
	Counts map[UpdateType]int `json:"counts"`
}
