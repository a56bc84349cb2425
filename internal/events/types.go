// Package events provides the sequenced job event bus. Every job state
// mutation becomes an Event; clients either poll with Since or receive a
// live stream through a Subscription.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

const (
	// Job lifecycle events
	EventJobQueued    EventType = "job.queued"
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobPaused    EventType = "job.paused"
	EventJobResumed   EventType = "job.resumed"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobAborted   EventType = "job.aborted"

	// Scheduler events
	EventSchedulerPaused  EventType = "scheduler.paused"
	EventSchedulerResumed EventType = "scheduler.resumed"
	EventPriorityChanged  EventType = "scheduler.priority_changed"
)

// Event is one sequenced notification.
type Event struct {
	Seq       int64         `json:"seq"`
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	JobID     string        `json:"job_id,omitempty"`
	JobType   string        `json:"job_type,omitempty"`
	Title     string        `json:"title,omitempty"`
	Status    string        `json:"status,omitempty"`
	Progress  float64       `json:"progress,omitempty"`
	Percent   float64       `json:"percent,omitempty"`
	Speed     float64       `json:"speed,omitempty"`
	ETA       time.Duration `json:"eta,omitempty"`
	Pass      int           `json:"pass,omitempty"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// EventFilter selects events. Empty fields match everything.
type EventFilter struct {
	Types    []EventType `json:"types,omitempty"`
	JobID    string      `json:"job_id,omitempty"`
	JobTypes []string    `json:"job_types,omitempty"`
}

// MatchesFilter checks if an event matches the given filter
func MatchesFilter(event Event, filter EventFilter) bool {
	if len(filter.Types) > 0 && !contains(filter.Types, event.Type) {
		return false
	}
	if filter.JobID != "" && event.JobID != filter.JobID {
		return false
	}
	if len(filter.JobTypes) > 0 && !contains(filter.JobTypes, event.JobType) {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Config represents configuration for the event bus
type Config struct {
	// MaxStoredEvents bounds the history served by Since.
	MaxStoredEvents int `json:"max_stored_events"`
	// SubscriberBuffer is the channel capacity of each subscription.
	SubscriberBuffer int `json:"subscriber_buffer"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxStoredEvents:  500,
		SubscriberBuffer: 64,
	}
}

// Stats represents statistics about events
type Stats struct {
	TotalEvents         int64            `json:"total_events"`
	EventsByType        map[string]int64 `json:"events_by_type"`
	ActiveSubscriptions int              `json:"active_subscriptions"`
	Dropped             int64            `json:"dropped"`
	LastSeq             int64            `json:"last_seq"`
}
