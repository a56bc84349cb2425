package database

import (
	"time"

	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

// JobRecord is a finished job kept for display. Records are never used to
// rebuild the queue.
type JobRecord struct {
	ID         string          `gorm:"primaryKey;size:36" json:"id"`
	Type       types.JobType   `gorm:"index;not null" json:"type"`
	Title      string          `json:"title"`
	Status     types.JobStatus `gorm:"index;not null" json:"status"`
	Error      string          `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	EndedAt    time.Time       `gorm:"index" json:"ended_at"`
	DurationMs int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Duration returns the recorded job duration.
func (r JobRecord) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}
