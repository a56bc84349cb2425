package api

import (
	"context"

	"github.com/mantonx/remuxer/internal/events"
	"github.com/mantonx/remuxer/internal/modules/jobmodule"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/history"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/manager"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
)

// JobService is the part of the job module the API exposes.
type JobService interface {
	Jobs() []manager.LaneSnapshot
	Pause()
	Resume()
	Paused() bool
	RemoveFromQueueAndAbort(id string) error
	Priority() process.Priority
	SetPriority(p process.Priority) error
	Versions(ctx context.Context) map[string]jobmodule.ToolVersion
	Events() *events.Bus
	History() *history.Store
}

var _ JobService = (*jobmodule.Module)(nil)
