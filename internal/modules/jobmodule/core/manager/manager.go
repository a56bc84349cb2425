// Package manager schedules jobs over per-type lanes. Each lane runs at most
// one job at a time in submission order; lanes run independently of each other.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/job"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

var (
	// ErrJobNotFound is returned when no queued or running job has the given id.
	ErrJobNotFound = errors.New("job not found")

	// ErrClosed is returned by Queue after Shutdown and used to settle jobs
	// still pending at shutdown.
	ErrClosed = errors.New("job manager closed")
)

// PriorityApplier re-applies the configured OS priority to a live process.
type PriorityApplier interface {
	ApplyPriority(h *process.Handle)
}

// Option configures a Manager.
type Option func(*Manager)

// WithPriorityApplier registers the applier used by UpdatePriority for a lane.
func WithPriorityApplier(jobType types.JobType, applier PriorityApplier) Option {
	return func(m *Manager) {
		m.appliers[jobType] = applier
	}
}

// lane is the FIFO queue and running slot of one job type.
type lane struct {
	jobType types.JobType

	mu      sync.Mutex
	pending []job.Task
	running job.Task
}

// Manager owns one lane per job type.
type Manager struct {
	logger   hclog.Logger
	lanes    map[types.JobType]*lane
	appliers map[types.JobType]PriorityApplier
	paused   atomic.Bool
	closed   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a manager with an empty lane for every job type.
func New(logger hclog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:   logger.Named("job-manager"),
		lanes:    make(map[types.JobType]*lane, len(types.JobTypes)),
		appliers: make(map[types.JobType]PriorityApplier),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, t := range types.JobTypes {
		m.lanes[t] = &lane{jobType: t}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Queue appends t to its lane and starts it as soon as the lane is free.
// Waiters observe the outcome through t.Done. A job queued on a closed
// manager settles as Aborted with ErrClosed.
func (m *Manager) Queue(t job.Task) error {
	l, ok := m.lanes[t.Type()]
	if !ok {
		return joberrors.Validation("queue", fmt.Sprintf("unknown job type %q", t.Type()))
	}
	if err := t.MarkQueued(); err != nil {
		return err
	}

	l.mu.Lock()
	// Shutdown drains each lane under its lock after setting closed.
	if m.closed.Load() {
		l.mu.Unlock()
		t.Cancel(ErrClosed)
		return ErrClosed
	}
	l.pending = append(l.pending, t)
	depth := len(l.pending)
	l.mu.Unlock()

	m.logger.Debug("job queued", "job_id", t.ID(), "job_type", string(t.Type()), "title", t.Title(), "queue_depth", depth)
	m.dequeue(l)
	return nil
}

// dequeue starts the head of the lane if the slot is free and the lane is
// not paused.
func (m *Manager) dequeue(l *lane) {
	l.mu.Lock()
	if l.running != nil || len(l.pending) == 0 || m.closed.Load() {
		l.mu.Unlock()
		return
	}
	if l.jobType.Pausable() && m.paused.Load() {
		l.mu.Unlock()
		return
	}
	t := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	l.running = t
	m.wg.Add(1)
	l.mu.Unlock()

	go m.run(l, t)
}

func (m *Manager) run(l *lane, t job.Task) {
	defer m.wg.Done()

	m.logger.Info("job starting", "job_id", t.ID(), "job_type", string(t.Type()), "title", t.Title())
	// Failures are already recorded on the job.
	t.Execute(m.ctx)

	l.mu.Lock()
	if l.running == t {
		l.running = nil
	}
	l.mu.Unlock()

	m.logger.Debug("job left lane", "job_id", t.ID(), "status", string(t.Status()))
	m.dequeue(l)
}

// Pause sets the global pause flag. Running Encode and Mux jobs are
// suspended and those lanes stop starting new jobs. Other lanes are unaffected.
func (m *Manager) Pause() {
	if m.paused.Swap(true) {
		return
	}
	m.logger.Info("pausing encode and mux lanes")
	for _, t := range m.pausableRunning() {
		if err := t.Pause(); err != nil {
			m.logger.Debug("running job not paused", "job_id", t.ID(), "error", err)
		}
	}
}

// Resume clears the global pause flag, continues suspended jobs and starts
// queued ones.
func (m *Manager) Resume() {
	if !m.paused.Swap(false) {
		return
	}
	m.logger.Info("resuming encode and mux lanes")
	for _, t := range m.pausableRunning() {
		if err := t.Resume(); err != nil {
			m.logger.Debug("running job not resumed", "job_id", t.ID(), "error", err)
		}
	}
	for _, jobType := range types.JobTypes {
		if jobType.Pausable() {
			m.dequeue(m.lanes[jobType])
		}
	}
}

// Paused reports the global pause flag.
func (m *Manager) Paused() bool {
	return m.paused.Load()
}

func (m *Manager) pausableRunning() []job.Task {
	var running []job.Task
	for _, jobType := range types.JobTypes {
		if !jobType.Pausable() {
			continue
		}
		l := m.lanes[jobType]
		l.mu.Lock()
		if l.running != nil {
			running = append(running, l.running)
		}
		l.mu.Unlock()
	}
	return running
}

// RemoveFromQueueAndAbort removes the job with id from its lane. A pending job
// settles as Aborted right away. A running job is asked to abort and releases
// its slot once its process has exited.
func (m *Manager) RemoveFromQueueAndAbort(id string) error {
	for _, jobType := range types.JobTypes {
		l := m.lanes[jobType]
		l.mu.Lock()
		if l.running != nil && l.running.ID() == id {
			t := l.running
			l.mu.Unlock()
			m.logger.Info("aborting running job", "job_id", id, "job_type", string(jobType))
			t.Abort()
			return nil
		}
		for i, t := range l.pending {
			if t.ID() != id {
				continue
			}
			l.pending = append(l.pending[:i:i], l.pending[i+1:]...)
			l.mu.Unlock()
			m.logger.Info("removed job from queue", "job_id", id, "job_type", string(jobType))
			t.Cancel(joberrors.ErrRemovedFromQueue)
			return nil
		}
		l.mu.Unlock()
	}
	return ErrJobNotFound
}

// UpdatePriority re-applies the configured OS priority to the processes of
// the running Encode and Mux jobs.
func (m *Manager) UpdatePriority() {
	for _, t := range m.pausableRunning() {
		applier, ok := m.appliers[t.Type()]
		if !ok {
			continue
		}
		h := t.Progression().Process
		if h == nil {
			m.logger.Debug("no live process to reprioritize", "job_id", t.ID())
			continue
		}
		applier.ApplyPriority(h)
		m.logger.Debug("priority re-applied", "job_id", t.ID(), "pid", h.PID())
	}
}

// Find returns the queued or running job with id.
func (m *Manager) Find(id string) (job.Task, bool) {
	for _, jobType := range types.JobTypes {
		l := m.lanes[jobType]
		l.mu.Lock()
		if l.running != nil && l.running.ID() == id {
			t := l.running
			l.mu.Unlock()
			return t, true
		}
		for _, t := range l.pending {
			if t.ID() == id {
				l.mu.Unlock()
				return t, true
			}
		}
		l.mu.Unlock()
	}
	return nil, false
}

// LaneSnapshot describes one lane.
type LaneSnapshot struct {
	Type    types.JobType  `json:"type"`
	Paused  bool           `json:"paused"`
	Running *job.Snapshot  `json:"running,omitempty"`
	Pending []job.Snapshot `json:"pending"`
}

// Snapshot returns the state of every lane in a stable order.
func (m *Manager) Snapshot() []LaneSnapshot {
	snaps := make([]LaneSnapshot, 0, len(types.JobTypes))
	paused := m.paused.Load()
	for _, jobType := range types.JobTypes {
		l := m.lanes[jobType]
		l.mu.Lock()
		running := l.running
		pending := append([]job.Task(nil), l.pending...)
		l.mu.Unlock()

		snap := LaneSnapshot{
			Type:    jobType,
			Paused:  paused && jobType.Pausable(),
			Pending: make([]job.Snapshot, 0, len(pending)),
		}
		if running != nil {
			s := running.Snapshot()
			snap.Running = &s
		}
		for _, t := range pending {
			snap.Pending = append(snap.Pending, t.Snapshot())
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// Shutdown stops accepting jobs, settles pending ones as Aborted, aborts the
// running ones and waits for them to exit or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	m.logger.Info("shutting down job manager")

	for _, jobType := range types.JobTypes {
		l := m.lanes[jobType]
		l.mu.Lock()
		pending := l.pending
		l.pending = nil
		running := l.running
		l.mu.Unlock()

		for _, t := range pending {
			t.Cancel(ErrClosed)
		}
		if running != nil {
			running.Abort()
		}
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
