// Package job implements the generic, result-typed job and its lifecycle:
// Waiting -> Queued -> running -> (Paused <-> running) -> Success | Error | Aborted.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

// Body performs the type-specific work of a job. It must honor ctx
// cancellation and report progress through report.
type Body[T any] func(ctx context.Context, report func(types.Progression)) (T, error)

// Listener is notified with a snapshot after every state mutation.
type Listener func(Snapshot)

// Snapshot is a point-in-time copy of a job's observable state.
type Snapshot struct {
	ID          string            `json:"id"`
	Type        types.JobType     `json:"type"`
	Title       string            `json:"title"`
	Status      types.JobStatus   `json:"status"`
	Progression types.Progression `json:"progression"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Duration    time.Duration     `json:"duration"`
	Message     string            `json:"message,omitempty"`
}

// Task is the type-erased view of a job used by the manager.
type Task interface {
	ID() string
	Type() types.JobType
	Title() string
	Status() types.JobStatus
	Progression() types.Progression
	Snapshot() Snapshot
	Subscribe(Listener) func()
	Done() <-chan struct{}
	Err() error

	MarkQueued() error
	Execute(ctx context.Context)
	Pause() error
	Resume() error
	Abort()
	Cancel(reason error)
}

type subscription struct {
	id int
	fn Listener
}

// Option configures a job.
type Option func(*settings)

type settings struct {
	logger        hclog.Logger
	extraDuration time.Duration
	now           func() time.Time
}

// WithLogger sets the job's logger.
func WithLogger(logger hclog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithExtraDuration accounts for work done before the job existed, such as
// an earlier probe of the same file.
func WithExtraDuration(d time.Duration) Option {
	return func(s *settings) { s.extraDuration = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// Job is a unit of work producing a T.
type Job[T any] struct {
	id      string
	jobType types.JobType
	title   string
	body    Body[T]
	logger  hclog.Logger
	now     func() time.Time

	deliverMu sync.Mutex

	mu             sync.Mutex
	status         types.JobStatus
	progression    types.Progression
	outcome        *Outcome[T]
	started        time.Time
	ended          time.Time
	extraDuration  time.Duration
	cancel         context.CancelFunc
	abortRequested bool
	listeners      []subscription
	nextListener   int
	done           chan struct{}
}

var _ Task = (*Job[struct{}])(nil)

// New creates a Waiting job.
func New[T any](jobType types.JobType, title string, body Body[T], opts ...Option) *Job[T] {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	id := uuid.NewString()
	return &Job[T]{
		id:            id,
		jobType:       jobType,
		title:         title,
		body:          body,
		logger:        s.logger.Named("job").With("job_id", id, "job_type", string(jobType)),
		now:           s.now,
		status:        types.JobStatusWaiting,
		progression:   types.Stopped(),
		extraDuration: s.extraDuration,
		done:          make(chan struct{}),
	}
}

// ID returns the unique job id.
func (j *Job[T]) ID() string { return j.id }

// Type returns the job's lane.
func (j *Job[T]) Type() types.JobType { return j.jobType }

// Title returns the human readable title.
func (j *Job[T]) Title() string { return j.title }

// Status returns the current status.
func (j *Job[T]) Status() types.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progression returns the latest progression.
func (j *Job[T]) Progression() types.Progression {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progression
}

// Outcome returns the terminal outcome, or false while the job is not finished.
func (j *Job[T]) Outcome() (Outcome[T], bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.outcome == nil {
		return Outcome[T]{}, false
	}
	return *j.outcome, true
}

// Result returns the value of a successful job.
func (j *Job[T]) Result() (T, bool) {
	o, ok := j.Outcome()
	if !ok {
		var zero T
		return zero, false
	}
	return o.Value()
}

// Err returns the failure of an Error or Aborted job, nil otherwise.
func (j *Job[T]) Err() error {
	o, ok := j.Outcome()
	if !ok {
		return nil
	}
	return o.Err()
}

// Done is closed once the job reaches a terminal status.
func (j *Job[T]) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-j.done:
		o, _ := j.Outcome()
		return o.Get()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// SetExtraDuration replaces the duration offset added to the measured time.
func (j *Job[T]) SetExtraDuration(d time.Duration) {
	j.mu.Lock()
	j.extraDuration = d
	j.mu.Unlock()
	j.notify()
}

// Duration returns the elapsed execution time plus the extra-duration offset.
func (j *Job[T]) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.durationLocked()
}

func (j *Job[T]) durationLocked() time.Duration {
	d := j.extraDuration
	switch {
	case j.started.IsZero():
	case j.ended.IsZero():
		d += j.now().Sub(j.started)
	default:
		d += j.ended.Sub(j.started)
	}
	return d
}

// StatusMessage renders a human readable summary of a finished job.
func (j *Job[T]) StatusMessage() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.messageLocked()
}

func (j *Job[T]) messageLocked() string {
	d := j.durationLocked().Round(time.Second)
	switch j.status {
	case types.JobStatusSuccess:
		return fmt.Sprintf("Completed in %s", d)
	case types.JobStatusAborted:
		return fmt.Sprintf("Aborted after %s", d)
	case types.JobStatusError:
		return fmt.Sprintf("Failed after %s: %v", d, j.outcome.Err())
	default:
		return ""
	}
}

// Snapshot returns a copy of the observable state.
func (j *Job[T]) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

func (j *Job[T]) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:          j.id,
		Type:        j.jobType,
		Title:       j.title,
		Status:      j.status,
		Progression: j.progression,
		StartedAt:   j.started,
		EndedAt:     j.ended,
		Duration:    j.durationLocked(),
		Message:     j.messageLocked(),
	}
	if j.outcome != nil && j.outcome.Err() != nil {
		s.Error = j.outcome.Err().Error()
	}
	return s
}

// Subscribe registers l for state notifications and returns a function that
// removes it. Listeners run synchronously on the goroutine that mutated the job
// and see snapshots one at a time, in the order they were taken. A listener
// must not mutate the job it observes.
func (j *Job[T]) Subscribe(l Listener) func() {
	j.mu.Lock()
	defer j.mu.Unlock()
	id := j.nextListener
	j.nextListener++
	j.listeners = append(j.listeners, subscription{id: id, fn: l})
	return func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		for i, sub := range j.listeners {
			if sub.id == id {
				j.listeners = append(j.listeners[:i:i], j.listeners[i+1:]...)
				return
			}
		}
	}
}

func (j *Job[T]) notify() {
	j.deliverMu.Lock()
	defer j.deliverMu.Unlock()

	j.mu.Lock()
	snap := j.snapshotLocked()
	listeners := append([]subscription(nil), j.listeners...)
	j.mu.Unlock()

	for _, sub := range listeners {
		sub.fn(snap)
	}
}

// MarkQueued moves a Waiting job to Queued. The manager calls it on submit.
func (j *Job[T]) MarkQueued() error {
	j.mu.Lock()
	if j.status != types.JobStatusWaiting {
		status := j.status
		j.mu.Unlock()
		return joberrors.Validation("queue", fmt.Sprintf("job %s is %s, not waiting", j.id, status))
	}
	j.status = types.JobStatusQueued
	j.mu.Unlock()
	j.notify()
	return nil
}

// Execute runs the body and settles the job. It is called by the manager
// only, blocks until the body returns and runs at most once.
func (j *Job[T]) Execute(ctx context.Context) {
	j.mu.Lock()
	if j.status.IsTerminal() || !j.started.IsZero() {
		j.mu.Unlock()
		return
	}
	if j.abortRequested {
		j.mu.Unlock()
		j.logger.Debug("job aborted before start", "title", j.title)
		j.finish(Failed[T](joberrors.New(joberrors.ErrorTypeAborted, "", joberrors.ErrAborted).WithJob(j.id)))
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.cancel = cancel
	j.started = j.now()
	j.status = j.jobType.RunningStatus()
	j.progression = types.Indeterminate()
	j.mu.Unlock()
	j.notify()

	j.logger.Debug("job started", "title", j.title)
	value, err := j.body(ctx, j.report)
	if err != nil {
		j.finish(Failed[T](j.classify(err)))
		return
	}
	j.finish(Succeeded(value))
}

// classify attaches the job id and maps a bare context cancellation caused by
// Abort onto the aborted error type.
func (j *Job[T]) classify(err error) error {
	j.mu.Lock()
	requested := j.abortRequested
	j.mu.Unlock()

	if !joberrors.IsAborted(err) && requested && errors.Is(err, context.Canceled) {
		return joberrors.New(joberrors.ErrorTypeAborted, "", err).WithJob(j.id)
	}
	var jErr *joberrors.JobError
	if errors.As(err, &jErr) && jErr.JobID == "" {
		jErr.JobID = j.id
	}
	return err
}

func (j *Job[T]) finish(o Outcome[T]) {
	j.mu.Lock()
	if j.outcome != nil {
		j.mu.Unlock()
		return
	}
	j.outcome = &o
	j.status = o.Status()
	if j.started.IsZero() {
		j.started = j.now()
	}
	j.ended = j.now()
	j.progression = types.Stopped()
	j.cancel = nil
	msg := j.messageLocked()
	j.mu.Unlock()

	switch j.status {
	case types.JobStatusError:
		j.logger.Warn("job failed", "title", j.title, "error", o.Err())
	default:
		j.logger.Info("job finished", "title", j.title, "status", string(j.status), "message", msg)
	}
	j.notify()
	close(j.done)
}

// report stores a progression from the body. A job paused through Pause keeps
// its status; a process started while paused (the next pass) is suspended too.
func (j *Job[T]) report(p types.Progression) {
	j.mu.Lock()
	if j.outcome != nil {
		j.mu.Unlock()
		return
	}
	j.progression = p
	paused := j.status == types.JobStatusPaused
	j.mu.Unlock()

	if paused && p.Process != nil && !p.Process.Suspended() {
		if err := p.Process.Suspend(); err != nil {
			j.logger.Warn("failed to suspend next process of paused job", "pid", p.Process.PID(), "error", err)
		}
	}
	j.notify()
}

// Pause suspends the live process. Without a live process nothing happens
// and ErrNoProcess is returned.
func (j *Job[T]) Pause() error {
	j.mu.Lock()
	if !j.status.IsRunning() {
		status := j.status
		j.mu.Unlock()
		if status == types.JobStatusPaused {
			return nil
		}
		j.logger.Warn("pause ignored, job is not running", "status", string(status))
		return joberrors.New(joberrors.ErrorTypeValidation, "pause", joberrors.ErrNoProcess).WithJob(j.id)
	}
	h := j.progression.Process
	j.mu.Unlock()

	if h == nil {
		j.logger.Warn("pause ignored, no live process")
		return joberrors.New(joberrors.ErrorTypeValidation, "pause", joberrors.ErrNoProcess).WithJob(j.id)
	}
	if err := h.Suspend(); err != nil {
		j.logger.Warn("pause failed", "pid", h.PID(), "error", err)
		return err
	}

	j.mu.Lock()
	if j.status.IsRunning() {
		j.status = types.JobStatusPaused
	}
	j.mu.Unlock()
	j.logger.Debug("job paused", "pid", h.PID())
	j.notify()
	return nil
}

// Resume continues a paused job and restores its running status.
func (j *Job[T]) Resume() error {
	j.mu.Lock()
	if j.status != types.JobStatusPaused {
		j.mu.Unlock()
		return nil
	}
	h := j.progression.Process
	j.mu.Unlock()

	var err error
	if h == nil {
		j.logger.Warn("resume without live process")
		err = joberrors.New(joberrors.ErrorTypeValidation, "resume", joberrors.ErrNoProcess).WithJob(j.id)
	} else if rerr := h.Resume(); rerr != nil {
		j.logger.Warn("resume failed", "pid", h.PID(), "error", rerr)
		return rerr
	}

	j.mu.Lock()
	if j.status == types.JobStatusPaused {
		j.status = j.jobType.RunningStatus()
	}
	j.mu.Unlock()
	j.notify()
	return err
}

// Abort requests cancellation of the job. A running job settles as Aborted
// once its process has exited; a job that has not started yet settles as
// Aborted when it is executed, without running its body. Aborting a finished
// job is a no-op.
func (j *Job[T]) Abort() {
	j.mu.Lock()
	if j.outcome != nil {
		j.mu.Unlock()
		return
	}
	j.abortRequested = true
	cancel := j.cancel
	j.mu.Unlock()

	j.logger.Info("abort requested", "title", j.title)
	if cancel != nil {
		cancel()
	}
}

// Cancel settles a job that never started as Aborted with reason. A running
// job is aborted instead.
func (j *Job[T]) Cancel(reason error) {
	j.mu.Lock()
	running := !j.started.IsZero()
	j.mu.Unlock()

	if running {
		j.Abort()
		return
	}
	if reason == nil {
		reason = joberrors.ErrAborted
	}
	j.finish(Failed[T](joberrors.New(joberrors.ErrorTypeAborted, "queue", reason).WithJob(j.id)))
}

// Queuer accepts tasks for execution.
type Queuer interface {
	Queue(Task) error
}

// Submit hands j to q and waits for its outcome. Cancelling ctx stops the
// wait only; the job keeps its place in the lane.
func Submit[T any](ctx context.Context, q Queuer, j *Job[T]) (T, error) {
	if err := q.Queue(j); err != nil {
		var zero T
		return zero, err
	}
	return j.Wait(ctx)
}
