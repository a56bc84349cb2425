// Package jobmodule wires the job supervision services into one process-wide
// context: the ffmpeg and mkvmerge drivers, the job manager lanes, the event
// bus and the optional history store.
//
// Jobs are created through the constructors on Module (LoadInfo, Encode, Mux,
// Grab), queued with Queue or Run, and observed through the event bus.
package jobmodule

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/config"
	"github.com/mantonx/remuxer/internal/events"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/command"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/history"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/job"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/manager"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/mux"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/transcode"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
	"gorm.io/gorm"
)

const (
	// ModuleID is the unique identifier for the job module
	ModuleID = "system.jobs"

	// ModuleName is the display name for the job module
	ModuleName = "Job Supervisor"
)

// Option configures a Module.
type Option func(*Module)

// WithController replaces the OS process controller.
func WithController(c process.Controller) Option {
	return func(m *Module) {
		m.controller = c
	}
}

// WithDatabase enables the job history store.
func WithDatabase(db *gorm.DB) Option {
	return func(m *Module) {
		m.db = db
	}
}

// Module is the process-wide job context.
type Module struct {
	config     *config.Manager
	logger     hclog.Logger
	controller process.Controller
	db         *gorm.DB

	mu         sync.RWMutex
	transcoder *transcode.Transcoder
	muxer      *mux.Muxer

	manager *manager.Manager
	bus     *events.Bus
	history *history.Store
}

// NewModule builds the module from the configuration held by cfg and
// follows its reloads.
func NewModule(cfg *config.Manager, logger hclog.Logger, opts ...Option) *Module {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	m := &Module{
		config: cfg,
		logger: logger.Named("jobs"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.controller == nil {
		m.controller = process.NewOSController()
	}

	current := cfg.Get()
	m.buildServices(current)

	m.bus = events.NewBus(events.Config{
		MaxStoredEvents:  current.Events.BufferSize,
		SubscriberBuffer: current.Events.SubscriberBuffer,
	}, logger)

	m.manager = manager.New(logger,
		manager.WithPriorityApplier(types.JobTypeEncode, applierFunc(m.applyTranscodePriority)),
		manager.WithPriorityApplier(types.JobTypeGrab, applierFunc(m.applyTranscodePriority)),
		manager.WithPriorityApplier(types.JobTypeMux, applierFunc(m.applyMuxPriority)),
		manager.WithPriorityApplier(types.JobTypeLoadInfo, applierFunc(m.applyMuxPriority)),
	)

	if m.db != nil {
		m.history = history.NewStore(m.db, current.Database.HistoryLimit, logger)
	}

	cfg.AddWatcher(m.onConfigChange)
	m.logger.Info("job module initialized",
		"ffmpeg", current.Tools.FFmpeg,
		"mkvmerge", current.Tools.Mkvmerge,
		"priority", current.Priority,
		"history", m.history != nil)
	return m
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// priority is read at every process spawn so preference changes apply to the
// next process without rebuilding the drivers.
func (m *Module) priority() process.Priority {
	return m.config.Get().ProcessPriority()
}

func (m *Module) buildServices(cfg *config.Config) {
	ffmpeg := transcode.NewDriver(cfg.Tools.FFmpeg, m.controller, m.priority, m.logger)
	mkvmerge := mux.NewDriver(cfg.Tools.Mkvmerge, m.controller, m.priority, m.logger)

	t := transcode.NewTranscoder(ffmpeg, transcodeOptions(cfg), m.logger)
	mx := mux.NewMuxer(mkvmerge, cfg.Tools.UILanguage, m.logger)

	m.mu.Lock()
	m.transcoder = t
	m.muxer = mx
	m.mu.Unlock()
}

func transcodeOptions(cfg *config.Config) transcode.Options {
	return transcode.Options{
		TestMode:        cfg.Encoding.TestMode,
		TestWindowStart: time.Duration(cfg.Encoding.TestWindowStart) * time.Second,
		MuxingQueueSize: cfg.Encoding.MuxingQueueSize,
		StatsDir:        cfg.Encoding.StatsDir,
		Weights: transcode.PassWeights{
			First:  cfg.Encoding.PassOneWeight,
			Second: cfg.Encoding.PassTwoWeight,
		},
	}
}

// Transcoder returns the ffmpeg service used by new jobs.
func (m *Module) Transcoder() *transcode.Transcoder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transcoder
}

// Muxer returns the mkvmerge service used by new jobs.
func (m *Module) Muxer() *mux.Muxer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.muxer
}

// Manager returns the job manager.
func (m *Module) Manager() *manager.Manager {
	return m.manager
}

// Events returns the event bus.
func (m *Module) Events() *events.Bus {
	return m.bus
}

// History returns the history store, nil when no database is configured.
func (m *Module) History() *history.Store {
	return m.history
}

// applierFunc adapts a function to manager.PriorityApplier.
type applierFunc func(h *process.Handle)

func (f applierFunc) ApplyPriority(h *process.Handle) { f(h) }

func (m *Module) applyTranscodePriority(h *process.Handle) {
	m.Transcoder().Driver().ApplyPriority(h)
}

func (m *Module) applyMuxPriority(h *process.Handle) {
	m.Muxer().Driver().ApplyPriority(h)
}

func (m *Module) onConfigChange(oldCfg, newCfg *config.Config) {
	if oldCfg.Tools != newCfg.Tools || oldCfg.Encoding != newCfg.Encoding {
		m.buildServices(newCfg)
		m.logger.Info("tool settings reloaded, new jobs use the updated settings")
	}
	if oldCfg.Priority != newCfg.Priority {
		m.logger.Info("process priority changed", "from", oldCfg.Priority, "to", newCfg.Priority)
		m.manager.UpdatePriority()
		m.bus.Publish(events.Event{
			Type:    events.EventPriorityChanged,
			Message: newCfg.Priority,
		})
	}
}

// SetPriority stores a new priority preference. Running Encode and Mux
// processes are re-prioritized through the config watcher.
func (m *Module) SetPriority(p process.Priority) error {
	return m.config.Update(func(c *config.Config) {
		c.Priority = p.String()
	})
}

// Priority returns the configured priority preference.
func (m *Module) Priority() process.Priority {
	return m.priority()
}

// jobOptions puts the module logger in front of caller options, so a caller
// may still override it.
func (m *Module) jobOptions(opts []job.Option) []job.Option {
	return append([]job.Option{job.WithLogger(m.logger)}, opts...)
}

// LoadInfo creates a job probing path. Options are passed to job.New, e.g.
// job.WithExtraDuration to carry time already spent on the file.
func (m *Module) LoadInfo(path string, opts ...job.Option) *job.Job[*mux.FileInfo] {
	muxer := m.Muxer()
	j := job.New(types.JobTypeLoadInfo, filepath.Base(path),
		func(ctx context.Context, report func(types.Progression)) (*mux.FileInfo, error) {
			return muxer.Probe(ctx, path)
		}, m.jobOptions(opts)...)
	m.track(j)
	return j
}

// Encode creates a job transcoding req.Source into req.Output.
func (m *Module) Encode(req transcode.Request, opts ...job.Option) *job.Job[string] {
	t := m.Transcoder()
	j := job.New(types.JobTypeEncode, filepath.Base(req.Output),
		func(ctx context.Context, report func(types.Progression)) (string, error) {
			return t.Encode(ctx, req, report)
		}, m.jobOptions(opts)...)
	m.track(j)
	return j
}

// Mux creates a job remuxing req.Source into req.Output. When req.Tracks is
// empty the source is probed first and every track is kept.
func (m *Module) Mux(req mux.RemuxRequest, opts ...job.Option) *job.Job[string] {
	muxer := m.Muxer()
	j := job.New(types.JobTypeMux, filepath.Base(req.Output),
		func(ctx context.Context, report func(types.Progression)) (string, error) {
			if len(req.Tracks) == 0 {
				info, err := muxer.Probe(ctx, req.Source)
				if err != nil {
					return "", err
				}
				req.Tracks = info.TrackList()
			}
			return muxer.Remux(ctx, req, report)
		}, m.jobOptions(opts)...)
	m.track(j)
	return j
}

// Grab creates a job writing one frame of req.Source as WebP. A zero
// quality uses the configured one.
func (m *Module) Grab(req transcode.GrabRequest, opts ...job.Option) *job.Job[string] {
	if req.Quality == 0 {
		req.Quality = m.config.Get().Snapshots.WebPQuality
	}
	t := m.Transcoder()
	j := job.New(types.JobTypeGrab, filepath.Base(req.Output),
		func(ctx context.Context, report func(types.Progression)) (string, error) {
			return t.Grab(ctx, req, report)
		}, m.jobOptions(opts)...)
	m.track(j)
	return j
}

// Queue hands t to its lane.
func (m *Module) Queue(t job.Task) error {
	return m.manager.Queue(t)
}

// Run queues j and waits for its outcome.
func Run[T any](ctx context.Context, m *Module, j *job.Job[T]) (T, error) {
	return job.Submit(ctx, m, j)
}

// Pause suspends the Encode and Mux lanes.
func (m *Module) Pause() {
	if m.manager.Paused() {
		return
	}
	m.manager.Pause()
	m.bus.Publish(events.Event{Type: events.EventSchedulerPaused})
}

// Resume continues the Encode and Mux lanes.
func (m *Module) Resume() {
	if !m.manager.Paused() {
		return
	}
	m.manager.Resume()
	m.bus.Publish(events.Event{Type: events.EventSchedulerResumed})
}

// Paused reports whether the Encode and Mux lanes are paused.
func (m *Module) Paused() bool {
	return m.manager.Paused()
}

// RemoveFromQueueAndAbort drops a pending job or aborts a running one.
func (m *Module) RemoveFromQueueAndAbort(id string) error {
	return m.manager.RemoveFromQueueAndAbort(id)
}

// Jobs returns the state of every lane.
func (m *Module) Jobs() []manager.LaneSnapshot {
	return m.manager.Snapshot()
}

// ToolVersion is the result of a version query for one tool.
type ToolVersion struct {
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Versions queries ffmpeg and mkvmerge.
func (m *Module) Versions(ctx context.Context) map[string]ToolVersion {
	drivers := []*command.Driver{m.Transcoder().Driver(), m.Muxer().Driver()}
	out := make(map[string]ToolVersion, len(drivers))
	for _, d := range drivers {
		v := ToolVersion{Path: d.Path()}
		version, err := d.Version(ctx)
		if err != nil {
			m.logger.Warn("tool version unavailable", "tool", d.Name(), "error", err)
			v.Error = err.Error()
		} else {
			v.Version = version
		}
		out[d.Name()] = v
	}
	return out
}

// Shutdown aborts all jobs and closes the event bus.
func (m *Module) Shutdown(ctx context.Context) error {
	err := m.manager.Shutdown(ctx)
	m.bus.Close()
	return err
}

// track publishes every state change of t and records it once finished.
func (m *Module) track(t job.Task) {
	var (
		mu   sync.Mutex
		last = t.Status()
	)
	t.Subscribe(func(s job.Snapshot) {
		mu.Lock()
		prev := last
		last = s.Status
		mu.Unlock()

		m.bus.Publish(eventFor(prev, s))

		if s.Status.IsTerminal() && m.history != nil {
			if err := m.history.Record(context.Background(), s); err != nil {
				m.logger.Warn("failed to record job history", "job_id", s.ID, "error", err)
			}
		}
	})
}

func eventFor(prev types.JobStatus, s job.Snapshot) events.Event {
	e := events.Event{
		Type:    eventType(prev, s.Status),
		JobID:   s.ID,
		JobType: string(s.Type),
		Title:   s.Title,
		Status:  string(s.Status),
		Error:   s.Error,
	}
	if !s.Progression.IsStopped() {
		e.Progress = s.Progression.Progress
		e.Speed = s.Progression.Speed
		e.ETA = s.Progression.ETA
		e.Pass = s.Progression.Pass
		if !s.Progression.IsIndeterminate() {
			e.Percent = s.Progression.Percent()
		}
	}
	if s.Status.IsTerminal() {
		e.Message = s.Message
	}
	return e
}

func eventType(prev, cur types.JobStatus) events.EventType {
	switch {
	case cur == types.JobStatusQueued:
		return events.EventJobQueued
	case cur == types.JobStatusSuccess:
		return events.EventJobCompleted
	case cur == types.JobStatusError:
		return events.EventJobFailed
	case cur == types.JobStatusAborted:
		return events.EventJobAborted
	case cur == types.JobStatusPaused && prev != types.JobStatusPaused:
		return events.EventJobPaused
	case cur.IsRunning() && prev == types.JobStatusPaused:
		return events.EventJobResumed
	case cur.IsRunning() && !prev.IsRunning():
		return events.EventJobStarted
	default:
		return events.EventJobProgress
	}
}
