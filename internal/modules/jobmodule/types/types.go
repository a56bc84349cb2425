// Package types defines the shared vocabulary of the job module: job types and
// statuses, the progression snapshot reported by running jobs, and the track
// descriptions consumed by the transcode and mux drivers.
package types

import (
	"fmt"
	"time"

	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
)

// JobType identifies an execution lane. Each type runs at most one job at a time.
type JobType string

const (
	JobTypeLoadInfo JobType = "load_info"
	JobTypeEncode   JobType = "encode"
	JobTypeMux      JobType = "mux"
	JobTypeGrab     JobType = "grab"
)

// JobTypes lists every lane in a stable order.
var JobTypes = []JobType{JobTypeLoadInfo, JobTypeEncode, JobTypeMux, JobTypeGrab}

// Pausable reports whether the global pause flag applies to this lane.
func (t JobType) Pausable() bool {
	return t == JobTypeEncode || t == JobTypeMux
}

// RunningStatus returns the status a job of this type holds while executing.
func (t JobType) RunningStatus() JobStatus {
	switch t {
	case JobTypeLoadInfo:
		return JobStatusLoadingInfo
	case JobTypeEncode:
		return JobStatusEncoding
	case JobTypeMux:
		return JobStatusMuxing
	case JobTypeGrab:
		return JobStatusGrabbing
	default:
		panic(fmt.Sprintf("unknown job type %q", string(t)))
	}
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusWaiting     JobStatus = "waiting"
	JobStatusQueued      JobStatus = "queued"
	JobStatusLoadingInfo JobStatus = "loading_info"
	JobStatusEncoding    JobStatus = "encoding"
	JobStatusMuxing      JobStatus = "muxing"
	JobStatusGrabbing    JobStatus = "grabbing"
	JobStatusPaused      JobStatus = "paused"
	// JobStatusWarning is never set by the scheduler; callers may use it to
	// flag items for attention before they are queued.
	JobStatusWarning JobStatus = "warning"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
	JobStatusAborted JobStatus = "aborted"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusError || s == JobStatusAborted
}

// IsRunning reports whether the status is one of the per-type running states.
func (s JobStatus) IsRunning() bool {
	switch s {
	case JobStatusLoadingInfo, JobStatusEncoding, JobStatusMuxing, JobStatusGrabbing:
		return true
	default:
		return false
	}
}

const (
	// ProgressStopped marks a job that is not progressing (finished or not started).
	ProgressStopped = -1.0
	// ProgressIndeterminate marks a running job whose completion cannot be measured.
	ProgressIndeterminate = -2.0
)

// Progression is the live progress snapshot of a job.
type Progression struct {
	// Progress is 0..1 when measured, or one of ProgressStopped / ProgressIndeterminate.
	Progress float64 `json:"progress"`
	// Speed is the processing speed relative to real-time playback.
	Speed float64 `json:"speed,omitempty"`
	// ETA is the estimated time remaining; zero when unknown.
	ETA time.Duration `json:"eta,omitempty"`
	// Pass is the current pass of a multi-pass transcode, zero otherwise.
	Pass int `json:"pass,omitempty"`
	// Process refers to the running external process, nil between processes.
	// It is used for control operations only; the driver owns the process.
	Process *process.Handle `json:"-"`
}

// Stopped returns the progression of a job that is not running.
func Stopped() Progression {
	return Progression{Progress: ProgressStopped}
}

// Indeterminate returns a running progression with unknown completion.
func Indeterminate() Progression {
	return Progression{Progress: ProgressIndeterminate}
}

// IsIndeterminate reports whether completion is unknown.
func (p Progression) IsIndeterminate() bool {
	return p.Progress == ProgressIndeterminate
}

// IsStopped reports whether the progression is the stopped marker.
func (p Progression) IsStopped() bool {
	return p.Progress == ProgressStopped
}

// Percent returns the measured completion in percent, or -1 when not measured.
func (p Progression) Percent() float64 {
	if p.Progress < 0 {
		return -1
	}
	return p.Progress * 100
}

// TrackType is the kind of a container track.
type TrackType string

const (
	TrackTypeVideo    TrackType = "video"
	TrackTypeAudio    TrackType = "audio"
	TrackTypeSubtitle TrackType = "subtitles"
)

// EncoderSetting describes how a track is re-encoded.
type EncoderSetting struct {
	// Codec is the ffmpeg encoder name (libx264, libx265, aac...).
	Codec string `json:"codec"`
	// Bitrate is the target bitrate in bits per second; zero means encoder default.
	Bitrate int64 `json:"bitrate,omitempty"`
	// EstimatedSize is the expected output size of the track in bytes.
	EstimatedSize int64 `json:"estimated_size,omitempty"`
	// Compression is EstimatedSize relative to the source track size.
	Compression float64 `json:"compression,omitempty"`
}

// Track is one track of a source container as seen by the drivers.
type Track struct {
	// ID is the container track id (mkvmerge numbering).
	ID int `json:"id"`
	// Index is the position among tracks of the same type (ffmpeg stream specifier).
	Index    int       `json:"index"`
	Type     TrackType `json:"type"`
	Codec    string    `json:"codec"`
	Language string    `json:"language,omitempty"`
	Name     string    `json:"name,omitempty"`
	Default  bool      `json:"default"`
	Forced   bool      `json:"forced"`
	// Copy is false when the track is dropped from the output.
	Copy bool `json:"copy"`
	// Encoder is set when the track is re-encoded instead of stream-copied.
	Encoder *EncoderSetting `json:"encoder,omitempty"`
	Size    int64           `json:"size,omitempty"`
}

// Reencoded reports whether the track carries an encoder setting.
func (t Track) Reencoded() bool {
	return t.Encoder != nil
}
