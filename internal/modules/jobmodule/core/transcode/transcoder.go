// Package transcode drives ffmpeg: audio/video re-encoding with optional
// two-pass orchestration, progress decoding from -progress output, and
// single-frame snapshot grabbing.
package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/command"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

// ffmpeg exits with 255 when interrupted by a signal it handles.
const abortExitCode = 255

// muxingQueueOverflow is the diagnostic ffmpeg prints when an output stream
// buffers more packets than -max_muxing_queue_size allows.
const muxingQueueOverflow = "Too many packets buffered for output stream"

// ProgressFunc receives progress updates while a run is active.
type ProgressFunc func(types.Progression)

// Transcoder runs ffmpeg.
type Transcoder struct {
	driver *command.Driver
	opts   Options
	logger hclog.Logger
}

// NewDriver returns the command driver configured for ffmpeg.
func NewDriver(path string, controller process.Controller, priority command.PriorityFunc, logger hclog.Logger) *command.Driver {
	return command.NewDriver(command.Config{
		Name:           "ffmpeg",
		Path:           path,
		SuccessCodes:   []int{0},
		AbortCodes:     []int{abortExitCode},
		VersionArgs:    []string{"-version"},
		VersionPattern: regexp.MustCompile(`ffmpeg version (\S+)`),
	}, controller, priority, logger)
}

// NewTranscoder wraps an ffmpeg driver.
func NewTranscoder(driver *command.Driver, opts Options, logger hclog.Logger) *Transcoder {
	if opts.Weights == (PassWeights{}) {
		opts.Weights = DefaultPassWeights()
	}
	if opts.MuxingQueueSize <= 0 {
		opts.MuxingQueueSize = DefaultMuxingQueueSize
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Transcoder{driver: driver, opts: opts, logger: logger.Named("transcoder")}
}

// Driver exposes the underlying command driver.
func (t *Transcoder) Driver() *command.Driver {
	return t.driver
}

// Options returns the encode options in effect.
func (t *Transcoder) Options() Options {
	return t.opts
}

// Version returns the ffmpeg version.
func (t *Transcoder) Version(ctx context.Context) (string, error) {
	return t.driver.Version(ctx)
}

// Encode runs the encode described by req and returns the output path.
// When a video track has a bitrate target two passes run back to back and
// progress is reported over the combined range.
func (t *Transcoder) Encode(ctx context.Context, req Request, report ProgressFunc) (string, error) {
	if report == nil {
		report = func(types.Progression) {}
	}

	if !req.TwoPass() {
		if err := t.runWithRetry(ctx, req, 0, report); err != nil {
			return "", err
		}
		return req.Output, nil
	}

	defer t.removeStats(req)
	for pass := 1; pass <= 2; pass++ {
		passReport := func(p types.Progression) {
			report(t.opts.Weights.Combine(pass, p))
		}
		if err := t.runWithRetry(ctx, req, pass, passReport); err != nil {
			return "", joberrors.Wrap(err, fmt.Sprintf("pass %d", pass))
		}
		t.logger.Debug("pass completed", "pass", pass, "output", req.Output)
	}
	return req.Output, nil
}

// runWithRetry runs once and, if ffmpeg overflowed its muxing queue, once
// more with an enlarged queue.
func (t *Transcoder) runWithRetry(ctx context.Context, req Request, pass int, report ProgressFunc) error {
	err := t.run(ctx, req, runPlan{pass: pass}, report)
	if err == nil || joberrors.IsAborted(err) || !strings.Contains(err.Error(), muxingQueueOverflow) {
		return err
	}
	t.logger.Warn("muxing queue overflow, retrying with larger queue",
		"source", req.Source,
		"pass", pass,
		"queue_size", t.opts.MuxingQueueSize)
	return t.run(ctx, req, runPlan{pass: pass, largeQueue: true}, report)
}

func (t *Transcoder) run(ctx context.Context, req Request, plan runPlan, report ProgressFunc) error {
	args, err := BuildArgs(req, t.opts, plan)
	if err != nil {
		return err
	}

	parser := NewProgressParser(req.EffectiveDuration(t.opts))
	_, err = t.driver.Execute(ctx, args, func(stdout, stderr string, h *process.Handle) command.Response {
		if stderr != "" {
			return command.Response{Err: stderr}
		}
		if p, ok := parser.ParseLine(stdout); ok {
			p.Process = h
			report(p)
		}
		return command.Response{}
	})
	return err
}

func (t *Transcoder) removeStats(req Request) {
	for _, track := range req.Tracks {
		if track.Type != types.TrackTypeVideo || track.Encoder == nil {
			continue
		}
		matches, _ := filepath.Glob(req.StatsPath(t.opts, track.Index) + "*")
		for _, m := range matches {
			if err := os.Remove(m); err != nil {
				t.logger.Debug("failed to remove pass statistics", "path", m, "error", err)
			}
		}
	}
}
