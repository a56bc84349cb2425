package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

const (
	// TestWindow is the length of the excerpt encoded in test mode.
	TestWindow = 30 * time.Second
	// DefaultMuxingQueueSize is used when a run overflowed the muxing queue.
	DefaultMuxingQueueSize = 9999

	encoderX264 = "libx264"
	encoderX265 = "libx265"
	encoderAAC  = "aac"
)

// Request describes one encode.
type Request struct {
	Source string
	Output string
	// Duration is the source duration used for progress; zero when unknown.
	Duration time.Duration
	Tracks   []types.Track
}

// Options are the encode settings that come from configuration.
type Options struct {
	TestMode        bool
	TestWindowStart time.Duration
	MuxingQueueSize int
	StatsDir        string
	Weights         PassWeights
}

// runPlan selects the pass and queue size of one ffmpeg run.
type runPlan struct {
	pass       int // 0 single pass, 1 or 2 for two-pass runs
	largeQueue bool
}

// TwoPass reports whether any video track has a bitrate target.
func (r Request) TwoPass() bool {
	for _, t := range r.Tracks {
		if t.Type == types.TrackTypeVideo && t.Copy && t.Encoder != nil && t.Encoder.Bitrate > 0 {
			return true
		}
	}
	return false
}

// EffectiveDuration is the media length a run processes.
func (r Request) EffectiveDuration(opts Options) time.Duration {
	if opts.TestMode && (r.Duration == 0 || r.Duration > TestWindow) {
		return TestWindow
	}
	return r.Duration
}

// testWindowStart clamps the configured start so the window fits the source.
func (r Request) testWindowStart(opts Options) time.Duration {
	start := opts.TestWindowStart
	if r.Duration > 0 {
		latest := r.Duration - TestWindow
		if latest < 0 {
			latest = 0
		}
		if start > latest {
			start = latest
		}
	}
	if start < 0 {
		start = 0
	}
	return start
}

// StatsPath returns the pass statistics file prefix for the video stream index.
func (r Request) StatsPath(opts Options, index int) string {
	dir := opts.StatsDir
	if dir == "" {
		dir = filepath.Dir(r.Output)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.v%d.passlog", filepath.Base(r.Output), index))
}

// BuildArgs synthesizes the ffmpeg arguments for one run.
func BuildArgs(req Request, opts Options, plan runPlan) ([]string, error) {
	if req.Source == "" {
		return nil, joberrors.Validation("encode", "source path is required")
	}
	if plan.pass != 1 && req.Output == "" {
		return nil, joberrors.Validation("encode", "output path is required")
	}

	args := []string{
		"-fflags", "+genpts",
		"-progress", "pipe:1",
		"-loglevel", "16",
		"-i", req.Source,
		"-y",
		"-c", "copy",
		"-map", "0",
	}

	if opts.TestMode {
		args = append(args,
			"-ss", formatSeconds(req.testWindowStart(opts)),
			"-t", formatSeconds(TestWindow))
	}

	for _, track := range req.Tracks {
		if !track.Copy || track.Encoder == nil {
			continue
		}
		switch track.Type {
		case types.TrackTypeVideo:
			videoArgs, err := videoEncoderArgs(req, opts, track, plan.pass)
			if err != nil {
				return nil, err
			}
			args = append(args, videoArgs...)
		case types.TrackTypeAudio:
			// Pass 1 only analyzes video.
			if plan.pass == 1 {
				continue
			}
			codec := track.Encoder.Codec
			if codec == "" {
				codec = encoderAAC
			}
			args = append(args, fmt.Sprintf("-c:a:%d", track.Index), codec)
			if track.Encoder.Bitrate > 0 {
				args = append(args, fmt.Sprintf("-b:a:%d", track.Index), strconv.FormatInt(track.Encoder.Bitrate, 10))
			}
		}
	}

	if plan.largeQueue {
		size := opts.MuxingQueueSize
		if size <= 0 {
			size = DefaultMuxingQueueSize
		}
		args = append(args, "-max_muxing_queue_size", strconv.Itoa(size))
	}

	if plan.pass == 1 {
		args = append(args, "-f", "null", os.DevNull)
	} else {
		args = append(args, req.Output)
	}
	return args, nil
}

func videoEncoderArgs(req Request, opts Options, track types.Track, pass int) ([]string, error) {
	encoder, err := videoEncoder(track.Encoder.Codec)
	if err != nil {
		return nil, err
	}
	n := track.Index
	args := []string{fmt.Sprintf("-c:v:%d", n), encoder}

	if pass > 0 && track.Encoder.Bitrate > 0 {
		stats := req.StatsPath(opts, n)
		switch encoder {
		case encoderX265:
			args = append(args, "-x265-params", fmt.Sprintf("pass=%d:stats=%s", pass, stats))
		case encoderX264:
			args = append(args,
				"-pass", strconv.Itoa(pass),
				"-passlogfile", stats,
				fmt.Sprintf("-profile:v:%d", n), "high",
				fmt.Sprintf("-preset:v:%d", n), "slow")
		}
	}
	if track.Encoder.Bitrate > 0 {
		args = append(args, fmt.Sprintf("-b:v:%d", n), strconv.FormatInt(track.Encoder.Bitrate, 10))
	}
	return args, nil
}

// videoEncoder maps codec names onto the two supported encoders.
func videoEncoder(codec string) (string, error) {
	switch strings.ToLower(codec) {
	case "", "h264", "avc", "x264", encoderX264:
		return encoderX264, nil
	case "h265", "hevc", "x265", encoderX265:
		return encoderX265, nil
	default:
		return "", joberrors.Validation("encode", fmt.Sprintf("unsupported video codec %q", codec))
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
