package transcode

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/command"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

// DefaultSnapshotQuality is the WebP quality used when none is configured.
const DefaultSnapshotQuality = 80

// GrabRequest describes one snapshot.
type GrabRequest struct {
	Source string
	// Output is the .webp file to write.
	Output string
	At     time.Duration
	// Quality is the WebP quality 1..100; 100 writes lossless.
	Quality int
}

// GrabArgs returns the ffmpeg arguments extracting one PNG frame.
func GrabArgs(req GrabRequest, framePath string) []string {
	return []string{
		"-loglevel", "16",
		"-ss", formatSeconds(req.At),
		"-i", req.Source,
		"-frames:v", "1",
		"-an", "-sn",
		"-f", "image2",
		"-c:v", "png",
		"-y", framePath,
	}
}

// Grab extracts the frame at req.At and stores it as WebP.
func (t *Transcoder) Grab(ctx context.Context, req GrabRequest, report ProgressFunc) (string, error) {
	if req.Source == "" || req.Output == "" {
		return "", joberrors.Validation("grab", "source and output paths are required")
	}
	if report == nil {
		report = func(types.Progression) {}
	}

	framePath := strings.TrimSuffix(req.Output, filepath.Ext(req.Output)) + ".grab.png"
	defer os.Remove(framePath)

	_, err := t.driver.Execute(ctx, GrabArgs(req, framePath), func(stdout, stderr string, h *process.Handle) command.Response {
		report(types.Progression{Progress: types.ProgressIndeterminate, Process: h})
		if stderr != "" {
			return command.Response{Err: stderr}
		}
		return command.Response{}
	})
	if err != nil {
		return "", err
	}

	if err := encodeWebP(framePath, req.Output, req.Quality); err != nil {
		return "", joberrors.New(joberrors.ErrorTypeOutput, "grab", err)
	}
	report(types.Progression{Progress: 1})
	return req.Output, nil
}

func encodeWebP(framePath, output string, quality int) error {
	data, err := os.ReadFile(framePath)
	if err != nil {
		return fmt.Errorf("failed to read extracted frame: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode extracted frame: %w", err)
	}

	if quality <= 0 {
		quality = DefaultSnapshotQuality
	}
	if quality > 100 {
		quality = 100
	}
	options := &webp.Options{Quality: float32(quality)}
	if quality == 100 {
		options = &webp.Options{Lossless: true}
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return fmt.Errorf("failed to encode as WebP: %w", err)
	}
	return os.WriteFile(output, buf.Bytes(), 0o644)
}
