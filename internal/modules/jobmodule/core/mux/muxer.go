// Package mux drives mkvmerge: container identification (probe) and
// property-editing remuxes with per-type track exclusion.
package mux

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/command"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

// DefaultUILanguage is passed to --ui-language so output stays parseable.
const DefaultUILanguage = "en_US"

var (
	progressPattern = regexp.MustCompile(`Progress: (\d+)%`)
	errorPattern    = regexp.MustCompile(`Error: (.*)`)
	warningPattern  = regexp.MustCompile(`Warning: (.*)`)
	writingPattern  = regexp.MustCompile(`The file '(.+)' has been opened for writing`)
)

// ProgressFunc receives progress updates while a remux is active.
type ProgressFunc func(types.Progression)

// Muxer runs mkvmerge.
type Muxer struct {
	driver     *command.Driver
	uiLanguage string
	logger     hclog.Logger
}

// NewDriver returns the command driver configured for mkvmerge. Exit code 1
// means the run completed with warnings and counts as success.
func NewDriver(path string, controller process.Controller, priority command.PriorityFunc, logger hclog.Logger) *command.Driver {
	return command.NewDriver(command.Config{
		Name:           "mkvmerge",
		Path:           path,
		SuccessCodes:   []int{0, 1},
		VersionArgs:    []string{"--version"},
		VersionPattern: regexp.MustCompile(`mkvmerge v(\S+)`),
	}, controller, priority, logger)
}

// NewMuxer wraps an mkvmerge driver.
func NewMuxer(driver *command.Driver, uiLanguage string, logger hclog.Logger) *Muxer {
	if uiLanguage == "" {
		uiLanguage = DefaultUILanguage
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Muxer{driver: driver, uiLanguage: uiLanguage, logger: logger.Named("muxer")}
}

// Driver exposes the underlying command driver.
func (m *Muxer) Driver() *command.Driver {
	return m.driver
}

// Version returns the mkvmerge version.
func (m *Muxer) Version(ctx context.Context) (string, error) {
	return m.driver.Version(ctx)
}

// Probe identifies path and returns the decoded document. Malformed output
// fails with the raw text as the message.
func (m *Muxer) Probe(ctx context.Context, path string) (*FileInfo, error) {
	if path == "" {
		return nil, joberrors.Validation("probe", "path is required")
	}

	var raw bytes.Buffer
	_, err := m.driver.Execute(ctx, []string{"-J", path, "--ui-language", m.uiLanguage},
		func(stdout, stderr string, _ *process.Handle) command.Response {
			if stdout != "" {
				raw.WriteString(stdout)
				raw.WriteByte('\n')
				return command.Response{}
			}
			return command.Response{Err: stderr}
		})
	if err != nil {
		if msg := identificationError(raw.Bytes()); msg != "" && !joberrors.IsAborted(err) {
			return nil, joberrors.New(joberrors.ErrorTypeCommand, "probe", errors.New(msg))
		}
		return nil, err
	}

	var info FileInfo
	if err := json.Unmarshal(raw.Bytes(), &info); err != nil {
		return nil, joberrors.MalformedOutput(strings.TrimSpace(raw.String()), err)
	}
	for _, w := range info.Warnings {
		m.logger.Warn("probe warning", "path", path, "warning", w)
	}

	tags, err := readEmbeddedTags(path)
	if err != nil {
		m.logger.Debug("no embedded tags read", "path", path, "error", err)
	}
	info.Tags = tags
	return &info, nil
}

// Remux writes req.Output from req.Source with req.Changes applied and
// returns the output path mkvmerge reports, or req.Output when it reports none.
func (m *Muxer) Remux(ctx context.Context, req RemuxRequest, report ProgressFunc) (string, error) {
	if report == nil {
		report = func(types.Progression) {}
	}
	args, err := BuildRemuxArgs(req, m.uiLanguage)
	if err != nil {
		return "", err
	}

	written, err := m.driver.Execute(ctx, args, func(stdout, stderr string, h *process.Handle) command.Response {
		line := stdout
		if line == "" {
			line = stderr
		}
		if match := progressPattern.FindStringSubmatch(line); match != nil {
			n, _ := strconv.Atoi(match[1])
			report(types.Progression{Progress: float64(n) / 100, Process: h})
			return command.Response{}
		}
		if match := errorPattern.FindStringSubmatch(line); match != nil {
			return command.Response{Err: match[1]}
		}
		if match := warningPattern.FindStringSubmatch(line); match != nil {
			m.logger.Warn("remux warning", "source", req.Source, "warning", match[1])
			return command.Response{}
		}
		if match := writingPattern.FindStringSubmatch(stdout); match != nil {
			return command.Response{Text: match[1]}
		}
		if stdout != "" {
			m.logger.Trace("mkvmerge output", "line", stdout)
		}
		return command.Response{}
	})
	if err != nil {
		return "", err
	}
	if written != "" {
		return written, nil
	}
	return req.Output, nil
}

// identificationError extracts the first error from an identification
// document, if the output is one.
func identificationError(raw []byte) string {
	var doc struct {
		Errors []string `json:"errors"`
	}
	if json.Unmarshal(raw, &doc) != nil || len(doc.Errors) == 0 {
		return ""
	}
	return doc.Errors[0]
}
