// Package command provides the base driver that spawns one external tool,
// streams its output through a tool-specific interpreter and maps the exit
// status onto the job outcome model (success, aborted, error).
package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
)

// Response is what an interpreter extracted from one output line.
type Response struct {
	// Text is the decoded payload. The last non-empty Text becomes the result.
	Text string
	// Err is a diagnostic. The first non-empty Err becomes the failure message.
	Err string
}

// Interpreter decodes one line of stdout or stderr (exactly one of the two is
// non-empty). It is never called concurrently for the same execution.
type Interpreter func(stdout, stderr string, h *process.Handle) Response

// PriorityFunc returns the scheduling priority to apply to spawned processes.
type PriorityFunc func() process.Priority

// Config describes one external tool.
type Config struct {
	// Name is used in logs and messages ("ffmpeg", "mkvmerge").
	Name string
	// Path is the executable, absolute or resolved through PATH.
	Path string
	// SuccessCodes are the exit codes treated as success. Defaults to {0}.
	SuccessCodes []int
	// AbortCodes are exit codes the tool uses when it was interrupted.
	AbortCodes []int
	// VersionArgs and VersionPattern enable Version. The pattern's first
	// submatch is the version token.
	VersionArgs    []string
	VersionPattern *regexp.Regexp
}

// Driver runs a configured tool.
type Driver struct {
	cfg        Config
	controller process.Controller
	priority   PriorityFunc
	logger     hclog.Logger
}

// NewDriver creates a driver. priority may be nil to leave the OS default.
func NewDriver(cfg Config, controller process.Controller, priority PriorityFunc, logger hclog.Logger) *Driver {
	if len(cfg.SuccessCodes) == 0 {
		cfg.SuccessCodes = []int{0}
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Path
	}
	if controller == nil {
		controller = process.NewOSController()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Driver{
		cfg:        cfg,
		controller: controller,
		priority:   priority,
		logger:     logger.Named(cfg.Name),
	}
}

// Name returns the tool name.
func (d *Driver) Name() string {
	return d.cfg.Name
}

// Path returns the configured executable path.
func (d *Driver) Path() string {
	return d.cfg.Path
}

// Logger returns the driver's named logger.
func (d *Driver) Logger() hclog.Logger {
	return d.logger
}

// Priority returns the priority currently configured for new processes.
func (d *Driver) Priority() (process.Priority, bool) {
	if d.priority == nil {
		return process.PriorityNormal, false
	}
	return d.priority(), true
}

// Execute runs the tool with args and blocks until it exits.
//
// Cancelling ctx terminates the process; the call then fails with an aborted
// error. A success exit returns the last non-empty response text; any other
// exit returns the first diagnostic the interpreter reported.
func (d *Driver) Execute(ctx context.Context, args []string, interpret Interpreter) (string, error) {
	if ctx.Err() != nil {
		return "", joberrors.Aborted(d.cfg.Name)
	}

	cmd := exec.Command(d.cfg.Path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", joberrors.New(joberrors.ErrorTypeSpawn, d.cfg.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", joberrors.New(joberrors.ErrorTypeSpawn, d.cfg.Name, err)
	}

	d.logger.Debug("starting command", "path", d.cfg.Path, "args", strings.Join(args, " "))
	started := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", joberrors.CommandNotFound(d.cfg.Path, err)
		}
		return "", joberrors.New(joberrors.ErrorTypeSpawn, d.cfg.Name, err)
	}

	handle := process.NewHandle(cmd.Process.Pid, d.controller)
	d.applyPriority(handle)

	var (
		mu       sync.Mutex
		response string
		firstErr string
	)
	deliver := func(out, errLine string) {
		mu.Lock()
		defer mu.Unlock()
		if interpret == nil {
			return
		}
		r := interpret(out, errLine, handle)
		if r.Text != "" {
			response = r.Text
		}
		if r.Err != "" && firstErr == "" {
			firstErr = r.Err
		}
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		d.readLines(stdout, func(line string) { deliver(line, "") })
	}()
	go func() {
		defer readers.Done()
		d.readLines(stderr, func(line string) { deliver("", line) })
	}()

	exited := make(chan struct{})
	cancelled := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			close(cancelled)
			if err := handle.Terminate(); err != nil {
				d.logger.Warn("failed to terminate process", "pid", handle.PID(), "error", err)
			}
		case <-exited:
		}
	}()

	readers.Wait()
	waitErr := cmd.Wait()
	close(exited)
	handle.MarkExited()

	code, signal := exitStatus(cmd, waitErr)
	d.logger.Debug("command exited",
		"pid", handle.PID(),
		"exit_code", code,
		"signal", signal,
		"elapsed", time.Since(started))

	wasCancelled := false
	select {
	case <-cancelled:
		wasCancelled = true
	default:
	}

	switch {
	case isCancelSignal(signal), containsCode(d.cfg.AbortCodes, code):
		return "", joberrors.Aborted(d.cfg.Name)
	case containsCode(d.cfg.SuccessCodes, code) && signal == nil:
		return response, nil
	case wasCancelled:
		// Hosts without signals report a plain failure code for a terminated process.
		return "", joberrors.Aborted(d.cfg.Name)
	}

	if firstErr == "" && waitErr != nil && code < 0 && signal == nil {
		firstErr = waitErr.Error()
	}
	d.logger.Warn("command failed", "exit_code", code, "error", firstErr)
	return "", joberrors.CommandFailed(d.cfg.Name, code, firstErr)
}

// Version runs the tool with its version arguments and extracts the version token.
func (d *Driver) Version(ctx context.Context) (string, error) {
	if d.cfg.VersionPattern == nil || len(d.cfg.VersionArgs) == 0 {
		return "", joberrors.NotSupported(d.cfg.Name, "version")
	}
	var raw bytes.Buffer
	version, err := d.Execute(ctx, d.cfg.VersionArgs, func(stdout, stderr string, _ *process.Handle) Response {
		line := stdout + stderr
		if raw.Len() < 4096 {
			raw.WriteString(line)
			raw.WriteByte('\n')
		}
		if m := d.cfg.VersionPattern.FindStringSubmatch(line); len(m) > 1 {
			return Response{Text: m[1]}
		}
		return Response{}
	})
	if err != nil {
		return "", err
	}
	if version == "" {
		return "", joberrors.MalformedOutput(strings.TrimSpace(raw.String()), errors.New("version not found"))
	}
	return version, nil
}

// ApplyPriority re-applies the configured priority to a running process.
func (d *Driver) ApplyPriority(h *process.Handle) {
	if h != nil {
		d.applyPriority(h)
	}
}

func (d *Driver) applyPriority(h *process.Handle) {
	if d.priority == nil {
		return
	}
	p := d.priority()
	if err := h.SetPriority(p); err != nil {
		// Restricted hosts deny priority changes; the process keeps running as is.
		d.logger.Debug("priority not applied", "pid", h.PID(), "priority", p.String(), "error", err)
	}
}

func (d *Driver) readLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t")
		if line == "" {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		d.logger.Error("error reading command output", "error", err)
		// Drain so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

// scanLines splits on \n, \r\n and bare \r, since tools redraw progress lines with \r.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if !atEOF {
				// Need one more byte to know whether this is \r\n.
				return 0, nil, nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func exitStatus(cmd *exec.Cmd, waitErr error) (int, *syscall.Signal) {
	state := cmd.ProcessState
	if state == nil {
		return -1, nil
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal()
		return -1, &sig
	}
	return state.ExitCode(), nil
}

func isCancelSignal(sig *syscall.Signal) bool {
	if sig == nil {
		return false
	}
	switch *sig {
	case syscall.SIGTERM, syscall.SIGKILL, syscall.SIGINT:
		return true
	default:
		return false
	}
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
