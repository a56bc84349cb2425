package process

import (
	"fmt"
	"sync"
)

// Handle is a non-owning reference to a running process. The command driver
// that spawned the process owns its lifecycle; holders of a Handle may only
// send control requests through it.
type Handle struct {
	pid int
	ctl Controller

	mu        sync.Mutex
	suspended bool
	exited    bool
}

// NewHandle wraps pid with the given controller.
func NewHandle(pid int, ctl Controller) *Handle {
	return &Handle{pid: pid, ctl: ctl}
}

// PID returns the process id.
func (h *Handle) PID() int {
	return h.pid
}

// Suspended reports whether the process is currently stopped through this handle.
func (h *Handle) Suspended() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.suspended
}

// Suspend stops the process. Suspending twice is a no-op.
func (h *Handle) Suspend() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return fmt.Errorf("process %d has exited", h.pid)
	}
	if h.suspended {
		return nil
	}
	if err := h.ctl.Suspend(h.pid); err != nil {
		return fmt.Errorf("failed to suspend process %d: %w", h.pid, err)
	}
	h.suspended = true
	return nil
}

// Resume continues the process. Resuming a running process is a no-op.
func (h *Handle) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resumeLocked()
}

func (h *Handle) resumeLocked() error {
	if h.exited || !h.suspended {
		return nil
	}
	if err := h.ctl.Resume(h.pid); err != nil {
		return fmt.Errorf("failed to resume process %d: %w", h.pid, err)
	}
	h.suspended = false
	return nil
}

// Terminate asks the process to exit. A stopped process is continued first so
// it can handle the signal.
func (h *Handle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return nil
	}
	if err := h.resumeLocked(); err != nil {
		return err
	}
	if err := h.ctl.Terminate(h.pid); err != nil {
		return fmt.Errorf("failed to terminate process %d: %w", h.pid, err)
	}
	return nil
}

// SetPriority applies an OS scheduling priority.
func (h *Handle) SetPriority(p Priority) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return nil
	}
	return h.ctl.SetPriority(h.pid, p)
}

// MarkExited is called by the owning driver once the process has been reaped.
// Later control requests become no-ops.
func (h *Handle) MarkExited() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exited = true
	h.suspended = false
}
