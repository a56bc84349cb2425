// Package process provides control over external processes spawned by the
// command drivers: suspend/resume for pausing, termination for aborts and
// OS scheduling priority.
//
// Suspension goes through gopsutil, which sends SIGSTOP/SIGCONT on Unix and
// uses NtSuspendProcess/NtResumeProcess on Windows where no stop signal exists.
package process

import (
	"fmt"

	psprocess "github.com/shirou/gopsutil/v4/process"
)

// Controller sends control requests to a process by PID.
type Controller interface {
	Suspend(pid int) error
	Resume(pid int) error
	Terminate(pid int) error
	SetPriority(pid int, p Priority) error
}

// OSController controls real host processes.
type OSController struct{}

// NewOSController returns the host controller.
func NewOSController() *OSController {
	return &OSController{}
}

func (OSController) lookup(pid int) (*psprocess.Process, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid PID: %d", pid)
	}
	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("process %d not found: %w", pid, err)
	}
	return p, nil
}

// Suspend stops the process.
func (c OSController) Suspend(pid int) error {
	p, err := c.lookup(pid)
	if err != nil {
		return err
	}
	return p.Suspend()
}

// Resume continues a stopped process.
func (c OSController) Resume(pid int) error {
	p, err := c.lookup(pid)
	if err != nil {
		return err
	}
	return p.Resume()
}

// Terminate asks the process to exit. A process that is already gone needs
// no termination and yields no error.
func (c OSController) Terminate(pid int) error {
	if pid > 0 && !IsAlive(pid) {
		return nil
	}
	p, err := c.lookup(pid)
	if err != nil {
		return err
	}
	return p.Terminate()
}

// SetPriority applies the scheduling priority.
func (OSController) SetPriority(pid int, p Priority) error {
	return SetPriority(pid, p)
}

// IsAlive reports whether a process with the given PID exists and is running.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	return err == nil && running
}
