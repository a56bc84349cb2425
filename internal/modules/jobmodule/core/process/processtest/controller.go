// Package processtest provides a recording process.Controller for tests.
package processtest

import (
	"fmt"
	"sync"

	"github.com/mantonx/remuxer/internal/modules/jobmodule/core/process"
)

// Call is one recorded control request.
type Call struct {
	Op       string
	PID      int
	Priority process.Priority
}

// Controller records every request instead of touching real processes.
// Set Err to make all requests fail.
type Controller struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

// NewController returns an empty recording controller.
func NewController() *Controller {
	return &Controller{}
}

func (c *Controller) record(call Call) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if c.Err != nil {
		return fmt.Errorf("%s %d: %w", call.Op, call.PID, c.Err)
	}
	return nil
}

func (c *Controller) Suspend(pid int) error   { return c.record(Call{Op: "suspend", PID: pid}) }
func (c *Controller) Resume(pid int) error    { return c.record(Call{Op: "resume", PID: pid}) }
func (c *Controller) Terminate(pid int) error { return c.record(Call{Op: "terminate", PID: pid}) }

func (c *Controller) SetPriority(pid int, p process.Priority) error {
	return c.record(Call{Op: "priority", PID: pid, Priority: p})
}

// Calls returns a copy of the recorded requests.
func (c *Controller) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Ops returns the recorded operation names for pid, in order.
func (c *Controller) Ops(pid int) []string {
	var ops []string
	for _, call := range c.Calls() {
		if call.PID == pid {
			ops = append(ops, call.Op)
		}
	}
	return ops
}
