package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPriorityUnsupported is returned on hosts without a scheduling priority API.
var ErrPriorityUnsupported = errors.New("process priority not supported on this platform")

// Priority is an ordered OS scheduling priority scale, lowest first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityBelowNormal
	PriorityNormal
	PriorityAboveNormal
	PriorityHigh
)

var priorityNames = map[Priority]string{
	PriorityLow:         "low",
	PriorityBelowNormal: "below_normal",
	PriorityNormal:      "normal",
	PriorityAboveNormal: "above_normal",
	PriorityHigh:        "high",
}

// String returns the config name of the priority.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority parses a config name such as "below_normal".
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return PriorityNormal, fmt.Errorf("unknown priority %q", s)
}

// SetPriority applies p to the process identified by pid.
func SetPriority(pid int, p Priority) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	if _, ok := priorityNames[p]; !ok {
		return fmt.Errorf("invalid priority: %d", int(p))
	}
	return setPriority(pid, p)
}
