//go:build unix

package process

import "golang.org/x/sys/unix"

// Nice values per priority. Raising above normal usually needs privileges.
var niceValues = map[Priority]int{
	PriorityLow:         19,
	PriorityBelowNormal: 10,
	PriorityNormal:      0,
	PriorityAboveNormal: -5,
	PriorityHigh:        -10,
}

func setPriority(pid int, p Priority) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, niceValues[p])
}
