//go:build !unix && !windows

package process

func setPriority(pid int, p Priority) error {
	return ErrPriorityUnsupported
}
