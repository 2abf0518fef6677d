//go:build unix && !linux

package procgroup

import "syscall"

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// CPU limits need prlimit(2); other platforms rely on the wall-clock timeout.
func applyLimits(int, int) error {
	return nil
}
