//go:build linux

package procgroup

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}

func applyLimits(pid, cpuSeconds int) error {
	if cpuSeconds <= 0 {
		return nil
	}
	limit := unix.Rlimit{Cur: uint64(cpuSeconds), Max: uint64(cpuSeconds) + 10}
	return unix.Prlimit(pid, unix.RLIMIT_CPU, &limit, nil)
}
