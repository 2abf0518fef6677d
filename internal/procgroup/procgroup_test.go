//go:build linux

package procgroup_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"vidgrab/internal/procgroup"
)

func TestRunCapturesOutput(t *testing.T) {
	res, err := procgroup.Run(context.Background(), procgroup.Options{
		Binary: "sh",
		Args:   []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("unexpected stderr %q", res.Stderr)
	}
}

func TestRunReportsExitCodeAndStderrTail(t *testing.T) {
	_, err := procgroup.Run(context.Background(), procgroup.Options{
		Binary: "sh",
		Args:   []string{"-c", "echo first >&2; echo 'last line' >&2; exit 3"},
	})
	var exitErr *procgroup.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 {
		t.Fatalf("expected exit code 3, got %d", exitErr.Code)
	}
	if !strings.Contains(err.Error(), "last line") {
		t.Fatalf("expected stderr tail in error, got %q", err.Error())
	}
}

func TestTimeoutKillsProcess(t *testing.T) {
	start := time.Now()
	_, err := procgroup.Run(context.Background(), procgroup.Options{
		Binary:    "sh",
		Args:      []string{"-c", "sleep 30"},
		Timeout:   200 * time.Millisecond,
		KillGrace: 200 * time.Millisecond,
	})
	if !errors.Is(err, procgroup.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestCancelLeavesNoRunningGroupMembers(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The shell ignores SIGTERM so the SIGKILL escalation path runs too.
	proc, err := procgroup.Start(ctx, procgroup.Options{
		Binary:    "sh",
		Args:      []string{"-c", "trap '' TERM; sleep 30 & echo $! > " + pidFile + "; wait"},
		KillGrace: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	childPID := waitForPID(t, pidFile)
	cancel()
	err = proc.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for _, pid := range []int{proc.PID(), childPID} {
		for running(pid) {
			if time.Now().After(deadline) {
				t.Fatalf("process %d still running after cancellation", pid)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
}

func TestStartRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := procgroup.Start(ctx, procgroup.Options{Binary: "true"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func waitForPID(t *testing.T, path string) int {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid > 0 {
				return pid
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pid file %s never written", path)
	return 0
}

// running reports whether pid exists and is not a zombie.
func running(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	stat := string(data)
	idx := strings.LastIndexByte(stat, ')')
	if idx < 0 || idx+2 >= len(stat) {
		return false
	}
	state := stat[idx+2]
	return state != 'Z' && state != 'X'
}
