package procgroup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	defaultKillGrace   = 5 * time.Second
	defaultStderrLimit = 64 * 1024
	defaultStdoutLimit = 32 * 1024 * 1024
)

var (
	// ErrTimeout reports that the process exceeded its wall-clock budget.
	ErrTimeout = errors.New("process timed out")
	// ErrCPULimit reports that the process exceeded its CPU-time budget.
	ErrCPULimit = errors.New("process exceeded cpu limit")
)

// Options describes a supervised process.
type Options struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
	// Stdout receives standard output. Run captures it when nil.
	Stdout io.Writer
	// Timeout bounds wall-clock time; zero disables.
	Timeout time.Duration
	// KillGrace is the delay between SIGTERM and SIGKILL.
	KillGrace time.Duration
	// CPUSeconds applies RLIMIT_CPU where supported; zero disables.
	CPUSeconds int
	// StderrLimit caps the retained stderr tail.
	StderrLimit int
}

// ExitError describes a process that exited unsuccessfully on its own.
type ExitError struct {
	Binary string
	Code   int
	Signal string
	Stderr string
}

func (e *ExitError) Error() string {
	var b strings.Builder
	b.WriteString(e.Binary)
	if e.Signal != "" {
		b.WriteString(" killed by ")
		b.WriteString(e.Signal)
	} else {
		fmt.Fprintf(&b, " exited with status %d", e.Code)
	}
	if tail := lastLine(e.Stderr); tail != "" {
		b.WriteString(": ")
		b.WriteString(tail)
	}
	return b.String()
}

// Process is a running command whose whole process group is owned by the
// caller until Wait returns.
type Process struct {
	ctx    context.Context
	cmd    *exec.Cmd
	opts   Options
	stderr *tailBuffer

	done    chan struct{}
	waitErr error
	once    sync.Once
	result  error
}

// Start launches the process in a new process group.
func Start(ctx context.Context, opts Options) (*Process, error) {
	if strings.TrimSpace(opts.Binary) == "" {
		return nil, errors.New("procgroup: binary is required")
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaultKillGrace
	}
	if opts.StderrLimit <= 0 {
		opts.StderrLimit = defaultStderrLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	cmd := exec.Command(opts.Binary, opts.Args...) //nolint:gosec // binaries come from validated config
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}
	cmd.Stdout = opts.Stdout
	stderr := newTailBuffer(opts.StderrLimit)
	cmd.Stderr = stderr
	cmd.SysProcAttr = sysProcAttr()
	// Grandchildren may keep the output pipes open after the leader exits.
	cmd.WaitDelay = opts.KillGrace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Binary, err)
	}

	p := &Process{ctx: ctx, cmd: cmd, opts: opts, stderr: stderr, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	if err := applyLimits(cmd.Process.Pid, opts.CPUSeconds); err != nil {
		p.terminate()
		p.signalGroup(unix.SIGKILL)
		return nil, fmt.Errorf("apply limits to %s: %w", opts.Binary, err)
	}
	return p, nil
}

// PID returns the process (and process group) identifier.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Stderr returns the retained tail of standard error.
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Wait blocks until the process exits, the context ends, or the timeout
// elapses. Whatever the outcome, every member of the process group has been
// signalled with SIGKILL before Wait returns.
func (p *Process) Wait() error {
	p.once.Do(func() {
		p.result = p.wait()
	})
	return p.result
}

func (p *Process) wait() error {
	var timeout <-chan time.Time
	if p.opts.Timeout > 0 {
		timer := time.NewTimer(p.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var reason error
	select {
	case <-p.done:
	case <-p.ctx.Done():
		reason = context.Cause(p.ctx)
		p.terminate()
	case <-timeout:
		reason = ErrTimeout
		p.terminate()
	}
	p.signalGroup(unix.SIGKILL)

	if reason != nil {
		return fmt.Errorf("%s: %w", p.opts.Binary, reason)
	}
	return p.exitError()
}

func (p *Process) exitError() error {
	if p.waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if !errors.As(p.waitErr, &exitErr) {
		if errors.Is(p.waitErr, exec.ErrWaitDelay) {
			return nil
		}
		return fmt.Errorf("%s: %w", p.opts.Binary, p.waitErr)
	}
	result := &ExitError{Binary: p.opts.Binary, Code: exitErr.ExitCode(), Stderr: p.stderr.String()}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		result.Signal = status.Signal().String()
		if status.Signal() == syscall.SIGXCPU {
			return fmt.Errorf("%w: %w", ErrCPULimit, result)
		}
	}
	return result
}

func (p *Process) terminate() {
	p.signalGroup(unix.SIGTERM)
	timer := time.NewTimer(p.opts.KillGrace)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		p.signalGroup(unix.SIGKILL)
		<-p.done
	}
}

func (p *Process) signalGroup(sig syscall.Signal) {
	pid := p.cmd.Process.Pid
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, sig)
}

// Result carries captured output from Run.
type Result struct {
	Stdout []byte
	Stderr string
}

// Run starts the process, captures its output, and waits for it.
func Run(ctx context.Context, opts Options) (Result, error) {
	var stdout *limitedBuffer
	if opts.Stdout == nil {
		stdout = &limitedBuffer{limit: defaultStdoutLimit}
		opts.Stdout = stdout
	}
	proc, err := Start(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	err = proc.Wait()
	res := Result{Stderr: proc.Stderr()}
	if stdout != nil {
		res.Stdout = stdout.Bytes()
		if stdout.overflow && err == nil {
			err = fmt.Errorf("%s: output exceeded %d bytes", opts.Binary, stdout.limit)
		}
	}
	return res, err
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(s)
}
