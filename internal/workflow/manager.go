package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vidgrab/internal/artifact"
	"vidgrab/internal/config"
	"vidgrab/internal/fetch"
	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/notifications"
	"vidgrab/internal/services"
	"vidgrab/internal/source"
	"vidgrab/internal/transcode"
)

// cleanupTimeout bounds registry writes and file removal that must still
// happen after a job's own context is gone.
const cleanupTimeout = 30 * time.Second

// capacityRetryAfter is the hint returned with CapacityExceededError.
const capacityRetryAfter = 30 * time.Second

var errShutdown = services.Wrap(services.ErrCanceled, "workflow", "shutdown", "service shutting down", nil)

// Components bundles the pipeline collaborators the manager drives.
type Components struct {
	Resolver   *source.Resolver
	Fetcher    *fetch.Fetcher
	Transcoder *transcode.Transcoder
	Artifacts  artifact.Store
	Notifier   notifications.Service
}

// Manager coordinates job admission, execution, cancellation, and cleanup.
type Manager struct {
	cfg        *config.Config
	store      *jobs.Store
	resolver   *source.Resolver
	fetcher    *fetch.Fetcher
	transcoder *transcode.Transcoder
	artifacts  artifact.Store
	notifier   notifications.Service
	target     transcode.Target
	logger     *slog.Logger
	now        func() time.Time
	keys       *keyLocks

	queueMu sync.Mutex
	pending []string
	wake    chan struct{}

	mu       sync.RWMutex
	running  bool
	stopped  bool
	runCtx   context.Context
	cancel   context.CancelCauseFunc
	wg       sync.WaitGroup
	active   map[string]*run
	changed  chan struct{}
	sweeper  *cron.Cron
	lastErr  error
	started  time.Time
	sweeping sync.Mutex
}

type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock overrides the time source used for retention decisions.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager. Start must be called before
// queued jobs are processed.
func NewManager(cfg *config.Config, store *jobs.Store, components Components, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:        cfg,
		store:      store,
		resolver:   components.Resolver,
		fetcher:    components.Fetcher,
		transcoder: components.Transcoder,
		artifacts:  components.Artifacts,
		notifier:   components.Notifier,
		target:     transcode.TargetFromConfig(cfg.Transcode),
		logger:     logging.NewComponentLogger(logger, "workflow"),
		now:        func() time.Time { return time.Now().UTC() },
		keys:       newKeyLocks(),
		wake:       make(chan struct{}, max(cfg.Jobs.Workers, 1)),
		active:     make(map[string]*run),
		changed:    make(chan struct{}),
	}
	if m.notifier == nil {
		m.notifier = notifications.NewService(nil)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Target returns the output format every job is transcoded to.
func (m *Manager) Target() transcode.Target {
	return m.target
}

// Start launches the worker pool and the retention sweeper.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if m.stopped {
		return errors.New("workflow already stopped")
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	sweeper, err := m.newSweeper(runCtx)
	if err != nil {
		cancel(nil)
		return err
	}
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.started = m.now()
	m.sweeper = sweeper

	workers := max(m.cfg.Jobs.Workers, 1)
	m.wg.Add(workers)
	for i := range workers {
		go m.worker(runCtx, i)
	}
	sweeper.Start()

	m.logger.Info("workflow started",
		logging.Int("workers", workers),
		logging.Int("capacity", m.cfg.Capacity()),
		logging.String("target", m.target.Key()),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop cancels running jobs, waits for their cleanup, and halts the
// sweeper. Jobs interrupted this way fail with CanceledError.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.stopped = true
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	sweeper := m.sweeper
	m.running = false
	m.stopped = true
	m.cancel = nil
	m.sweeper = nil
	m.mu.Unlock()

	cancel(errShutdown)
	<-sweeper.Stop().Done()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

func (m *Manager) enqueue(id string) {
	m.queueMu.Lock()
	m.pending = append(m.pending, id)
	m.queueMu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) dequeue() (string, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if len(m.pending) == 0 {
		return "", false
	}
	id := m.pending[0]
	m.pending = m.pending[1:]
	return id, true
}

// notifyChange wakes every Wait call so it can re-read job state.
func (m *Manager) notifyChange() {
	m.mu.Lock()
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

func (m *Manager) changeSignal() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changed
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) cleanupContext() (context.Context, context.CancelFunc) {
	m.mu.RLock()
	base := m.runCtx
	m.mu.RUnlock()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(base), cleanupTimeout)
}
