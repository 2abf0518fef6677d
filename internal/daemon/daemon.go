package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vidgrab/internal/config"
	"vidgrab/internal/deps"
	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/server"
	"vidgrab/internal/workflow"
)

// Daemon ties the job manager and the HTTP server into one lifecycle and
// enforces single-instance execution per data directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *jobs.Store
	manager *workflow.Manager
	server  *server.Server

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	running  atomic.Bool
	listener net.Listener
	serveErr chan error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	DatabasePath string
	LockFilePath string
	Workflow     workflow.StatusSummary
}

// New constructs a daemon. dependencies is the startup dependency report
// served by the health endpoint.
func New(cfg *config.Config, store *jobs.Store, manager *workflow.Manager, dependencies []deps.Status, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		manager:  manager,
		server:   server.New(cfg, manager, dependencies, logging.NewComponentLogger(logger, "server")),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		serveErr: make(chan error, 1),
	}, nil
}

// Start acquires the instance lock, fails jobs interrupted by a previous
// process, starts the workers and begins serving HTTP on server.bind.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another vidgrab instance holds %s", d.lockPath)
	}

	if _, err := d.manager.Recover(ctx); err != nil {
		d.unlock()
		return err
	}
	if err := d.manager.Start(ctx); err != nil {
		d.unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	listener, err := net.Listen("tcp", d.cfg.Server.Bind)
	if err != nil {
		d.manager.Stop()
		d.unlock()
		return fmt.Errorf("listen on %s: %w", d.cfg.Server.Bind, err)
	}
	d.listener = listener
	go func() {
		if err := d.server.Serve(listener); err != nil {
			d.serveErr <- err
		}
	}()

	d.running.Store(true)
	d.logger.Info("vidgrab daemon started",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Errors reports a failure of the HTTP listener after Start.
func (d *Daemon) Errors() <-chan error {
	return d.serveErr
}

// Addr returns the bound listen address, or an empty string before Start.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Stop drains HTTP requests until ctx ends, cancels running jobs and releases
// the instance lock.
func (d *Daemon) Stop(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if err := d.server.Shutdown(ctx); err != nil {
		logging.WarnWithContext(d.logger, "http shutdown incomplete", "server_shutdown_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "in-flight downloads were cut off"),
		)
	}
	d.manager.Stop()
	d.unlock()
	d.listener = nil
	d.running.Store(false)
	d.logger.Info("vidgrab daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the job store.
func (d *Daemon) Close(ctx context.Context) error {
	d.Stop(ctx)
	return d.store.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.Addr(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Workflow:     d.manager.Status(ctx),
	}
}

func (d *Daemon) unlock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
