package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vidgrab/internal/config"
	"vidgrab/internal/daemon"
	"vidgrab/internal/deps"
	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
	"vidgrab/internal/preflight"
	"vidgrab/internal/workflow"
)

// shutdownTimeout bounds how long in-flight downloads may drain on exit.
const shutdownTimeout = 15 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	Bind     string
}

// Run starts the vidgrab daemon and blocks until SIGINT/SIGTERM, cmdCtx
// cancellation, or an HTTP listener failure.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if bind := strings.TrimSpace(opts.Bind); bind != "" {
		cfg.Server.Bind = bind
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, logPath, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if logPath != "" {
		if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to update vidgrab.log link: %v\n", err)
		}
		logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "vidgrab-*.log", logPath)
	}

	if err := runPreflight(signalCtx, cfg, logger); err != nil {
		return err
	}
	dependencies := preflight.CheckSystemDeps(cfg)
	logDependencySnapshot(logger, cfg, dependencies)

	pidPath := filepath.Join(cfg.Paths.DataDir, "vidgrab.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}

	components, err := workflow.NewComponents(signalCtx, cfg, logging.NewComponentLogger(logger, "pipeline"))
	if err != nil {
		store.Close()
		return fmt.Errorf("build pipeline: %w", err)
	}
	manager := workflow.NewManager(cfg, store, components, logging.NewComponentLogger(logger, "workflow"))

	d, err := daemon.New(cfg, store, manager, dependencies, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.Close(ctx); err != nil {
			logger.Warn("close job store", logging.Error(err))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check server.bind, the data directory lock, and job database access"),
		)
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("vidgrab daemon shutting down")
		return nil
	case err := <-d.Errors():
		logger.Error("http server failed", logging.Error(err), logging.String(logging.FieldEventType, "server_failed"))
		return fmt.Errorf("http server: %w", err)
	}
}

// runPreflight fails startup when a directory the pipeline writes to is
// unusable or the work disk is below jobs.min_free_mib.
func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range results {
		logger.Debug("preflight check",
			logging.String("check", result.Name),
			logging.Bool("passed", result.Passed),
			logging.String("detail", result.Detail),
		)
	}
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, result := range failed {
		names = append(names, result.Name+" ("+result.Detail+")")
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or free disk space, then restart"),
		)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "vidgrab.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, statuses []deps.Status) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("resolver_backend", cfg.Resolver.Backend),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.String("retention_policy", cfg.Jobs.RetentionPolicy),
		logging.Int("workers", cfg.Jobs.Workers),
	}
	for _, status := range statuses {
		key := strings.ToLower(strings.ReplaceAll(status.Name, " ", "_"))
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("command", missing.Command),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install it or set its binary path in the config"),
			logging.String(logging.FieldImpact, "jobs will fail at the step that needs it"),
		)
	}
}
