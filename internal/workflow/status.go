package workflow

import (
	"context"
	"time"

	"vidgrab/internal/jobs"
	"vidgrab/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	Workers    int
	Capacity   int
	ActiveJobs int
	// InFlight counts jobs currently held by a worker in this process.
	InFlight  int
	Uptime    time.Duration
	LastError string
	JobStats  map[jobs.Status]int
}

// Status returns the latest workflow information. It has no side effects.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		Workers:  max(m.cfg.Jobs.Workers, 1),
		Capacity: m.cfg.Capacity(),
		InFlight: len(m.active),
	}
	if m.running {
		summary.Uptime = m.now().Sub(m.started)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats
	for status, count := range stats {
		if status.IsActive() {
			summary.ActiveJobs += count
		}
	}
	return summary
}
