package inventory

// retention.go provides background retention for the import_sessions audit
// table. Finished sessions keep their full detail payload for a retention
// window, then get purged so the audit table cannot grow without bound.
//
// The sweeper is long-running and context-aware for graceful shutdown. It
// logs progress and errors but never fails the application when an
// individual sweep fails.

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionConfig holds configuration for the session retention sweeper.
// Zero values fall back to the defaults below.
type RetentionConfig struct {
	RetentionDays int           // Days to keep finished sessions (default: 90)
	SweepInterval time.Duration // How often to sweep (default: 24h)
}

const (
	defaultRetentionDays = 90
	defaultSweepInterval = 24 * time.Hour
)

// PurgeSessions deletes audit rows that finished before the cutoff and
// returns how many were removed.
func (s *PostgresStore) PurgeSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	const query = `DELETE FROM import_sessions WHERE finished_at < now() - $1::interval`

	tag, err := s.pool.Exec(ctx, query, fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StartRetentionSweeper runs the purge immediately, then every SweepInterval
// until the context is cancelled. Intended to be launched as a goroutine
// from main.
func (s *PostgresStore) StartRetentionSweeper(ctx context.Context, cfg RetentionConfig, log *slog.Logger) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if log == nil {
		log = slog.Default()
	}

	log.Info("session retention sweeper started",
		"retention_days", cfg.RetentionDays,
		"sweep_interval", cfg.SweepInterval.String(),
	)

	s.runSweep(ctx, cfg, log)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("session retention sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep(ctx, cfg, log)
		}
	}
}

func (s *PostgresStore) runSweep(ctx context.Context, cfg RetentionConfig, log *slog.Logger) {
	start := time.Now()
	purged, err := s.PurgeSessions(ctx, time.Duration(cfg.RetentionDays)*24*time.Hour)
	if err != nil {
		log.Error("session purge failed", "error", err)
		return
	}
	if purged > 0 {
		log.Info("purged finished import sessions",
			"sessions_purged", purged,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
