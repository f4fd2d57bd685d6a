package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// MaintenanceService runs the periodic housekeeping of the workflow: reaping modifications the
// script never reported on, expiring abandoned ingest runs and purging expired sessions.
type MaintenanceService struct {
	Modifications *ModificationService
	Ingest        *IngestService
	Auth          *AuthService
	Log           *zap.Logger

	Interval          time.Duration
	ProcessingTimeout time.Duration
	RunTTL            time.Duration
}

type MaintenanceReport struct {
	Reaped         int   `json:"reaped"`
	ExpiredRuns    int   `json:"expired_runs"`
	PurgedSessions int64 `json:"purged_sessions"`
}

func NewMaintenanceService(mods *ModificationService, ingest *IngestService, auth *AuthService, log *zap.Logger) *MaintenanceService {
	return &MaintenanceService{Modifications: mods, Ingest: ingest, Auth: auth, Log: log}
}

// StartWatcher runs one pass immediately and then one per Interval until ctx is cancelled.
func (s *MaintenanceService) StartWatcher(ctx context.Context) {
	if s.Interval <= 0 {
		s.Log.Warn("maintenance watcher disabled", zap.Duration("interval", s.Interval))
		return
	}

	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		s.runLogged(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runLogged(ctx)
			}
		}
	}()
}

func (s *MaintenanceService) runLogged(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.Log.Error("maintenance pass failed", zap.Error(err))
		return
	}
	s.Log.Debug("maintenance pass done",
		zap.Int("reaped", report.Reaped),
		zap.Int("expired_runs", report.ExpiredRuns),
		zap.Int64("purged_sessions", report.PurgedSessions))
}

// RunOnce performs a single housekeeping pass. Each step is retried on its own.
func (s *MaintenanceService) RunOnce(ctx context.Context) (*MaintenanceReport, error) {
	var report MaintenanceReport

	if s.Modifications != nil && s.ProcessingTimeout > 0 {
		err := s.retry(ctx, 3, time.Second, func() error {
			n, err := s.Modifications.ReapStale(s.ProcessingTimeout)
			report.Reaped = n
			return err
		})
		if err != nil {
			return &report, fmt.Errorf("reaping modifications: %w", err)
		}
	}

	if s.Ingest != nil && s.RunTTL > 0 {
		err := s.retry(ctx, 3, time.Second, func() error {
			n, err := s.Ingest.ExpireStaleRuns(s.RunTTL)
			report.ExpiredRuns = n
			return err
		})
		if err != nil {
			return &report, fmt.Errorf("expiring ingest runs: %w", err)
		}
	}

	if s.Auth != nil {
		err := s.retry(ctx, 3, time.Second, func() error {
			n, err := s.Auth.PurgeExpiredSessions()
			report.PurgedSessions = n
			return err
		})
		if err != nil {
			return &report, fmt.Errorf("purging sessions: %w", err)
		}
	}
	return &report, nil
}

// retry runs f up to attempts times with exponential backoff.
func (s *MaintenanceService) retry(ctx context.Context, attempts int, sleep time.Duration, f func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = f(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		s.Log.Warn("maintenance step failed, retrying", zap.Error(err), zap.Duration("backoff", sleep))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep *= 2
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
