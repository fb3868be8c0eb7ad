package cleanup

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "cleanup",
}

// Pruner löscht Journal-Einträge vor einem Stichtag
type Pruner interface {
	DeleteCommitsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service handles the automatic cleanup of old commit journal rows.
type Service struct {
	pruner        Pruner
	retentionDays int
	checkInterval time.Duration
	now           func() time.Time
	started       atomic.Bool
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// NewService creates a new cleanup service. It returns nil when cleanup is
// disabled; all methods are safe to call on a nil service.
func NewService(pruner Pruner, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.WithFields(logFields).Info("Automatic cleanup disabled (retention_days <= 0).")
		return nil
	}
	if pruner == nil {
		log.WithFields(logFields).Error("Cannot initialize cleanup service: no journal")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = 24 * time.Hour
	}
	log.WithFields(logFields).Infof("Initializing cleanup service: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		pruner:        pruner,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		now:           time.Now,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup runs one cycle immediately and then one per interval.
func (s *Service) StartBackgroundCleanup(ctx context.Context) {
	if s == nil || !s.started.CompareAndSwap(false, true) {
		return
	}
	log.WithFields(logFields).Info("Starting background cleanup routine...")

	go func() {
		defer close(s.doneChan)
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		s.RunCleanupCycle(ctx)
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle(ctx)
			case <-ctx.Done():
				return
			case <-s.stopChan:
				log.WithFields(logFields).Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop and waits for it.
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
	if s.started.Load() {
		<-s.doneChan
	}
}

// RunCleanupCycle deletes journal rows older than the retention period.
func (s *Service) RunCleanupCycle(ctx context.Context) int64 {
	if s == nil {
		return 0
	}
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.pruner.DeleteCommitsBefore(ctx, cutoff)
	if err != nil {
		log.WithFields(logFields).Errorf("Cleanup: failed to prune journal before %s: %v", cutoff.Format(time.RFC3339), err)
		return 0
	}
	if deleted > 0 {
		log.WithFields(logFields).Infof("Cleanup: deleted %d commit record(s) older than %s", deleted, cutoff.Format(time.RFC3339))
	} else {
		log.WithFields(logFields).Debug("Cleanup: nothing to delete")
	}
	return deleted
}
