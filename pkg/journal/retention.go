package journal

import (
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cuemby/sitekeeper/pkg/metrics"
)

// RetentionSweeper prunes archived MasterAction directories older than a
// configured horizon. Adapted from the teacher's background-goroutine
// maintenance loops (pkg/reconciler), but driven by a cron schedule since
// retention is a daily cadence rather than a liveness check.
type RetentionSweeper struct {
	j         *Journal
	retention time.Duration
	cron      *cron.Cron
}

// NewRetentionSweeper builds a sweeper that runs on schedule (a standard
// 5-field cron expression, e.g. "0 3 * * *" for daily at 03:00) and
// deletes any finalized action older than retention. retention <= 0
// disables pruning entirely.
func NewRetentionSweeper(j *Journal, schedule string, retention time.Duration) (*RetentionSweeper, error) {
	s := &RetentionSweeper{j: j, retention: retention, cron: cron.New()}
	if retention > 0 {
		if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start begins the cron schedule. No-op if retention is disabled.
func (s *RetentionSweeper) Start() {
	if s.retention > 0 {
		s.cron.Start()
	}
}

// Stop halts the cron schedule, waiting for any in-flight sweep.
func (s *RetentionSweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *RetentionSweeper) sweep() {
	cutoff := time.Now().UTC().Add(-s.retention)
	var stale []string

	s.j.index.forEach(func(masterActionID string, e indexEntry) error {
		if e.OverallStatus == "" || e.EndTime.IsZero() {
			return nil // not yet finalized; never prune
		}
		if e.EndTime.Before(cutoff) {
			stale = append(stale, masterActionID)
		}
		return nil
	})

	for _, id := range stale {
		dir, ok := s.j.index.lookupDir(id)
		if !ok {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.j.log.Error().Err(err).Str("master_action_id", id).Msg("retention sweep: failed to remove archive")
			continue
		}
		s.j.index.delete(id)
		metrics.JournalRetentionPrunedTotal.Inc()
		s.j.log.Info().Str("master_action_id", id).Str("dir", dir).Msg("retention sweep: pruned archived action")
	}
}
