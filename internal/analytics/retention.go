// ABOUTME: Retention pruning for aged-out metrics windows
// ABOUTME: Deletes rows past the configured retention horizon once a day

package analytics

import (
	"context"
	"time"
)

// runRetention prunes aged-out metrics rows once at startup and then daily
// until ctx is cancelled. Prune failures are logged and retried on the next
// cycle; reads just keep seeing stale rows in the meantime.
func (s *Service) runRetention(ctx context.Context) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()

	s.pruneOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneOnce(ctx)
		}
	}
}

func (s *Service) pruneOnce(ctx context.Context) {
	retention := time.Duration(s.cfg.MetricsRetentionDays) * 24 * time.Hour
	cutoff := time.Now().UTC().Add(-retention)

	pruned, err := s.store.PruneMetrics(ctx, cutoff)
	if err != nil {
		s.logger.Error("metrics retention prune failed", "cutoff", cutoff, "error", err)
		return
	}
	s.metrics.RowsPruned.Add(float64(pruned))
	if pruned > 0 {
		s.logger.Info("metrics retention pruned rows",
			"rows", pruned,
			"cutoff", cutoff.Format(time.RFC3339))
	}
}
