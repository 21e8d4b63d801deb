package assistant

import (
	"context"
	"log"
	"time"
)

const DefaultHistoryCleanupInterval = time.Hour

// StartHistoryCleaner purges exchanges older than retention until ctx ends.
// A non-positive retention disables it.
func (s *Service) StartHistoryCleaner(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 || s.db == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultHistoryCleanupInterval
	}
	go s.cleanupLoop(ctx, retention, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.purgeHistory(ctx, retention); err != nil {
				log.Printf("purge history error: %v", err)
			}
		}
	}
}

func (s *Service) purgeHistory(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err == nil && n > 0 {
		log.Printf("purged %d history messages older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, err
}
