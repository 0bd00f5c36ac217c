package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Schedule enqueues one job per type immediately and then on every tick until ctx ends.
func Schedule(ctx context.Context, q *Queue, interval time.Duration, logger *zap.Logger, types ...string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enqueueAll := func() {
		for _, jobType := range types {
			if err := q.Enqueue(Job{ID: uuid.NewString(), Type: jobType}); err != nil {
				logger.Warn("schedule job", zap.String("type", jobType), zap.Error(err))
			}
		}
	}

	enqueueAll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueueAll()
		}
	}
}
