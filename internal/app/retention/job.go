package retention

import (
	"context"
	"time"

	"github.com/varsivault/vault-core/internal/observability"
)

// StartJob runs the sweep on a fixed interval until ctx is cancelled. Each
// tick gets its own timeout so a wedged sweep cannot stall the schedule.
func StartJob(ctx context.Context, s *Sweeper, interval, timeout time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	log := observability.Logger().With("job", "retention_sweep")

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				count, err := s.Sweep(tickCtx, time.Now().UTC())
				cancel()
				if err != nil {
					log.Error("sweep failed", "swept", count, "error", err)
					continue
				}
				if count > 0 {
					log.Info("sweep finished", "swept", count)
				}
			}
		}
	}()
}
