package service

import (
	"context"

	"laikostar/internal/logging"
	"laikostar/internal/metrics"
)

const releaseBatch = 500

// ReleaseCommissions moves every matured pending commission into balance,
// one row per transaction. It returns how many rows were released.
func (l *Ledger) ReleaseCommissions(ctx context.Context) (int, error) {
	now := l.now()
	released := 0
	for {
		ids, err := l.store.DueCommissions(ctx, now, releaseBatch)
		if err != nil {
			return released, err
		}
		if len(ids) == 0 {
			return released, nil
		}
		progressed := false
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return released, err
			}
			ok, err := l.store.ReleaseCommission(ctx, id, now)
			if err != nil {
				logging.Logg.Error("Failed to release commission", "id", id, "error", err)
				continue
			}
			if ok {
				released++
				progressed = true
				metrics.CommissionsReleased.Inc()
			}
		}
		if !progressed || len(ids) < releaseBatch {
			return released, nil
		}
	}
}
