package engine

import (
	"context"
	"errors"
	"time"

	"fieldbook/internal/observation/models"
)

// RunSweeper periodically fails observations stuck in analyzing past the
// recognition deadline. It blocks until the context is canceled.
func (e *Engine) RunSweeper(ctx context.Context, timeout, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := e.SweepOnce(ctx, timeout); err != nil {
				e.logger.ErrorContext(ctx, "analysis deadline sweep failed", "error", err)
			} else if n > 0 {
				e.logger.InfoContext(ctx, "analysis deadline sweep timed out observations", "count", n)
			}
		}
	}
}

// SweepOnce fails every observation whose analysis has been pending longer
// than timeout and returns how many it moved. A record that races to a
// different status between listing and locking is skipped.
func (e *Engine) SweepOnce(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := e.now().Add(-timeout)
	ids, err := e.store.ListStuckAnalyzing(ctx, cutoff)
	if err != nil {
		return 0, e.mapStoreErr(err)
	}
	swept := 0
	for _, id := range ids {
		_, err := e.store.Execute(ctx, id,
			func(o *models.Observation) error {
				if o.Status != models.StatusAnalyzing {
					return errDuplicateCallback
				}
				return nil
			},
			func(o *models.Observation) { o.ApplyFailure(e.now()) })
		if err != nil {
			if errors.Is(err, errDuplicateCallback) {
				continue
			}
			e.logger.WarnContext(ctx, "could not time out stuck observation",
				"observation_id", id, "error", err)
			continue
		}
		swept++
		e.metrics.SweeperTimeoutsTotal.Inc()
		e.metrics.ObserveTransition(models.StatusAnalyzing.String(), models.StatusFailed.String())
		e.metrics.ObserveRecognitionOutcome("timeout")
	}
	return swept, nil
}
