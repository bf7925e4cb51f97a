package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gerai-ops/gerai/internal/profit"
)

// BackfillDeps bundles what the backfill needs at runtime.
type BackfillDeps struct {
	Profit *profit.Service
	Logger *slog.Logger
}

// NewBackfillHandler creates missing profit records for countable orders in
// the payload window. The default window is the previous day.
func NewBackfillHandler(deps BackfillDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ProfitBackfillPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.To.IsZero() {
			payload.To = time.Now()
		}
		if payload.From.IsZero() {
			payload.From = payload.To.AddDate(0, 0, -1)
		}

		created, err := deps.Profit.Backfill(ctx, payload.From, payload.To)
		if err != nil {
			return err
		}
		deps.Logger.Info("profit backfill finished",
			slog.Int("created", created),
			slog.Time("from", payload.From),
			slog.Time("to", payload.To))
		return nil
	}
}
