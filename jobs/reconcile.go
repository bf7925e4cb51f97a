package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gerai-ops/gerai/internal/ledger"
	"github.com/gerai-ops/gerai/internal/observability"
	"github.com/gerai-ops/gerai/internal/shared"
)

// ReconcileDeps bundles what the sweep needs at runtime.
type ReconcileDeps struct {
	Ledger  *ledger.Service
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// NewReconcileHandler sweeps every cash source and reports drift. Drift is
// logged and counted, never auto-repaired; repair stays an explicit
// operator action.
func NewReconcileHandler(deps ReconcileDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		sources, err := deps.Ledger.ListSources(ctx)
		if err != nil {
			return err
		}
		for _, src := range sources {
			report, err := deps.Ledger.Reconcile(ctx, src.ID)
			if err != nil && !errors.Is(err, shared.ErrReconciliationRequired) {
				deps.Logger.Error("reconcile sweep", slog.Any("error", err), slog.Int64("source_id", src.ID))
				continue
			}
			if report.PrimarySkip {
				continue
			}
			deps.Metrics.ObserveReconciliation(report.Consistent, report.Drift)
			if !report.Consistent {
				deps.Logger.Warn("balance drift detected",
					slog.Int64("source_id", src.ID),
					slog.Int64("cached", report.Cached),
					slog.Int64("ledger_sum", report.LedgerSum),
					slog.Int64("drift", report.Drift))
			}
		}
		return nil
	}
}
