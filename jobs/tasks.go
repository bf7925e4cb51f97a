package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile sweeps every cash source for cache drift.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskProfitBackfill creates missing profit records for countable orders.
	TaskProfitBackfill = "profit:backfill"
)

// LedgerReconcilePayload carries scheduling metadata.
type LedgerReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerReconcileTask constructs the reconciliation sweep task.
func NewLedgerReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault)), nil
}

// ProfitBackfillPayload bounds the order window to scan.
type ProfitBackfillPayload struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewProfitBackfillTask constructs the backfill task.
func NewProfitBackfillTask(from, to time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ProfitBackfillPayload{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProfitBackfill, body, asynq.Queue(QueueDefault)), nil
}
