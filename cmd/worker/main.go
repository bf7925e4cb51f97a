package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gerai-ops/gerai/internal/app"
	"github.com/gerai-ops/gerai/internal/ledger"
	"github.com/gerai-ops/gerai/internal/observability"
	"github.com/gerai-ops/gerai/internal/orders"
	"github.com/gerai-ops/gerai/internal/platform/db"
	"github.com/gerai-ops/gerai/internal/profit"
	"github.com/gerai-ops/gerai/internal/shared"
	"github.com/gerai-ops/gerai/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerService.SetWriteObserver(metrics)

	ordersRepo := orders.NewRepository(pool)
	profitRepo := profit.NewRepository(pool)
	profitService := profit.NewService(profitRepo, ledgerService, ordersRepo, auditLogger, logger, profit.Config{
		EmployeeShareBasisPoints: cfg.EmployeeShareBasisPoints,
	})

	reconcileTask, err := jobs.NewLedgerReconcileTask(time.Now())
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	backfillTask, err := jobs.NewProfitBackfillTask(time.Time{}, time.Time{})
	if err != nil {
		logger.Error("build backfill task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerReconcile, Handler: jobs.NewReconcileHandler(jobs.ReconcileDeps{
				Ledger:  ledgerService,
				Metrics: metrics,
				Logger:  logger,
			})},
			{Type: jobs.TaskProfitBackfill, Handler: jobs.NewBackfillHandler(jobs.BackfillDeps{
				Profit: profitService,
				Logger: logger,
			})},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 1 * * *", Task: backfillTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("gerai worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
