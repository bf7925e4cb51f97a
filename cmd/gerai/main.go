package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gerai-ops/gerai/internal/app"
	"github.com/gerai-ops/gerai/internal/catalog"
	"github.com/gerai-ops/gerai/internal/expense"
	"github.com/gerai-ops/gerai/internal/finance"
	"github.com/gerai-ops/gerai/internal/ledger"
	"github.com/gerai-ops/gerai/internal/observability"
	"github.com/gerai-ops/gerai/internal/orders"
	"github.com/gerai-ops/gerai/internal/platform/cache"
	"github.com/gerai-ops/gerai/internal/platform/db"
	"github.com/gerai-ops/gerai/internal/profit"
	"github.com/gerai-ops/gerai/internal/purchasing"
	"github.com/gerai-ops/gerai/internal/reporting"
	"github.com/gerai-ops/gerai/internal/shared"
	"github.com/gerai-ops/gerai/jobs"
)

func main() {
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)
	advisoryLock := shared.NewAdvisoryLock(redisClient, cfg.LockTTL)
	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerService.SetWriteObserver(metrics)

	expenseRepo := expense.NewRepository(pool)
	expenseService := expense.NewService(expenseRepo, auditLogger)

	ordersRepo := orders.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)

	profitRepo := profit.NewRepository(pool)
	profitService := profit.NewService(profitRepo, ledgerService, ordersRepo, auditLogger, logger, profit.Config{
		EmployeeShareBasisPoints: cfg.EmployeeShareBasisPoints,
	})

	financeService := finance.NewService(ordersRepo, expenseService, ledgerService, profitService, catalogRepo, redisClient, cfg.SnapshotTTL, logger)
	// The primary source balance is derived, not summed; the ledger asks
	// finance for it.
	ledgerService.SetPrimaryBalancer(financeService)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, ledgerService, expenseService, catalogRepo, advisoryLock, idemStore, auditLogger, logger)

	reportingService := reporting.NewService(ordersRepo, profitService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledger.NewHandler(logger, ledgerService),
		ExpenseHandler:    expense.NewHandler(logger, expenseService),
		FinanceHandler:    finance.NewHandler(logger, financeService),
		ProfitHandler:     profit.NewHandler(logger, profitService),
		PurchasingHandler: purchasing.NewHandler(logger, purchasingService),
		ReportingHandler:  reporting.NewHandler(logger, reportingService),
		JobsHandler:       jobs.NewHandler(inspector, jobsClient, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gerai engine listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
