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

	"dialer-platform/internal/admission"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/billing"
	"dialer-platform/internal/config"
	"dialer-platform/internal/dispatch"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/ingest"
	"dialer-platform/internal/reconcile"
	"dialer-platform/internal/records"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/retry"
	"dialer-platform/internal/runlog"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Durable state.
	store := records.NewPostgresStore(db)
	if err := store.EnsureSchema(rootCtx); err != nil {
		log.Error("records schema init failed", "err", err)
		os.Exit(1)
	}
	journalRepo := runlog.NewPostgresRepo(db)
	if err := journalRepo.EnsureSchema(rootCtx); err != nil {
		log.Error("runlog schema init failed", "err", err)
		os.Exit(1)
	}
	journal := runlog.NewService(journalRepo)

	var billingSvc *billing.Service
	if plan := billing.Plan(cfg.Billing.Plan); plan.Valid() {
		billingRepo := billing.NewPostgresRepo(db)
		if err := billingRepo.EnsureSchema(rootCtx); err != nil {
			log.Error("billing schema init failed", "err", err)
			os.Exit(1)
		}
		billingSvc = billing.NewService(billingRepo, plan)
	}

	// Scheduling stack.
	window, err := admission.NewWindow(cfg.Calling.WindowStart, cfg.Calling.WindowEnd, cfg.Calling.Timezone)
	if err != nil {
		log.Error("calling window init failed", "err", err)
		os.Exit(1)
	}
	gate := admission.NewController(admission.Limits{
		MaxConcurrentCalls: cfg.Dispatch.MaxConcurrentCalls,
		MaxCallsPerHour:    cfg.Dispatch.MaxCallsPerHour,
		MaxCallsPerDay:     cfg.Dispatch.MaxCallsPerDay,
	}, window, store)
	policy := retry.Policy{MaxAttempts: cfg.Dispatch.MaxAttempts, Delay: cfg.Dispatch.RetryDelay}
	placer := telephony.NewVAPIProvider(cfg.Provider, cfg.Dispatch.PlacementTimeout)

	scheduler := &dispatch.Scheduler{
		Store:   store,
		Placer:  placer,
		Gate:    gate,
		Window:  window,
		Policy:  policy,
		Billing: billingSvc,
		Journal: journal,
		Lock:    dispatch.NewRunLock(rdb, 5*time.Minute),
		Opts: dispatch.Options{
			Mode:             cfg.Dispatch.Mode,
			PollInterval:     cfg.Dispatch.PollInterval,
			MaxRuntime:       cfg.Dispatch.MaxRuntime,
			PlacementTimeout: cfg.Dispatch.PlacementTimeout,
			Parallelism:      cfg.Dispatch.MaxConcurrentCalls,
		},
	}

	reconciler := reconcile.New(store, policy,
		reconcile.NewRedisFilter(rdb, 24*time.Hour), journal)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		AuthMW: auth.RequireAccessToken(authManager),
		Webhook: telephony.WebhookHandler{
			Secret:    cfg.Provider.WebhookSecret,
			Reconcile: reconciler.Handle,
		},
		Handlers: httpapi.Handlers{
			Auth:      authManager,
			Store:     store,
			Importer:  ingest.NewImporter(store),
			Reporting: reporting.NewService(store, gate, window, billingSvc),
			Runlog:    journalRepo,
		},
		Health: func(ctx context.Context) error {
			return utils.HealthCheck(ctx, db, 2*time.Second)
		},
	})

	// Dispatch loop. Batch mode runs one pass and brings the process down;
	// continuous mode polls until shutdown or max runtime.
	go func() {
		if cfg.Dispatch.Mode == "batch" {
			stats, err := scheduler.RunBatch(rootCtx)
			if err != nil {
				log.Error("dispatch batch failed", "err", err)
			} else {
				log.Info("dispatch batch finished",
					"dispatched", stats.Dispatched, "failed", stats.Failed)
			}
			stop()
			return
		}
		if err := scheduler.RunContinuous(rootCtx); err != nil {
			log.Error("dispatch loop stopped", "err", err)
			stop()
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "mode", cfg.Dispatch.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
