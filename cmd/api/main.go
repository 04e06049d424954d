package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/baharkarakas/transferflow/internal/api"
	"github.com/baharkarakas/transferflow/internal/auth"
	"github.com/baharkarakas/transferflow/internal/config"
	"github.com/baharkarakas/transferflow/internal/db"
	"github.com/baharkarakas/transferflow/internal/logger"
	"github.com/baharkarakas/transferflow/internal/metrics"
	"github.com/baharkarakas/transferflow/internal/notify"
	"github.com/baharkarakas/transferflow/internal/notify/broker"
	"github.com/baharkarakas/transferflow/internal/ratelimit"
	"github.com/baharkarakas/transferflow/internal/realtime"
	repo "github.com/baharkarakas/transferflow/internal/repository"
	"github.com/baharkarakas/transferflow/internal/repository/memory"
	"github.com/baharkarakas/transferflow/internal/repository/postgres"
	"github.com/baharkarakas/transferflow/internal/risk"
	"github.com/baharkarakas/transferflow/internal/services"
	"github.com/baharkarakas/transferflow/internal/settlement"
	"github.com/baharkarakas/transferflow/internal/worker"
)

type stores struct {
	transfers repo.Transfers
	balances  repo.Balances
	audit     repo.AuditLogs
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	var (
		requestLimit  ratelimit.Limiter = ratelimit.NewWindow(cfg.RateRPS, time.Second)
		transferLimit ratelimit.Limiter = ratelimit.NewWindow(cfg.TransferRateLimit, cfg.TransferRateWindow)
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, limiter will fail open until it recovers", "err", err)
		}
		requestLimit = ratelimit.NewRedis(rdb, cfg.RateLimitPrefix+":ip", cfg.RateRPS, time.Second)
		transferLimit = ratelimit.NewRedis(rdb, cfg.RateLimitPrefix+":create", cfg.TransferRateLimit, cfg.TransferRateWindow)
		log.Info("rate limiting backed by redis")
	}

	wp := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueue, log)
	defer wp.Stop()

	hub := realtime.NewHub(log)
	defer hub.Close()

	sinks := []notify.Sink{{Name: "websocket", Notifier: hub}}
	if cfg.RabbitMQURL != "" {
		pub, err := broker.Dial(cfg.RabbitMQURL, cfg.TransferEventsExchange)
		if err != nil {
			log.Warn("rabbitmq unavailable, broker sink disabled", "err", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, notify.Sink{Name: "rabbitmq", Notifier: pub})
			log.Info("publishing transfer events", "exchange", cfg.TransferEventsExchange)
		}
	}
	dispatcher := notify.NewDispatcher(wp, log, cfg.NotifyTimeout, sinks...)

	transferSvc := services.NewTransferService(services.TransferDeps{
		Transfers: st.transfers,
		Balances:  st.balances,
		AuditLogs: st.audit,
		Limiter:   transferLimit,
		Emitter:   dispatcher,
		Log:       log,
	})
	assessor := risk.NewAssessor(risk.Config{
		LargeAmount: cfg.RiskLargeAmount,
		Watchlist:   cfg.RiskWatchlist,
		Keywords:    cfg.RiskKeywords,
	})
	adminSvc := services.NewAdminService(st.transfers, assessor, cfg.StatsWindow)

	if cfg.SettlementEnabled {
		sw := settlement.NewSweeper(st.transfers, settlement.NewSimulated(cfg.UnreachableBanks), transferSvc, settlement.Config{
			Schedule: cfg.SettlementSchedule,
			Delay:    cfg.SettlementDelay,
			Actor:    services.SystemActor,
		}, log)
		if err := sw.Start(); err != nil {
			return fmt.Errorf("settlement: %w", err)
		}
		defer func() { <-sw.Stop().Done() }()
	}

	tm := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	var verifier auth.Verifier = tm
	if cfg.Env == "dev" {
		verifier = auth.DevVerifier{Next: tm}
		log.Warn("dev tokens accepted", "env", cfg.Env)
	}

	router := api.NewRouter(api.RouterDeps{
		Env:            cfg.Env,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Verifier:       verifier,
		Tokens:         tm,
		RequestLimit:   requestLimit,
		Transfers:      transferSvc,
		Admin:          adminSvc,
		Balances:       services.NewBalanceService(st.balances),
		Hub:            hub,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	if cfg.StoreDriver == "memory" {
		balances := memory.NewBalances()
		balances.SetDefault(decimal.NewFromInt(10000), "USD")
		log.Warn("using in-memory store; data is lost on restart")
		return stores{
			transfers: memory.NewTransfers(),
			balances:  balances,
			audit:     memory.NewAuditLogs(),
			close:     func() {},
		}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("db connect: %w", err)
	}
	if cfg.Migrate {
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return stores{}, fmt.Errorf("migrations: %w", err)
		}
	}
	repos := postgres.NewRepositories(pool)
	return stores{
		transfers: repos.Transfers,
		balances:  repos.Balances,
		audit:     repos.AuditLogs,
		close:     pool.Close,
	}, nil
}
