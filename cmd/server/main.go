package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/messmate/messmate/internal/api"
	"github.com/messmate/messmate/internal/auth"
	"github.com/messmate/messmate/internal/config"
	"github.com/messmate/messmate/internal/domain/entitlement"
	"github.com/messmate/messmate/internal/domain/menu"
	"github.com/messmate/messmate/internal/domain/order"
	"github.com/messmate/messmate/internal/domain/selection"
	"github.com/messmate/messmate/internal/domain/token"
	"github.com/messmate/messmate/internal/domain/users"
	"github.com/messmate/messmate/internal/domain/wallet"
	"github.com/messmate/messmate/internal/infra/db"
	httpx "github.com/messmate/messmate/internal/infra/http"
	"github.com/messmate/messmate/internal/infra/logger"
	"github.com/messmate/messmate/internal/infra/metrics"
	"github.com/messmate/messmate/internal/infra/notify"
	"github.com/messmate/messmate/internal/infra/payments"
	"github.com/messmate/messmate/internal/jobs"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/example.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	m := metrics.New()

	var alerts notify.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" && cfg.Telegram.AdminChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.AdminChatID, log)
		if err != nil {
			log.Error("telegram notifier init failed", "err", err)
			return
		}
		alerts = tg
		log.Info("telegram alerts enabled", "chat_id", cfg.Telegram.AdminChatID)
	}

	policy, err := entitlement.ParsePolicy(cfg.Meals.LimitPolicy)
	if err != nil {
		log.Error("bad limit policy", "err", err)
		return
	}

	usersRepo := users.NewRepo(pool)
	menuRepo := menu.NewRepo(pool)
	walletRepo := wallet.NewRepo(pool)
	entRepo := entitlement.NewRepo(pool)
	tokenRepo := token.NewRepo(pool)

	issuer := token.NewIssuer(tokenRepo, log)
	verifier := token.NewVerifier(tokenRepo, log, func() { m.Redemptions.Inc() })

	selRepo := selection.NewRepo(pool, menuRepo, entRepo, walletRepo, tokenRepo)
	selService := selection.NewService(selRepo, entitlement.NewCalculator(policy), log,
		func() { m.SelectionsSubmitted.Inc() })

	orderRepo := order.NewRepo(pool, usersRepo, menuRepo, walletRepo, issuer)
	orderService := order.NewService(orderRepo, log, func() { m.GuestOrders.Inc() })

	gateway := payments.NewGateway(cfg.Payments.BaseURL, cfg.Payments.KeyID, cfg.Payments.KeySecret, cfg.Payments.WebhookSecret)
	recharge := payments.NewRecharge(gateway, walletRepo, log, func(outcome string) {
		m.WebhookEvents.WithLabelValues(outcome).Inc()
	})

	authMgr := auth.NewManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTL)*time.Minute)

	handlers := api.NewHandlers(authMgr, usersRepo, menuRepo, walletRepo, entRepo, tokenRepo,
		selService, orderService, verifier, recharge, log, cfg.App.Env == "dev")

	worker := jobs.NewTokenWorker(tokenRepo, usersRepo, menuRepo, issuer, pool, alerts, log,
		time.Duration(cfg.Jobs.TokenWorkerIntervalSec)*time.Second,
		func() { m.TokensIssued.Inc() }, func() { m.TokenIssueFailures.Inc() })
	go worker.Run(ctx)

	if cfg.Jobs.DefaultMenuEnabled {
		defaultMenu := jobs.NewDefaultMenu(selRepo, cfg.Meals.DefaultMenuItemID, log)
		go defaultMenu.Run(ctx)
	}

	srv := httpx.New(cfg.HTTP.Addr, handlers.Router(), cfg.Metrics.Enabled, log)
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
