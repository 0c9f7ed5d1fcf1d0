// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-access/internal/config"
	"telegram-group-access/internal/domain/ports/adapter"
	payAdapters "telegram-group-access/internal/infra/adapters/payment"
	tele "telegram-group-access/internal/infra/adapters/telegram"
	"telegram-group-access/internal/infra/api"
	pg "telegram-group-access/internal/infra/db/postgres"
	"telegram-group-access/internal/infra/i18n"
	"telegram-group-access/internal/infra/logging"
	"telegram-group-access/internal/infra/metrics"
	red "telegram-group-access/internal/infra/redis"
	"telegram-group-access/internal/infra/sched"
	"telegram-group-access/internal/infra/worker"
	"telegram-group-access/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, allows the sandbox gateway)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exit")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)
	states := red.NewStateRepo(redisClient, cfg.Payment.OfferTTL)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	tenantRepo := pg.NewTenantRepoCache(pg.NewTenantRepo(pool), redisClient, cfg.Redis.TTL)
	planRepo := pg.NewPlanRepoCacheDecorator(pg.NewPostgresPlanRepo(pool), redisClient, cfg.Redis.TTL)
	paymentRepo := pg.NewPaymentRepo(pool)
	saleRepo := pg.NewSaleRepo(pool)
	deliveryRepo := pg.NewInviteDeliveryRepo(pool)
	codeRepo := pg.NewActivationCodeRepo(pool)

	// ---- Payment gateways ----
	registry, sandbox, err := buildGateways(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Telegram ----
	var messenger adapter.Messenger
	if cfg.Telegram.Noop {
		messenger = tele.NewNoopMessenger(logger)
	} else {
		messenger = tele.NewMessenger(cfg.Telegram.APIEndpoint, &http.Client{Timeout: cfg.Payment.CallTimeout}, logger)
	}
	translator, err := i18n.Load(cfg.Telegram.Locale)
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	// ---- Worker pool ----
	workers := worker.NewPool(cfg.Worker.PoolSize, cfg.Worker.QueueSize, cfg.Worker.DeliveryLease, logger)
	// the pool outlives the signal: Stop drains queued deliveries, and they
	// need a live context to reach postgres and Telegram
	workers.Start(context.WithoutCancel(ctx))

	// ---- Use cases ----
	tenantUC := usecase.NewTenantUseCase(tenantRepo, planRepo, logger)
	activationUC := usecase.NewActivationUseCase(codeRepo, tenantRepo, tm, cfg.Activation.CodeTTL, logger)
	ledgerUC := usecase.NewLedgerUseCase(paymentRepo, tm, logger)
	checkoutUC := usecase.NewCheckoutUseCase(tenantRepo, planRepo, ledgerUC, registry, cfg.HTTP.PublicBaseURL, cfg.Payment.OfferTTL, logger)
	grantUC := usecase.NewGrantUseCase(paymentRepo, saleRepo, deliveryRepo, planRepo, tenantRepo, messenger, translator, tm, workers, cfg.Worker.DeliveryLease, logger)
	reconcileUC := usecase.NewReconcileUseCase(ledgerUC, grantUC, tenantRepo, paymentRepo, registry, cfg.Payment.OfferTTL, logger)

	updates := tele.NewUpdateHandler(tenantUC, activationUC, checkoutUC, reconcileUC, states, limiter, messenger, tele.HandlerConfig{
		Gateways:              registry.Names(),
		MaxActivationAttempts: cfg.Activation.MaxAttempts,
		ActivationWindow:      cfg.Activation.Window,
		Translator:            translator,
	}, logger)

	// ---- HTTP ----
	deps := api.Deps{
		Tenants:    tenantUC,
		Activation: activationUC,
		Checkout:   checkoutUC,
		Ledger:     ledgerUC,
		Reconcile:  reconcileUC,
		Updates:    updates,
		Auth:       api.NewAuthManager(cfg.Auth.JWTSecret),
		Health: map[string]api.HealthChecker{
			"postgres": pool.Ping,
			"redis":    redisClient.Ping,
		},
	}
	if sandbox != nil {
		deps.Sandbox = sandbox
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           api.NewServer(deps, cfg.HTTP.RequestTimeout, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ---- Background jobs ----
	jobs := []*sched.Job{
		sched.NewPaymentReconciler(reconcileUC, cfg.Scheduler, locker, logger),
		sched.NewGrantRecovery(grantUC, cfg.Scheduler, locker, logger),
		sched.NewAccessExpiryWorker(grantUC, cfg.Scheduler, locker, logger),
		sched.NewPoolStatsReporter(pool, logger),
	}
	for _, j := range jobs {
		j.Start(ctx)
	}

	// ---- Graceful shutdown ----
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	for _, j := range jobs {
		j.Stop()
	}
	// drain before the deferred pool and redis closes
	workers.Stop()
	logger.Info().Msg("bye")
	return runErr
}

// buildGateways registers every configured gateway behind a call timeout.
// The sandbox is only registered when enabled in dev mode and is returned
// separately so the simulate-approval route can reach it.
func buildGateways(cfg *config.Config, logger *zerolog.Logger) (*payAdapters.Registry, *payAdapters.SandboxGateway, error) {
	client := &http.Client{Timeout: cfg.Payment.CallTimeout}
	var gws []adapter.PaymentGateway

	if pp := cfg.Payment.PushinPay; pp.APIKey != "" {
		g, err := payAdapters.NewPushinPayGateway(pp.BaseURL, pp.APIKey, pp.WebhookSecret, client)
		if err != nil {
			return nil, nil, fmt.Errorf("pushinpay gateway: %w", err)
		}
		gws = append(gws, payAdapters.NewBoundedGateway(g, cfg.Payment.CallTimeout))
	}
	if mp := cfg.Payment.MercadoPago; mp.AccessToken != "" {
		g, err := payAdapters.NewMercadoPagoGateway(mp.BaseURL, mp.AccessToken, mp.WebhookSecret, mp.PayerEmailDomain, client)
		if err != nil {
			return nil, nil, fmt.Errorf("mercadopago gateway: %w", err)
		}
		gws = append(gws, payAdapters.NewBoundedGateway(g, cfg.Payment.CallTimeout))
	}

	var sandbox *payAdapters.SandboxGateway
	if cfg.Payment.Sandbox.Enabled && !cfg.Runtime.Dev {
		logger.Warn().Msg("payment.sandbox.enabled is ignored outside dev mode")
	}
	if cfg.SandboxActive() {
		secret := cfg.Payment.Sandbox.WebhookSecret
		if secret == "" {
			logger.Warn().Msg("payment.sandbox.webhook_secret not set; using an insecure dev secret")
			secret = "sandbox-dev-secret"
		}
		sandbox = payAdapters.NewSandboxGateway(secret)
		gws = append(gws, sandbox)
	}

	if len(gws) == 0 {
		return nil, nil, errors.New("no payment gateway configured: set payment.pushinpay.api_key or payment.mercadopago.access_token, or enable the sandbox in dev mode")
	}
	registry := payAdapters.NewRegistry(gws...)
	logger.Info().Interface("gateways", registry.Names()).Msg("payment gateways ready")
	return registry, sandbox, nil
}
