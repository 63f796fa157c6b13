package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/bookmarketapp/bookmarket/internal/auth"
	"github.com/bookmarketapp/bookmarket/internal/cache"
	"github.com/bookmarketapp/bookmarket/internal/config"
	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/email"
	"github.com/bookmarketapp/bookmarket/internal/events"
	"github.com/bookmarketapp/bookmarket/internal/handlers"
	"github.com/bookmarketapp/bookmarket/internal/logging"
	"github.com/bookmarketapp/bookmarket/internal/observability"
	"github.com/bookmarketapp/bookmarket/internal/services"
	"github.com/bookmarketapp/bookmarket/internal/stripe"
)

const (
	startupTimeout     = 30 * time.Second
	outboundTimeout    = 10 * time.Second
	natsConnectTimeout = 5 * time.Second
	sentryFlushTimeout = 2 * time.Second
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Events        *events.NatsPublisher
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), startupTimeout)
	defer startupCancel()

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	var (
		publisher     events.Publisher = events.NoopPublisher{}
		natsPublisher *events.NatsPublisher
	)
	if cfg.NATSURL != "" {
		natsPublisher, err = events.Connect(startupCtx, cfg.NATSURL, natsConnectTimeout)
		if err != nil {
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		publisher = natsPublisher
	}

	outbound := observability.NewHTTPClient(outboundTimeout)

	mailer, err := email.NewProvider(email.Config{
		APIKey:     cfg.ResendAPIKey,
		From:       cfg.EmailFrom,
		HTTPClient: outbound,
	})
	if err != nil {
		closeAll(logger, natsPublisher, cacheProvider, database)
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}
	renderer, err := email.NewRenderer()
	if err != nil {
		closeAll(logger, natsPublisher, cacheProvider, database)
		return nil, fmt.Errorf("failed to initialize email templates: %w", err)
	}

	verifier, err := auth.NewJWTVerifier(auth.Config{
		Secret:          cfg.IdentityJWTSecret,
		PublicKeyBase64: cfg.IdentityJWTPublicKeyBase64,
		Issuer:          cfg.IdentityJWTIssuer,
		Audience:        cfg.IdentityJWTAudience,
	})
	if err != nil {
		closeAll(logger, natsPublisher, cacheProvider, database)
		return nil, fmt.Errorf("failed to initialize identity verifier: %w", err)
	}

	checkout := stripe.NewCheckoutClient(cfg.StripeSecretKey, outbound, stripe.BreakerSettings{
		ConsecutiveFailures: cfg.GatewayBreakerFailure,
		Timeout:             cfg.GatewayBreakerTimeout,
	})

	orderStore := db.NewOrderStore(database)
	invoiceStore := db.NewInvoiceStore(database)
	notifier := services.NewNotifier(publisher, mailer, renderer, logger.With("component", "notifier"))

	settlementService := services.NewSettlementService(
		orderStore,
		invoiceStore,
		checkout,
		cacheProvider,
		notifier,
		cfg,
		logger.With("component", "settlement_service"),
	)
	orderService := services.NewOrderService(
		orderStore,
		invoiceStore,
		notifier,
		cfg.IsAdmin,
		logger.With("component", "order_service"),
	)

	h, err := handlers.New(handlers.Dependencies{
		Config:     cfg,
		DB:         database,
		Verifier:   verifier,
		Settlement: settlementService,
		Orders:     orderService,
		Logger:     logger,
	})
	if err != nil {
		closeAll(logger, natsPublisher, cacheProvider, database)
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Events:        natsPublisher,
		Handlers:      h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	closeAll(a.Logger, a.Events, a.CacheProvider, a.DB)
	sentry.Flush(sentryFlushTimeout)
}

func initSentry(cfg *config.Config) (bool, error) {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		EnableTracing:    cfg.SentryTracesSampleRate > 0,
		TracesSampleRate: cfg.SentryTracesSampleRate,
		EnableLogs:       true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

func newLogger(cfg *config.Config, sentryEnabled bool) *slog.Logger {
	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		console = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}
	if !sentryEnabled {
		return slog.New(console)
	}

	// Errors become Sentry events; warnings ship as Sentry logs.
	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn},
	}.NewSentryHandler(context.Background())

	return slog.New(logging.Tee(console, sentryHandler))
}

func closeAll(logger *slog.Logger, publisher *events.NatsPublisher, provider cache.Provider, database *pgxpool.Pool) {
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close event publisher", "error", err)
		}
	}
	closeCacheProvider(logger, provider)
	if database != nil {
		database.Close()
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
