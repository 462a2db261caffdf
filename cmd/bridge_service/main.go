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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	adapter_http "github.com/aradsms/imessage_bridge/internal/bridge_service/adapters/http"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/adapters/backend"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/adapters/provider"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/app"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/ratelimit"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/repository/memory"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/repository/postgres"
	"github.com/aradsms/imessage_bridge/internal/platform/config"
	"github.com/aradsms/imessage_bridge/internal/platform/database"
	"github.com/aradsms/imessage_bridge/internal/platform/logger"
	"github.com/aradsms/imessage_bridge/internal/platform/messagebroker"
)

const (
	serviceName     = "bridge_service"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, serviceName)
	log.Info("Starting service...", "intake_mode", cfg.IntakeMode, "store_driver", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Service shutdown complete.")
}

// closer is run in reverse registration order once everything else has stopped.
type closer func()

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Store. Failing here is the only fatal runtime dependency.
	var (
		processedRepo domain.ProcessedMessageRepository
		statusRepo    domain.OutboundStatusRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("Using in-memory store; dedup claims and delivery status are lost on restart")
		processedRepo = memory.NewProcessedMessageStore()
		statusRepo = memory.NewOutboundStatusStore()
	default:
		startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
		pool, err := database.NewDBPool(startCtx, cfg.PostgresDSN)
		if err == nil {
			err = database.EnsureSchema(startCtx, pool)
			if err != nil {
				pool.Close()
			}
		}
		cancel()
		if err != nil {
			return fmt.Errorf("initialize store: %w", err)
		}
		closers = append(closers, func() {
			pool.Close()
			log.Info("Database connection pool closed")
		})
		processedRepo = postgres.NewPgProcessedMessageRepository(pool, log)
		statusRepo = postgres.NewPgOutboundStatusRepository(pool, log)
		log.Info("Database connection pool initialized")
	}

	// Optional status event publishing.
	var publisher messagebroker.Publisher
	if cfg.NATSURL != "" {
		nc, err := messagebroker.NewNATSClient(cfg.NATSURL, serviceName, log)
		if err != nil {
			log.Warn("NATS unavailable; status events will not be published", "error", err)
		} else {
			publisher = nc
			closers = append(closers, nc.Close)
			log.Info("NATS connection initialized")
		}
	}

	// Webhook rate limiter.
	var (
		limiter ratelimit.Limiter
		sweeper app.Sweeper
	)
	switch cfg.RateLimitBackend {
	case config.RateLimitBackendRedis:
		rl, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "imessage_bridge:webhook", cfg.RateLimitMaxRequests, cfg.RateLimitWindow(), log)
		if err != nil {
			return fmt.Errorf("initialize rate limiter: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rl.Ping(pingCtx); err != nil {
			log.Warn("Redis not reachable; webhook rate limiting fails open until it is", "error", err)
		}
		cancel()
		limiter = rl
		closers = append(closers, func() { _ = rl.Close() })
	default:
		rl, err := ratelimit.NewFixedWindowLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow(), log)
		if err != nil {
			return fmt.Errorf("initialize rate limiter: %w", err)
		}
		limiter = rl
		sweeper = rl
	}

	providerClient := provider.NewClient(provider.Config{
		BaseURL:    cfg.ProviderBaseURL,
		APIKey:     cfg.ProviderAPIKey,
		APISecret:  cfg.ProviderAPISecret,
		FromNumber: cfg.ProviderFromNumber,
		Timeout:    cfg.ProviderTimeout(),
	}, nil, log)
	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout(), nil, log)

	terminal := domain.NewTerminalSet(config.SplitList(cfg.StatusTerminalSet))
	dedup := app.NewDeduplicator(processedRepo, cfg.DedupRetention(), log)
	guard := app.NewAccessGuard(domain.AccessPolicy{
		Mode:      domain.ParseAccessMode(cfg.AccessMode),
		AllowFrom: config.SplitList(cfg.AccessAllowlist),
	})
	pipeline := app.NewIngestionPipeline(dedup, guard, providerClient, backendClient, statusRepo, terminal, log)

	var poller *app.Poller
	if cfg.PollsEnabled() {
		poller = app.NewPoller(providerClient, pipeline, app.PollerConfig{
			Interval: cfg.PollInterval(),
			Lookback: cfg.PollLookback(),
		}, log)
	}
	reconciler := app.NewDeliveryStatusReconciler(statusRepo, providerClient, terminal, publisher, app.ReconcilerConfig{
		Interval:      cfg.StatusInterval(),
		BatchSize:     cfg.StatusBatchSize,
		CallTimeout:   cfg.ProviderTimeout(),
		SubjectPrefix: cfg.NATSStatusSubjectPrefix,
	}, log)

	var webhook *adapter_http.WebhookHandler
	if cfg.WebhookEnabled() {
		trusted, err := adapter_http.NewTrustedProxies(config.SplitList(cfg.TrustedProxies))
		if err != nil {
			return fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
		}
		if cfg.WebhookSecret == "" {
			log.Warn("WEBHOOK_SECRET is empty; webhook requests are not authenticated")
		}
		webhook = adapter_http.NewWebhookHandler(pipeline, limiter, adapter_http.WebhookConfig{
			Secret:         cfg.WebhookSecret,
			MaxBodyBytes:   cfg.WebhookMaxBodyBytes,
			ProcessTimeout: cfg.WebhookProcessTimeout(),
			TrustedProxies: trusted,
		}, log)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           adapter_http.NewRouter(webhook, cfg.WebhookPath, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	svc := app.NewService(app.ServiceOptions{
		Poller:             poller,
		Reconciler:         reconciler,
		Deduplicator:       dedup,
		DedupSweepInterval: cfg.DedupSweepInterval(),
		RateLimiter:        sweeper,
		RateLimitSweep:     cfg.RateLimitSweepInterval(),
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			log.Info("Metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Attempting graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Error("Metrics server shutdown failed", "error", err)
			}
		}
		if webhook != nil {
			if err := webhook.Close(shutdownCtx); err != nil {
				log.Warn("Abandoned in-flight webhook processing", "error", err)
			}
		}
		return nil
	})

	log.Info("Service components initialized and workers started. Service is ready.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
