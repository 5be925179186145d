package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/api"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/config"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/invites"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/jobs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/membership"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/ratelimit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/storage/postgres"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// Invitation accept attempts allowed per caller per window
const (
	acceptAttempts = 20
	acceptWindow   = 15 * time.Minute
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, cfg.OTelConfig(), logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}
	otelMetrics, err := observability.NewOTelMetrics(nil)
	if err != nil {
		return err
	}

	pool, err := postgres.Open(ctx, cfg.PoolConfig(), logger)
	if err != nil {
		return err
	}
	store := postgres.NewPoolStore(pool)
	dbStats, err := otelMetrics.ObserveDBStats(pool.Handles())
	if err != nil {
		pool.Close()
		return err
	}

	redisClient, err := newRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return err
	}
	inviteLimiter, acceptLimiter := newLimiters(cfg, redisClient)

	verifier, err := auth.NewJWTVerifier(auth.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
	})
	if err != nil {
		pool.Close()
		return err
	}

	tracerProvider := otel.GetTracerProvider()
	svc := membership.NewService(store, invites.NewManager(cfg.Invites.BaseURL),
		membership.WithLogger(logger),
		membership.WithMetrics(metrics),
		membership.WithOTelMetrics(otelMetrics),
		membership.WithTracerProvider(tracerProvider),
		membership.WithInviteLimiter(inviteLimiter),
	)
	resolver := tenant.NewResolver(store,
		tenant.WithLogger(logger),
		tenant.WithMetrics(metrics),
		tenant.WithTracerProvider(tracerProvider),
		tenant.WithStrictSelection(cfg.Tenant.RequireExplicitOrg),
	)

	apiServer := api.NewServer(svc, resolver, verifier,
		api.WithLogger(logger),
		api.WithMetrics(metrics),
		api.WithAcceptLimiter(acceptLimiter),
		api.WithSelectorHeader(cfg.Tenant.SelectorHeader),
	)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(apiServer.Router(), "orgs-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var healthRedis redis.UniversalClient
	if redisClient != nil {
		healthRedis = redisClient
	}
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(pool.Primary(), healthRedis, version))
	observability.RegisterMetricsEndpoint(healthRouter, registry)
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("database", func(context.Context) error { return pool.Close() })
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("db stats", func(context.Context) error { return dbStats.Unregister() })
	shutdown.Register("opentelemetry", providers.Shutdown)
	shutdown.Register("health server", healthServer.Shutdown)

	if cfg.Invites.PurgeEnabled {
		purge := jobs.New("invite purge", jobs.PurgeInvites(svc), jobs.WithLogger(logger))
		if err := purge.Start(cfg.Invites.PurgeSchedule); err != nil {
			pool.Close()
			return err
		}
		shutdown.Register("invite purge", purge.Stop)
	}
	if len(cfg.Database.ReplicaURLs) > 0 {
		replicas := jobs.New("replica check", jobs.PruneReplicas(pool, logger),
			jobs.WithLogger(logger), jobs.WithTimeout(30*time.Second))
		if err := replicas.Start(jobs.DefaultReplicaCheckSchedule); err != nil {
			pool.Close()
			return err
		}
		shutdown.Register("replica check", replicas.Stop)
	}

	errCh := make(chan error, 2)
	go serve(httpServer, "API", logger, errCh)
	go serve(healthServer, "health", logger, errCh)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.WithError(err).Error("Listener failed, shutting down")
	}
	return shutdown.Shutdown(context.Background())
}

func serve(srv *http.Server, name string, logger *observability.Logger, errCh chan<- error) {
	logger.WithFields(map[string]any{"addr": srv.Addr, "listener": name}).Info("Listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server: %w", name, err)
	}
}

// newRedisClient returns nil when no redis is configured
func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// newLimiters shares counters across replicas through redis when one is
// configured and falls back to per-process windows otherwise
func newLimiters(cfg *config.Config, client *redis.Client) (invite, accept ratelimit.Limiter) {
	inviteCfg := ratelimit.Config{Limit: cfg.Invites.HourlyLimit, Window: time.Hour, Prefix: "ratelimit:invites"}
	acceptCfg := ratelimit.Config{Limit: acceptAttempts, Window: acceptWindow, Prefix: "ratelimit:accept"}

	if client != nil {
		invite = ratelimit.NewRedisLimiter(client, inviteCfg)
		accept = ratelimit.NewRedisLimiter(client, acceptCfg)
	} else {
		invite = ratelimit.NewLocalLimiter(inviteCfg)
		accept = ratelimit.NewLocalLimiter(acceptCfg)
	}
	if cfg.Invites.HourlyLimit == 0 {
		invite = ratelimit.Unlimited{}
	}
	return invite, accept
}
