package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/techstore/storefront/internal/health"
	"github.com/techstore/storefront/internal/metrics"
	"github.com/techstore/storefront/internal/service/auth"
	"github.com/techstore/storefront/internal/service/catalog"
	"github.com/techstore/storefront/internal/service/checkout"
	"github.com/techstore/storefront/internal/service/idempotency"
	"github.com/techstore/storefront/internal/service/lifecycle"
	"github.com/techstore/storefront/internal/service/outbox"
	"github.com/techstore/storefront/internal/service/users"
	"github.com/techstore/storefront/internal/telemetry"
	"github.com/techstore/storefront/internal/transport/httpapi"
	"github.com/techstore/storefront/internal/version"
)

const (
	serviceName     = "storefront"
	shutdownTimeout = 5 * time.Second
)

// Run поднимает HTTP API, сервер метрик и gRPC health, запускает воркеры
// и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := configureLogging(cfg); err != nil {
		return err
	}
	logger := log.WithField("component", "app")
	logger.WithField("version", version.String()).Info("starting storefront")

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELEndpoint, serviceName, version.GetVersion())
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	// Недоступная Kafka не останавливает запуск: события уходят в лог.
	producer, _ := initKafkaProducer(cfg, logger)
	defer closeKafka(producer, logger)

	storefrontMetrics := metrics.NewStorefrontMetrics()
	services, err := buildServices(ctx, cfg, deps, storefrontMetrics, logger)
	if err != nil {
		return err
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	publisher, dlqPublisher := outboxPublishers(cfg, producer, logger)
	outboxWorker := outbox.NewWorker(deps.outboxRepo, publisher,
		outbox.WithLogger(log.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryBaseDelay),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		outboxWorker.Run(workerCtx)
	}()

	if !deps.idempotencySelfExpiring {
		cleanupWorker := idempotency.NewCleanupWorker(deps.idempotencyRepo,
			idempotency.WithLogger(log.WithField("component", "idempotency-cleanup")),
			idempotency.WithMetrics(metrics.NewCleanupMetrics()),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			cleanupWorker.Run(workerCtx)
		}()
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	if producer != nil {
		healthHandler.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", producer.Check))
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	api := httpapi.NewServer(services,
		httpapi.WithLogger(log.WithField("component", "http")),
		httpapi.WithMetrics(storefrontMetrics),
		httpapi.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL),
		httpapi.WithProduction(cfg.Production()),
		httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
	httpSrv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	grpcServer, healthServer := newGRPCServer(logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Infof("gRPC health сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server failed, shutting down")
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(httpSrv, logger)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)
	return runErr
}

// buildServices собирает прикладные сервисы поверх хранилищ и создаёт
// администратора из конфигурации.
func buildServices(ctx context.Context, cfg Config, deps *runtimeDependencies, m *metrics.StorefrontMetrics, logger *log.Entry) (httpapi.Services, error) {
	accessSecret, refreshSecret := cfg.jwtSecrets(logger)
	tokens := auth.NewTokenIssuer(accessSecret, refreshSecret, cfg.JWTExpire, cfg.JWTRefreshExpire, nil)
	hasher := auth.NewHasher(cfg.BcryptCost)

	authService := auth.NewService(deps.users, tokens, hasher, auth.WithLogger(log.WithField("component", "auth")))
	if cfg.SeedAdminEmail != "" {
		if err := authService.EnsureAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
			return httpapi.Services{}, err
		}
		logger.WithField("email", cfg.SeedAdminEmail).Info("admin account ensured")
	}

	return httpapi.Services{
		Auth:  authService,
		Users: users.NewService(deps.users, hasher, nil, log.WithField("component", "users")),
		Catalog: catalog.NewService(deps.products,
			catalog.WithLogger(log.WithField("component", "catalog")),
			catalog.WithMetrics(m),
		),
		Checkout: checkout.NewAssembler(deps.txManager,
			checkout.WithLogger(log.WithField("component", "checkout")),
			checkout.WithMetrics(m),
			checkout.WithPricing(checkout.Pricing{
				FreeShippingThreshold: cfg.FreeShippingThreshold,
				FlatShippingFee:       cfg.FlatShippingFee,
			}),
		),
		Lifecycle: lifecycle.NewService(deps.orders,
			lifecycle.WithLogger(log.WithField("component", "lifecycle")),
			lifecycle.WithMetrics(m),
			lifecycle.WithStrictTransitions(cfg.StrictTransitions),
		),
	}, nil
}

// newGRPCServer создаёт gRPC-сервер только с health и reflection:
// бизнес-API витрины обслуживается по HTTP.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// startMetricsServer запускает /metrics, /healthz, /livez и /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP останавливает HTTP-сервер с таймаутом.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
