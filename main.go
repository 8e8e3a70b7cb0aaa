package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appcheckout "github.com/soko-labs/soko-checkout/internal/application/checkout"
	"github.com/soko-labs/soko-checkout/internal/config"
	"github.com/soko-labs/soko-checkout/internal/domain/catalog"
	domainOrder "github.com/soko-labs/soko-checkout/internal/domain/order"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/id"
	kafkax "github.com/soko-labs/soko-checkout/internal/infrastructure/kafka"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/memory"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/notify"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/oteltrace"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/outbox"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/paypack"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/postgres"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/prometrics"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/redisx"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/telemetry"
	"github.com/soko-labs/soko-checkout/internal/infrastructure/zaplogger"
	"github.com/soko-labs/soko-checkout/internal/observability"
	httppresentation "github.com/soko-labs/soko-checkout/internal/presentation/http"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zaplogger.New(
		observability.F("service", cfg.ServiceName),
		observability.F("env", cfg.Env),
	)

	metrics := prometrics.New("soko", "checkout")
	counters := map[string]observability.Counter{
		observability.MUsecaseRequests: metrics.Counter(observability.MUsecaseRequests,
			"Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests: metrics.Counter(observability.MHTTPRequests,
			"Total number of HTTP requests.", "method", "route", "status"),
		observability.MExternalRequests: metrics.Counter(observability.MExternalRequests,
			"Total number of outbound gateway calls.", "peer", "endpoint", "outcome"),
		observability.MReconciliationGaps: metrics.Counter(observability.MReconciliationGaps,
			"Line items whose stock decrement failed after payment confirmation.", "reason"),
	}
	histograms := map[string]observability.Histogram{
		observability.MUsecaseDuration: metrics.Histogram(observability.MUsecaseDuration,
			"Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration: metrics.Histogram(observability.MHTTPRequestDuration,
			"Duration of HTTP requests in seconds.", prometheus.DefBuckets, "method", "route", "status"),
		observability.MExternalRequestDuration: metrics.Histogram(observability.MExternalRequestDuration,
			"Duration of outbound gateway calls in seconds.", prometheus.DefBuckets, "peer", "endpoint"),
	}
	tel := telemetry.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	var (
		orders   domainOrder.Store
		products catalog.Store
	)
	if cfg.PostgresDSN != "" {
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("postgres_connect_failed", observability.F("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		orders = postgres.NewOrderStore(pool)
		products = postgres.NewProductStore(pool)
		logger.Info("store_backend", observability.F("backend", "postgres"))
	} else {
		orders = memory.NewOrderStore()
		products = memory.NewProductStore()
		logger.Info("store_backend", observability.F("backend", "memory"))
	}

	var dedup appcheckout.DedupStore = memory.NewDedupStore()
	var statusCache *redisx.StatusCache
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		dedup = redisx.NewDedupStore(rdb)
		statusCache = redisx.NewStatusCache(rdb)
	}

	idGenerator := id.NewUUIDGenerator()
	bus := outbox.NewBus(logger)
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	if len(cfg.KafkaBrokers) > 0 {
		producer := kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, logger)
		producer.Start(ctx)
		publisher := kafkax.NewEventPublisher(producer, idGenerator, cfg.ServiceName)
		for _, event := range []string{
			domainOrder.CheckoutConfirmedEvent{}.EventName(),
			domainOrder.CheckoutTimedOutEvent{}.EventName(),
			domainOrder.ReconciliationGapEvent{}.EventName(),
		} {
			bus.Subscribe(event, publisher.Handle)
		}
	}

	gateway := paypack.NewClient(paypack.Config{
		BaseURL:      cfg.PaypackBaseURL,
		ClientID:     cfg.PaypackClientID,
		ClientSecret: cfg.PaypackClientSecret,
		Environment:  cfg.PaypackEnvironment,
	})

	orchestrator := appcheckout.NewOrchestrator(
		orders, products, gateway, idGenerator, bus, tel,
		appcheckout.WithPolling(cfg.PollInterval, cfg.PollTimeout),
		appcheckout.WithNotifier(notify.NewEmailNotifier(logger)),
		appcheckout.WithDedup(dedup),
	)

	handler := httppresentation.NewHandler(orchestrator, orders, statusCache, logger, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_error", observability.F("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		logger.Info("http_server_stopped")
	}
}
