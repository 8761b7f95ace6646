package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/itemsearch/internal/config"
	"github.com/utafrali/itemsearch/internal/engine"
	esengine "github.com/utafrali/itemsearch/internal/engine/elasticsearch"
	"github.com/utafrali/itemsearch/internal/engine/memory"
	"github.com/utafrali/itemsearch/internal/event"
	handler "github.com/utafrali/itemsearch/internal/handler/http"
	"github.com/utafrali/itemsearch/internal/repository"
	"github.com/utafrali/itemsearch/internal/seed"
	"github.com/utafrali/itemsearch/internal/service"
	"github.com/utafrali/itemsearch/pkg/health"
	"github.com/utafrali/itemsearch/pkg/httpclient"
	pkgkafka "github.com/utafrali/itemsearch/pkg/kafka"
	"github.com/utafrali/itemsearch/pkg/tracing"
)

const (
	serviceName    = "item-search"
	serviceVersion = "1.0.0"

	idempotencyTTL   = time.Hour
	idempotencySweep = 5 * time.Minute
)

// App wires together all dependencies and runs the items service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	ingest         *service.IngestService
	consumer       *pkgkafka.Consumer
	dedupe         *pkgkafka.MemoryIdempotencyStore
	closer         io.Closer
	shutdownTracer tracing.ShutdownFunc
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     cfg.OTelSampleRate,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	var (
		raw    engine.SearchEngine
		system string
		closer io.Closer
	)
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		breakerCfg := httpclient.DefaultCircuitBreakerConfig("elasticsearch")
		breakerCfg.Timeout = cfg.BreakerTimeout
		breakerCfg.FailureRatio = cfg.BreakerFailureRatio
		breakerCfg.MinRequests = cfg.BreakerMinRequests

		esEng, err := esengine.New(ctx, esengine.Config{
			Addresses: cfg.ElasticsearchURLs,
			Username:  cfg.ElasticsearchUsername,
			Password:  cfg.ElasticsearchPassword,
			IndexName: cfg.ElasticsearchIndex,
			Transport: httpclient.NewBreakerTransport(
				httpclient.NewTransport(httpclient.DefaultTransportConfig()),
				breakerCfg,
				logger,
			),
		}, logger)
		if err != nil {
			_ = shutdownTracer(ctx)
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		raw, system = esEng, "elasticsearch"
		logger.Info("elasticsearch search engine initialized",
			slog.Any("addresses", cfg.ElasticsearchURLs),
			slog.String("index", cfg.ElasticsearchIndex),
		)
	default:
		memEng, err := memory.New(cfg.ElasticsearchIndex, logger)
		if err != nil {
			_ = shutdownTracer(ctx)
			return nil, fmt.Errorf("init memory engine: %w", err)
		}
		raw, system, closer = memEng, "bleve", memEng
		logger.Info("in-memory search engine initialized",
			slog.String("index", cfg.ElasticsearchIndex),
		)
	}
	eng := engine.NewInstrumented(raw, system, cfg.SlowQueryThreshold, logger)

	repo := repository.New(eng, cfg.ElasticsearchIndex)
	searchService := service.NewSearchService(eng, repo, cfg.ElasticsearchIndex, cfg.ErrorPolicy, logger)
	ingestService := service.NewIngestService(repo, seed.NewLoader(cfg.SeedDataPath), cfg.ErrorPolicy, logger)

	healthHandler := health.NewHandler(0)
	healthHandler.Register("search_engine", eng.Ping)

	a := &App{
		cfg:            cfg,
		logger:         logger,
		ingest:         ingestService,
		closer:         closer,
		shutdownTracer: shutdownTracer,
	}

	if cfg.KafkaEnabled {
		consumerCfg := pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroupID,
			Topic:    cfg.KafkaItemsTopic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}
		a.dedupe = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
		eventConsumer := event.NewConsumer(ingestService, logger)
		a.consumer = pkgkafka.NewConsumer(
			consumerCfg,
			pkgkafka.IdempotentHandler(a.dedupe, consumerCfg, eventConsumer.Handle, logger),
			logger,
		)
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
		logger.Info("kafka consumer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaItemsTopic),
			slog.String("group", cfg.KafkaGroupID),
		)
	}

	router := handler.NewRouter(searchService, ingestService, healthHandler, cfg.Environment, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// Handler returns the HTTP handler serving the items API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and the Kafka consumer, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.SeedOnStartup {
		n, err := a.ingest.LoadSeedData(ctx)
		if err != nil {
			a.logger.Error("seed on startup failed", slog.String("error", err.Error()))
		} else {
			a.logger.Info("seed data loaded", slog.Int("count", n))
		}
	}

	errCh := make(chan error, 2)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
		go a.sweepIdempotency(ctx)
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

func (a *App) sweepIdempotency(ctx context.Context) {
	ticker := time.NewTicker(idempotencySweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.dedupe.Sweep(); n > 0 {
				a.logger.Debug("expired idempotency keys removed", slog.Int("count", n))
			}
		}
	}
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.logger.Error("search engine close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
