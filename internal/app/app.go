package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalogsearch/internal/cache"
	"github.com/utafrali/catalogsearch/internal/catalog"
	"github.com/utafrali/catalogsearch/internal/config"
	"github.com/utafrali/catalogsearch/internal/engine"
	esengine "github.com/utafrali/catalogsearch/internal/engine/elasticsearch"
	"github.com/utafrali/catalogsearch/internal/engine/memory"
	"github.com/utafrali/catalogsearch/internal/event"
	handler "github.com/utafrali/catalogsearch/internal/handler/http"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/health"
	"github.com/utafrali/catalogsearch/pkg/httpclient"
	pkgkafka "github.com/utafrali/catalogsearch/pkg/kafka"
	"github.com/utafrali/catalogsearch/pkg/middleware"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	redis          *redis.Client
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	httpServer     *http.Server
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog loaded",
		slog.String("path", cfg.CatalogPath),
		slog.Int("stores", len(cat.Stores())),
		slog.Int("searchable_attributes", len(cat.SearchableAttributes())),
	)

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	var opts []service.Option
	if cfg.CacheEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			// Searching still works without the cache.
			logger.Warn("redis unavailable, result cache disabled", slog.String("error", err.Error()))
		} else {
			a.redis = client
			opts = append(opts, service.WithCache(cache.New(client, cfg.CacheTTL, logger)))
			logger.Info("result cache enabled", slog.Duration("ttl", cfg.CacheTTL))
		}
	}

	searchService := service.NewSearchService(eng, cat, cat, cat, logger, opts...)

	if cfg.KafkaEnabled {
		a.consumer = a.newConsumer(searchService)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("search_engine", func(ctx context.Context) error {
		_, err := searchService.Status(ctx)
		return err
	})
	if a.redis != nil {
		healthHandler.RegisterNonCritical("redis", database.RedisChecker(a.redis))
	}
	if cfg.KafkaEnabled {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	routerCfg := handler.RouterConfig{
		CORS:              middleware.DefaultCORSConfig(),
		RequestTimeout:    cfg.RequestTimeout,
		SearchCacheMaxAge: cfg.HTTPCacheMaxAge,
	}
	routerCfg.CORS.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(searchService, healthHandler, routerCfg, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return a, nil
}

func newEngine(cfg *config.Config, logger *slog.Logger) (engine.Client, error) {
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		transport := httpclient.New("elasticsearch",
			httpclient.Config{Timeout: cfg.ElasticsearchTimeout},
			cfg.ElasticsearchBreaker,
			logger,
		)
		eng, err := esengine.New(esengine.Config{
			Addresses: cfg.ElasticsearchURLs,
			IndexName: cfg.ElasticsearchIndex,
			Transport: transport,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		logger.Info("elasticsearch search engine initialized",
			slog.Any("addresses", cfg.ElasticsearchURLs),
			slog.String("index", eng.IndexName()),
		)
		return eng, nil
	default:
		logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	}
}

// newConsumer subscribes the indexer to catalog events. Redeliveries are
// dropped through an idempotency store shared across replicas when Redis is
// up, and failed messages go to the dead-letter topics.
func (a *App) newConsumer(svc *service.SearchService) *pkgkafka.Consumer {
	var store pkgkafka.IdempotencyStore
	if a.redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.redis, a.cfg.IdempotencyTTL)
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	}
	a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.cfg.KafkaDLQPrefix, a.logger)

	indexer := event.NewConsumer(svc, a.logger)
	consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  a.cfg.KafkaBrokers,
		GroupID:  a.cfg.KafkaGroupID,
		Topics:   event.Topics,
		MinBytes: 1,
		MaxBytes: 10e6, // 10 MB

		MaxAttempts:  a.cfg.KafkaAttempts,
		RetryBackoff: a.cfg.KafkaBackoff,
	}, pkgkafka.IdempotentHandler(store, indexer.Handle, a.logger), a.dlq, a.logger)

	a.logger.Info("kafka consumer initialized",
		slog.Any("brokers", a.cfg.KafkaBrokers),
		slog.Any("topics", event.Topics),
		slog.String("group", a.cfg.KafkaGroupID),
	)
	return consumer
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and Kafka consumer, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
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

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
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
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := a.shutdownTracer(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
