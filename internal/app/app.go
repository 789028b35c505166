package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/searchsync/internal/config"
	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/engine"
	esengine "github.com/utafrali/searchsync/internal/engine/elasticsearch"
	"github.com/utafrali/searchsync/internal/engine/memory"
	"github.com/utafrali/searchsync/internal/engine/typesense"
	"github.com/utafrali/searchsync/internal/event"
	handler "github.com/utafrali/searchsync/internal/handler/http"
	redislock "github.com/utafrali/searchsync/internal/lock/redis"
	"github.com/utafrali/searchsync/internal/repository/postgres"
	"github.com/utafrali/searchsync/internal/service"
	"github.com/utafrali/searchsync/pkg/database"
	"github.com/utafrali/searchsync/pkg/health"
	pkgkafka "github.com/utafrali/searchsync/pkg/kafka"
	"github.com/utafrali/searchsync/pkg/tracing"
)

const serviceName = "searchsync"

// App wires together all dependencies and runs the sync service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	syncer     *service.Syncer
	consumers  []*pkgkafka.Consumer
	producer   *pkgkafka.Producer
	dlq        *pkgkafka.DLQProducer
	pool       *pgxpool.Pool
	redis      *redis.Client
	httpServer *http.Server
	shutdownFn func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// Partially opened connections are closed when initialization fails.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.closeConnections()
		}
	}()

	tcfg := tracing.DefaultConfig(serviceName, cfg.Environment)
	tcfg.Enabled = cfg.TracingEnabled
	tcfg.OTLPEndpoint = cfg.OTLPEndpoint
	tcfg.SampleRate = cfg.TraceSampleRate
	a.shutdownFn, err = tracing.InitTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler(5 * time.Second)

	gateway, err := newGateway(cfg, healthHandler, logger)
	if err != nil {
		return nil, err
	}

	opts := []service.Option{service.WithEnvironment(cfg.Environment)}
	if cfg.RedisAddr != "" {
		a.redis, err = database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		opts = append(opts, service.WithLocker(redislock.NewLocker(a.redis), cfg.LockTTL))
		healthHandler.Register("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
		logger.Info("redis binding lock enabled", slog.String("addr", cfg.RedisAddr))
	}
	a.syncer = service.NewSyncer(gateway, logger, opts...)

	var jobs *event.JobProducer
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		jobs = event.NewJobProducer(a.producer, logger)
		healthHandler.Register("kafka", a.producer.Ping)
	}

	if err := a.declareModels(ctx, jobs, healthHandler); err != nil {
		return nil, err
	}

	if cfg.KafkaEnabled {
		a.startConsumers(gateway)
	}

	router := handler.NewRouter(handler.RouterConfig{
		AdminToken:        cfg.AdminToken,
		AdminJWTSecret:    cfg.AdminJWTSecret,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		ReindexInterval:   cfg.ReindexInterval,
		ReindexBurst:      cfg.ReindexBurst,
	}, handler.NewIndexHandler(a.syncer, logger), healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// newGateway builds the configured search backend behind the tracing decorator.
func newGateway(cfg *config.Config, healthHandler *health.Handler, logger *slog.Logger) (engine.Gateway, error) {
	switch cfg.SearchBackend {
	case config.BackendTypesense:
		client, err := typesense.NewWithDefaults(typesense.Config{URL: cfg.TypesenseURL, APIKey: cfg.TypesenseAPIKey}, logger)
		if err != nil {
			return nil, fmt.Errorf("init typesense gateway: %w", err)
		}
		healthHandler.Register("typesense", client.Health)
		logger.Info("typesense gateway initialized", slog.String("url", cfg.TypesenseURL))
		return engine.NewTraced(client, config.BackendTypesense), nil
	case config.BackendElasticsearch:
		es, err := esengine.New(cfg.ElasticsearchURLs, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch gateway: %w", err)
		}
		healthHandler.Register("elasticsearch", es.Ping)
		logger.Info("elasticsearch gateway initialized", slog.Any("urls", cfg.ElasticsearchURLs))
		return engine.NewTraced(es, config.BackendElasticsearch), nil
	default:
		logger.Info("in-memory gateway initialized")
		return engine.NewTraced(memory.New(), config.BackendMemory), nil
	}
}

// declareModels opens the Postgres pool and declares every configured model
// over its table.
func (a *App) declareModels(ctx context.Context, jobs *event.JobProducer, healthHandler *health.Handler) error {
	models, err := a.cfg.ModelSources()
	if err != nil {
		return err
	}
	if len(models) == 0 {
		a.logger.Warn("no models declared; set MODELS to sync tables")
		return nil
	}

	pgCfg := database.DefaultPostgresConfig(a.cfg.PostgresDSN)
	pgCfg.MaxConns = a.cfg.PostgresMaxConns
	a.pool, err = database.NewPostgresPool(ctx, pgCfg, a.logger)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, serviceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	healthHandler.Register("postgres", a.pool.Ping)

	tracer := database.QueryTracer{SlowThreshold: a.cfg.SlowQueryThreshold, Logger: a.logger}
	for _, ms := range models {
		src, err := postgres.NewSource(a.pool, ms.Table, ms.IDColumn, tracer)
		if err != nil {
			return fmt.Errorf("model %s: %w", ms.Name, err)
		}

		idxCfg := domain.DefaultIndexConfiguration()
		idxCfg.IDAttribute = ms.IDColumn
		idxCfg.BatchSize = a.cfg.BatchSize
		idxCfg.PerEnvironment = a.cfg.PerEnvironment
		if jobs != nil {
			idxCfg.Enqueue = jobs.EnqueueFunc(ms.Name, idxCfg)
		}

		m, err := a.syncer.Declare(ms.Name, idxCfg, src)
		if err != nil {
			return fmt.Errorf("declare %s: %w", ms.Name, err)
		}
		a.logger.Info("model declared",
			slog.String("model", ms.Name),
			slog.String("table", ms.Table),
			slog.String("index", m.IndexName()),
		)
	}
	return nil
}

// startConsumers builds one consumer per job topic. Processed job IDs are
// remembered in Redis when it is configured, otherwise in memory.
func (a *App) startConsumers(gateway engine.Gateway) {
	var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	if a.redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.redis, serviceName+":jobs", a.cfg.IdempotencyTTL)
	}

	a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.logger)
	jobConsumer := event.NewJobConsumer(a.syncer, gateway, a.logger)
	handle := pkgkafka.IdempotentHandler(store, a.cfg.KafkaGroupID, jobConsumer.Handle, a.logger)

	topics := []string{event.TopicRecordJobs, event.TopicImportJobs}
	for _, topic := range topics {
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  a.cfg.KafkaBrokers,
			GroupID:  a.cfg.KafkaGroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 16e6,
		}, handle, a.dlq, a.logger)
		a.consumers = append(a.consumers, c)
	}
	a.logger.Info("kafka job consumers initialized",
		slog.Any("brokers", a.cfg.KafkaBrokers),
		slog.Int("topic_count", len(topics)),
	)
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
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

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeConnections())

	if a.shutdownFn != nil {
		if err := a.shutdownFn(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeConnections() error {
	var errs []error
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
		a.producer = nil
	}
	if a.dlq != nil {
		errs = append(errs, a.dlq.Close())
		a.dlq = nil
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}
