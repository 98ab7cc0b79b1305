package di

import (
	"context"
	"fmt"
	"time"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/repository"
	"Aegis/internal/domain/service"
	"Aegis/internal/handler/api"
	"Aegis/internal/realtime"
	internalrepo "Aegis/internal/repository"
	"Aegis/internal/service/ratelimit"
	"Aegis/internal/services/engine"
	"Aegis/internal/usecase"
	"Aegis/pkg/auth"
	pkgcache "Aegis/pkg/cache"
	pkgch "Aegis/pkg/clickhouse"
	"Aegis/pkg/config"
	"Aegis/pkg/database"
	xhttp "Aegis/pkg/http"
	pkgkafka "Aegis/pkg/kafka"
	"Aegis/pkg/logger"
	"Aegis/pkg/metrics"
	"Aegis/pkg/queue"
	"Aegis/pkg/server"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	lgr, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr.With(logger.String("app", cfg.App.Name), logger.String("mode", cfg.App.Mode)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisClient opens the Redis client shared by the queue and locks.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	client, err := pkgcache.NewRedisClient(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 4*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideLocker creates the Redis-backed job lock.
func ProvideLocker(client *redis.Client, cfg *config.Config) repository.Locker {
	return pkgcache.NewRedisCache(client, pkgcache.WithRedisPrefix(cfg.Queue.KeyPrefix))
}

// ProvideDatabase opens PostgreSQL for the postgres store backend; nil otherwise.
func ProvideDatabase(cfg *config.Config) (*database.Client, error) {
	if cfg.Store.Backend != "postgres" {
		return nil, nil
	}
	db, err := database.NewPostgres(database.Option{
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return db, nil
}

// ProvideEventStore picks the store implementation for cfg.Store.Backend and
// upserts the configured seed accounts.
func ProvideEventStore(cfg *config.Config, db *database.Client, client *redis.Client) (repository.EventStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		store repository.EventStore
		put   func(context.Context, *models.Account) error
	)
	if db == nil {
		mem := internalrepo.NewMemoryStore()
		store, put = mem, mem.PutAccount
	} else {
		gs := internalrepo.NewGormStore(db.DB())
		if cfg.Store.AutoMigrate {
			if err := gs.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate store: %w", err)
			}
		}
		store, put = gs, gs.PutAccount
	}

	for _, a := range cfg.Store.Accounts {
		acc := &models.Account{
			ID:            a.ID,
			UserID:        a.UserID,
			Broker:        a.Broker,
			AccountNumber: a.AccountNumber,
			Environment:   a.Environment,
		}
		if err := put(ctx, acc); err != nil {
			return nil, fmt.Errorf("seed account %s: %w", a.ID, err)
		}
	}

	switch cfg.Store.AccountCache {
	case "redis":
		c := pkgcache.NewRedisCache(client, pkgcache.WithRedisPrefix(cfg.Queue.KeyPrefix))
		return internalrepo.NewCachedAccounts(store, c, cfg.Store.AccountCacheTTL), nil
	case "memory":
		c := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(10000), pkgcache.WithMemoryCleanup(cfg.Store.AccountCacheTTL))
		return internalrepo.NewCachedAccounts(store, c, cfg.Store.AccountCacheTTL), nil
	}
	return store, nil
}

// ProvideClickHouseClient creates a ClickHouse client for the clickhouse
// audit backend; nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Audit.Backend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.ClickHouseAuditSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideAuditLog picks the audit sink for cfg.Audit.Backend.
func ProvideAuditLog(cfg *config.Config, store repository.EventStore, db *database.Client, ch *pkgch.Client) repository.AuditLog {
	if ch != nil {
		return internalrepo.NewClickHouseAuditLog(ch, cfg.ClickHouse.Database)
	}
	if db != nil {
		return internalrepo.NewGormAuditLog(db.DB())
	}
	for {
		if al, ok := store.(repository.AuditLog); ok {
			return al
		}
		u, ok := store.(interface{ Unwrap() repository.EventStore })
		if !ok {
			return internalrepo.NewMemoryStore()
		}
		store = u.Unwrap()
	}
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the signals consumer. Only processes serving
// websocket clients consume.
func ProvideKafkaConsumer(cfg *config.Config, lgr *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.ServesAPI() {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.RealtimeGroupID()),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLatestOffset(),
		pkgkafka.WithConsumerLogger(lgr),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvideHub creates the realtime connection hub.
func ProvideHub(lgr *logger.Logger, m repository.Metrics) *realtime.Hub {
	return realtime.NewHub(lgr, m)
}

// ProvideSignalNotifier creates the signals topic handler.
func ProvideSignalNotifier(cfg *config.Config, hub *realtime.Hub, m repository.Metrics, lgr *logger.Logger) *usecase.SignalNotifier {
	return usecase.NewSignalNotifier(cfg.Kafka.SignalsTopic, hub, m, lgr)
}

// ProvideSignalPublisher publishes through Kafka when enabled and straight
// to the hub otherwise.
func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer, notifier *usecase.SignalNotifier) repository.SignalPublisher {
	if producer != nil {
		return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic)
	}
	return notifier
}

// ProvideFailurePublisher reports failed jobs to Kafka when enabled.
func ProvideFailurePublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.FailurePublisher {
	if producer != nil {
		return internalrepo.NewKafkaFailurePublisher(producer, cfg.Kafka.FailuresTopic)
	}
	return internalrepo.NopFailurePublisher{}
}

// ProvideDecisionEngine creates the decision engine HTTP client.
func ProvideDecisionEngine(cfg *config.Config, m repository.Metrics) service.DecisionEngine {
	return engine.New(engine.Config{
		URL:        cfg.Engine.URL,
		Path:       cfg.Engine.Path,
		Timeout:    cfg.Engine.Timeout,
		MaxRetries: cfg.Engine.MaxRetries,
	}, m)
}

// ProvideSignalWorker creates the signal worker use case.
func ProvideSignalWorker(
	cfg *config.Config,
	store repository.EventStore,
	eng service.DecisionEngine,
	pub repository.SignalPublisher,
	locker repository.Locker,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.SignalWorker {
	return usecase.NewSignalWorker(store, eng, pub, locker, m, lgr, cfg.Queue.LeaseTimeout)
}

// ProvideSignalJob adapts the worker to the queue.
func ProvideSignalJob(w *usecase.SignalWorker) *usecase.SignalJob {
	return usecase.NewSignalJob(w)
}

// ProvideFailureReporter creates the queue failure handler.
func ProvideFailureReporter(pub repository.FailurePublisher, m repository.Metrics, lgr *logger.Logger) *usecase.FailureReporter {
	return usecase.NewFailureReporter(pub, m, lgr)
}

// ProvideQueue creates the Redis job queue. The api role only produces, the
// worker role only consumes and the all role does both.
func ProvideQueue(
	cfg *config.Config,
	lgr *logger.Logger,
	client *redis.Client,
	job *usecase.SignalJob,
	reporter *usecase.FailureReporter,
	rec *metrics.Recorder,
) *queue.RedisQueue {
	var mode queue.QueueMode
	switch {
	case cfg.ServesAPI() && cfg.RunsWorkers():
		mode = queue.ModeProducerConsumer
	case cfg.RunsWorkers():
		mode = queue.ModeConsumerOnly
	default:
		mode = queue.ModeProducerOnly
	}
	q := queue.NewRedisQueue(lgr, &queue.QueueConfig{
		Workers:       cfg.Queue.Workers,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		RetryDelay:    cfg.Queue.RetryDelay,
		MaxRetryDelay: cfg.Queue.MaxRetryDelay,
		LeaseTimeout:  cfg.Queue.LeaseTimeout,
		PollInterval:  cfg.Queue.PollInterval,
		ReapInterval:  cfg.Queue.ReapInterval,
	}, client, mode,
		queue.WithKeyPrefix(cfg.Queue.KeyPrefix),
		queue.WithFailureHandler(reporter.Handle),
		queue.WithObserver(rec),
	)
	if cfg.RunsWorkers() {
		q.RegisterJob(job)
	}
	return q
}

// ProvideJobQueue exposes the queue to the gateway.
func ProvideJobQueue(q *queue.RedisQueue) repository.JobQueue {
	return internalrepo.NewRedisJobQueue(q)
}

// ProvideOrderFlowGateway creates the ingestion use case.
func ProvideOrderFlowGateway(
	store repository.EventStore,
	audit repository.AuditLog,
	jq repository.JobQueue,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.OrderFlowGateway {
	return usecase.NewOrderFlowGateway(store, audit, jq, m, lgr)
}

// ProvideSignalsUsecase creates the signal query/decision use case.
func ProvideSignalsUsecase(store repository.EventStore, audit repository.AuditLog, m repository.Metrics, lgr *logger.Logger) *usecase.SignalsUsecase {
	return usecase.NewSignalsUsecase(store, audit, m, lgr)
}

// ProvideRateLimiter creates the per-identity ingestion limiter.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
}

// ProvideRouteGuards builds the auth and rate-limit middlewares.
func ProvideRouteGuards(cfg *config.Config, limiter *ratelimit.Limiter) api.RouteGuards {
	v := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	guards := api.RouteGuards{
		RequireAuth:  auth.Middleware(v, true),
		OptionalAuth: auth.Middleware(v, false, auth.AllowQueryToken()),
	}
	if cfg.RateLimit.Enabled {
		guards.RateLimit = limiter.Middleware(func(c echo.Context) string {
			if cl := auth.ClaimsFrom(c); cl != nil {
				return "user:" + cl.UserID()
			}
			return ""
		})
	}
	return guards
}

// ProvideHTTPHandler assembles every route group.
func ProvideHTTPHandler(
	cfg *config.Config,
	lgr *logger.Logger,
	gateway *usecase.OrderFlowGateway,
	signals *usecase.SignalsUsecase,
	hub *realtime.Hub,
	m repository.Metrics,
	guards api.RouteGuards,
	store repository.EventStore,
	jq repository.JobQueue,
) xhttp.Handler {
	rtCfg := realtime.Config{
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
		WriteTimeout:      cfg.Realtime.WriteTimeout,
		SendBuffer:        cfg.Realtime.SendBuffer,
		MaxMessageBytes:   cfg.Realtime.MaxMessageBytes,
	}
	return xhttp.Handlers{
		api.NewHealthEchoHandler(map[string]api.Checker{
			"store": store.Ping,
			"redis": jq.Ping,
		}),
		api.NewOrderFlowEchoHandler(lgr, gateway, guards),
		api.NewSignalsEchoHandler(lgr, signals, guards),
		api.NewWSEchoHandler(lgr, hub, rtCfg, m, guards),
	}
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, h xhttp.Handler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, xhttp.WithCORSOrigins(cfg.Server.CORSOrigins))
	}
	return xhttp.NewServer(lgr, h, opts...)
}

// ProvideApp wires the lifecycle. Stop order is the reverse of Add order:
// http, realtime, consumer, limiter sweeper, queue.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	q *queue.RedisQueue,
	httpServer *xhttp.Server,
	hub *realtime.Hub,
	consumer *pkgkafka.Consumer,
	notifier *usecase.SignalNotifier,
	limiter *ratelimit.Limiter,
	producer *pkgkafka.Producer,
	redisClient *redis.Client,
	db *database.Client,
	ch *pkgch.Client,
) *server.App {
	app := server.New(lgr, cfg.Server.ShutdownTimeout)

	app.OnShutdown("redis", redisClient.Close)
	if db != nil {
		app.OnShutdown("postgres", db.Close)
	}
	if ch != nil {
		app.OnShutdown("clickhouse", ch.Close)
	}
	if producer != nil {
		app.OnShutdown("kafka producer", producer.Close)
		if cfg.Log.Collector.Enabled {
			lgr.AddCollector(&logger.CollectionConfig{
				TimeInterval:   cfg.Log.Collector.FlushInterval,
				CountThreshold: cfg.Log.Collector.MaxEntries,
				Topic:          cfg.Kafka.LogsTopic,
				Publisher:      producer,
			})
			app.OnShutdown("log collector", func() error {
				lgr.RemoveCollector()
				return nil
			})
		}
	}

	app.Add("queue", q)

	if cfg.ServesAPI() {
		app.Add("ratelimit sweeper", sweeper(limiter, time.Minute))
		if consumer != nil {
			consumer.RegisterHandler(notifier)
			app.Add("kafka consumer", consumer)
		}
		app.Add("realtime", server.Hook{OnStop: func(context.Context) error { return hub.Close() }})
		app.Add("http", httpServer)
	}
	return app
}

func sweeper(l *ratelimit.Limiter, every time.Duration) server.Component {
	stop := make(chan struct{})
	return server.Hook{
		OnStart: func() error {
			go func() {
				t := time.NewTicker(every)
				defer t.Stop()
				for {
					select {
					case <-stop:
						return
					case <-t.C:
						l.Sweep()
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			close(stop)
			return nil
		},
	}
}
