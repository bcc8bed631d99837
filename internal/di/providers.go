package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"SignalGrid/internal/domain/repository"
	"SignalGrid/internal/handler/api"
	internalrepo "SignalGrid/internal/repository"
	"SignalGrid/internal/service/fanout"
	"SignalGrid/internal/service/marketaux"
	"SignalGrid/internal/service/ratelimit"
	"SignalGrid/internal/usecase"
	"SignalGrid/pkg/cache"
	pkgch "SignalGrid/pkg/clickhouse"
	"SignalGrid/pkg/config"
	xhttp "SignalGrid/pkg/http"
	pkgkafka "SignalGrid/pkg/kafka"
	applogger "SignalGrid/pkg/logger"
	"SignalGrid/pkg/metrics"
	"SignalGrid/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
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
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger creates the application logger. Error entries are shipped to
// log.collect_topic when Kafka is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Log.CollectTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Log.CollectTopic,
			Publisher:      internalrepo.NewLogPublisher(producer),
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideGridStore opens the durable store selected by store.type without
// requiring it to answer. An unreachable store is logged and counted and the
// grid runs from memory until it comes back.
func ProvideGridStore(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (repository.GridStore, error) {
	sl := l.With(applogger.String("component", "store"), applogger.String("type", cfg.Store.Type))
	store, err := openGridStore(cfg, true, sl)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Health(ctx); err != nil {
		m.RecordError("store_connect")
		sl.Warn("grid store unreachable, serving from memory", applogger.Error(err))
	}
	return store, nil
}

// OpenGridStore opens the durable store and fails unless it answers.
func OpenGridStore(cfg *config.Config) (repository.GridStore, error) {
	return openGridStore(cfg, false, applogger.Nop())
}

func openGridStore(cfg *config.Config, lazy bool, l *applogger.Logger) (repository.GridStore, error) {
	switch cfg.Store.Type {
	case "clickhouse":
		ch := cfg.Store.ClickHouse
		opts := []pkgch.ClientOption{
			pkgch.WithHost(ch.Host),
			pkgch.WithPort(ch.Port),
			pkgch.WithDatabase("default"),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
			pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
		}
		if lazy {
			opts = append(opts, pkgch.WithLazyConnect())
		}
		client, err := pkgch.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		store := internalrepo.NewClickHouseGridStore(client.DB(), ch.Database, ch.Table)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, store.SchemaStatements()); err != nil {
			if lazy {
				// Writes fail until the schema exists; restart once ClickHouse is up.
				l.Error("clickhouse schema not initialised", applogger.Error(err))
				return store, nil
			}
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return store, nil
	default:
		r := cfg.Store.Redis
		opts := []cache.RedisOption{
			cache.WithRedisHost(r.Host),
			cache.WithRedisPort(r.Port),
			cache.WithRedisPassword(r.Password),
			cache.WithRedisDB(r.DB),
			cache.WithRedisPool(r.PoolSize, r.MinIdleConns, r.PoolTimeout),
			cache.WithRedisPrefix(r.Prefix),
		}
		if lazy {
			opts = append(opts, cache.WithRedisLazyConnect())
		}
		rc, err := cache.NewRedisCache(opts...)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return internalrepo.NewRedisGridStore(rc, r.ScanCount), nil
	}
}

// ProvideWriteBehind creates the asynchronous persistence queue.
func ProvideWriteBehind(store repository.GridStore, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.WriteBehind {
	return usecase.NewWriteBehind(store, m,
		usecase.WithQueueSize(cfg.Grid.PersistBuffer),
		usecase.WithPutTimeout(cfg.Grid.PersistTimeout),
		usecase.WithWriteBehindLogger(l.With(applogger.String("component", "persist"))),
	)
}

// ProvideGridEngine creates the in-memory grid.
func ProvideGridEngine(store repository.GridStore, wb *usecase.WriteBehind, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.GridEngine {
	return usecase.NewGridEngine(store, wb, m,
		usecase.WithRetention(cfg.Grid.Retention),
		usecase.WithLoadTimeout(cfg.Grid.LoadTimeout),
		usecase.WithEngineLogger(l.With(applogger.String("component", "grid"))),
	)
}

// ProvideHub creates the viewer fan-out hub.
func ProvideHub(engine *usecase.GridEngine, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *fanout.Hub {
	return fanout.NewHub(engine, m,
		fanout.WithHeartbeat(cfg.Fanout.HeartbeatInterval),
		fanout.WithSendBuffer(cfg.Fanout.SendBuffer),
		fanout.WithWriteTimeout(cfg.Fanout.WriteTimeout),
		fanout.WithReadLimit(cfg.Fanout.ReadLimit),
		fanout.WithLogger(l.With(applogger.String("component", "fanout"))),
	)
}

// ProvideNewsFeed creates the MarketAux client.
func ProvideNewsFeed(cfg *config.Config) repository.NewsFeed {
	return marketaux.New(marketaux.Config{
		BaseURL:   cfg.News.BaseURL,
		APIKey:    cfg.News.APIKey,
		Countries: cfg.News.Countries,
		Language:  cfg.News.Language,
		Limit:     cfg.News.Limit,
	}, xhttp.NewClient(xhttp.WithTimeout(cfg.News.FetchTimeout)))
}

// ProvideNewsPoller creates the news poller and attaches its cache to the hub.
func ProvideNewsPoller(feed repository.NewsFeed, hub *fanout.Hub, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.NewsPoller {
	p := usecase.NewNewsPoller(feed, hub, m,
		usecase.WithPollInterval(cfg.News.PollInterval),
		usecase.WithFetchTimeout(cfg.News.FetchTimeout),
		usecase.WithNewsLogger(l.With(applogger.String("component", "news"))),
	)
	hub.SetNewsSource(p)
	return p
}

// ProvideSessionScheduler creates the market-session scheduler driving the news poller.
func ProvideSessionScheduler(poller *usecase.NewsPoller, m repository.Metrics, cfg *config.Config, l *applogger.Logger) (*usecase.SessionScheduler, error) {
	window, err := usecase.NewSessionWindow(cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close, cfg.Session.RestDays)
	if err != nil {
		return nil, fmt.Errorf("session window: %w", err)
	}
	return usecase.NewSessionScheduler(window, poller, m,
		usecase.WithCheckInterval(cfg.Session.CheckInterval),
		usecase.WithSchedulerLogger(l.With(applogger.String("component", "session"))),
	), nil
}

// ProvideJournal creates the update journal, or nil when Kafka is disabled.
func ProvideJournal(producer *pkgkafka.Producer, cfg *config.Config) repository.Journal {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaJournal(producer, cfg.Kafka.UpdatesTopic)
}

// ProvideSignalIngest creates the shared ingest path.
func ProvideSignalIngest(engine *usecase.GridEngine, hub *fanout.Hub, journal repository.Journal, m repository.Metrics, cfg *config.Config, l *applogger.Logger) *usecase.SignalIngest {
	opts := []usecase.IngestOption{usecase.WithIngestLogger(l.With(applogger.String("component", "ingest")))}
	if journal != nil {
		opts = append(opts, usecase.WithJournal(journal, cfg.Kafka.Producer.WriteTimeout))
	}
	return usecase.NewSignalIngest(engine, hub, m, opts...)
}

// ProvideKafkaConsumer creates the signals topic consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, ingest *usecase.SignalIngest, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	cl := l.With(applogger.String("component", "kafka"))
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(cl),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.LoggingHook{Log: cl, Slow: time.Second}))
	consumer.RegisterHandler(usecase.NewSignalsTopicHandler(cfg.Kafka.SignalsTopic, ingest))
	return consumer, nil
}

// ProvideRateLimiter creates the webhook rate limiter, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.Ingest.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.Ingest.RateLimit.Capacity, cfg.Ingest.RateLimit.RefillPerSec)
}

// ProvideHTTPServer builds the echo server with every route registered.
func ProvideHTTPServer(
	cfg *config.Config,
	reg *prometheus.Registry,
	l *applogger.Logger,
	engine *usecase.GridEngine,
	hub *fanout.Hub,
	ingest *usecase.SignalIngest,
	limiter *ratelimit.Limiter,
	store repository.GridStore,
	scheduler *usecase.SessionScheduler,
) *xhttp.Server {
	hl := l.With(applogger.String("component", "http"))

	var rl api.RateLimiter
	if limiter != nil {
		rl = limiter
	}
	handlers := []xhttp.Handler{
		api.NewWebhookHandler(ingest, rl, hl),
		api.NewWSHandler(hub, hl),
		api.NewGridHandler(engine),
		api.NewHealthHandler(store, hub.Len, func() string { return string(scheduler.State()) }),
	}

	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithStaticDir(cfg.Server.StaticDir),
		xhttp.WithLogger(hl),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil, nil))
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	store repository.GridStore,
	wb *usecase.WriteBehind,
	engine *usecase.GridEngine,
	hub *fanout.Hub,
	scheduler *usecase.SessionScheduler,
	consumer *pkgkafka.Consumer,
	journal repository.Journal,
	limiter *ratelimit.Limiter,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(server.Deps{
		Config:    cfg,
		Logger:    l,
		Store:     store,
		Persist:   wb,
		Engine:    engine,
		Hub:       hub,
		Scheduler: scheduler,
		Consumer:  consumer,
		Journal:   journal,
		Limiter:   limiter,
		HTTP:      httpServer,
	})
}
