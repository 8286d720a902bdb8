package di

import (
	"context"
	"fmt"
	"time"

	"PatternPulse/internal/breaker"
	drepo "PatternPulse/internal/domain/repository"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/handler/api"
	"PatternPulse/internal/pipeline"
	"PatternPulse/internal/repository/signalstore"
	"PatternPulse/internal/rescache"
	"PatternPulse/internal/scanner"
	"PatternPulse/internal/service/marketdata"
	"PatternPulse/internal/stages"
	"PatternPulse/internal/subscribers"
	"PatternPulse/internal/usecase"
	"PatternPulse/internal/workqueue"
	pkgcache "PatternPulse/pkg/cache"
	pkgch "PatternPulse/pkg/clickhouse"
	"PatternPulse/pkg/config"
	pkgkafka "PatternPulse/pkg/kafka"
	applogger "PatternPulse/pkg/logger"
	"PatternPulse/pkg/metrics"
	"PatternPulse/pkg/server"
)

// ProvideCollector creates the recent-error ring served by /api/errors.
func ProvideCollector(cfg *config.Config) *applogger.Collector {
	limit := cfg.Log.RecentLimit
	if limit <= 0 {
		limit = 256
	}
	return applogger.NewCollector(limit)
}

// ProvideLogger creates the application logger with the collector attached.
func ProvideLogger(cfg *config.Config, collector *applogger.Collector) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AttachCollector(collector)
	return l, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideResultCache creates the stage result cache.
func ProvideResultCache(cfg *config.Config, m drepo.Metrics) *rescache.Cache {
	opts := []rescache.Option{rescache.WithMetrics(m)}
	if cfg.Cache.MaxSize > 0 {
		opts = append(opts, rescache.WithMaxSize(cfg.Cache.MaxSize))
	}
	if cfg.Cache.TTL > 0 {
		opts = append(opts, rescache.WithTTL(cfg.Cache.TTL))
	}
	if cfg.Cache.CleanupInterval > 0 {
		opts = append(opts, rescache.WithCleanupInterval(cfg.Cache.CleanupInterval))
	}
	return rescache.New(opts...)
}

// ProvideBus creates the event bus.
func ProvideBus(l *applogger.Logger, m drepo.Metrics) *eventbus.Bus {
	return eventbus.NewBus(eventbus.WithLogger(l), eventbus.WithMetrics(m))
}

// ProvideQueue creates the bounded scan queue.
func ProvideQueue(cfg *config.Config, m drepo.Metrics) *workqueue.Queue {
	opts := []workqueue.QueueOption{workqueue.WithQueueMetrics(m)}
	if cfg.Scan.QueueSize > 0 {
		opts = append(opts, workqueue.WithMaxSize(cfg.Scan.QueueSize))
	}
	return workqueue.NewQueue(opts...)
}

// ProvideManager creates the per-symbol priority manager.
func ProvideManager() *workqueue.Manager {
	return workqueue.NewManager()
}

// ProvideBreakerRegistry creates the per-symbol breaker registry with
// transitions published to the bus.
func ProvideBreakerRegistry(cfg *config.Config, bus *eventbus.Bus, l *applogger.Logger, m drepo.Metrics) *breaker.Registry {
	opts := []breaker.RegistryOption{
		breaker.WithNotify(scanner.BreakerNotifier(bus, l)),
		breaker.WithMetrics(m),
	}
	if cfg.Breaker.Threshold > 0 {
		opts = append(opts, breaker.WithThreshold(cfg.Breaker.Threshold))
	}
	if len(cfg.Breaker.Backoff) > 0 {
		opts = append(opts, breaker.WithBackoff(cfg.Breaker.Backoff))
	}
	return breaker.NewRegistry(opts...)
}

// ProvideHistory creates the per-symbol bar history.
func ProvideHistory(cfg *config.Config) *stages.History {
	return stages.NewHistory(cfg.Scan.Lookback)
}

// ProvideCoordinator creates the pipeline coordinator with the full
// stage chain registered.
func ProvideCoordinator(
	cfg *config.Config,
	hist *stages.History,
	rc *rescache.Cache,
	bus *eventbus.Bus,
	l *applogger.Logger,
	m drepo.Metrics,
) *pipeline.Coordinator {
	coord := pipeline.NewCoordinator(
		pipeline.WithLogger(l),
		pipeline.WithMetrics(m),
	)
	stages.Register(coord, stages.Deps{
		History:       hist,
		Cache:         rc,
		Bus:           bus,
		Logger:        l,
		MinRiskReward: cfg.Scan.MinRR,
	})
	return coord
}

// ProvideScanner creates the worker pool draining the scan queue.
func ProvideScanner(
	cfg *config.Config,
	q *workqueue.Queue,
	reg *breaker.Registry,
	coord *pipeline.Coordinator,
	bus *eventbus.Bus,
	l *applogger.Logger,
	m drepo.Metrics,
) *scanner.Scanner {
	opts := []scanner.Option{scanner.WithLogger(l), scanner.WithMetrics(m)}
	if cfg.Scan.Workers > 0 {
		opts = append(opts, scanner.WithWorkers(cfg.Scan.Workers))
	}
	if cfg.Scan.GetTimeout > 0 {
		opts = append(opts, scanner.WithGetTimeout(cfg.Scan.GetTimeout))
	}
	return scanner.New(q, reg, coord, bus, opts...)
}

// ProvideBarIngest creates the bar ingestion entry point shared by Kafka
// and WebSocket sources.
func ProvideBarIngest(
	cfg *config.Config,
	q *workqueue.Queue,
	mgr *workqueue.Manager,
	l *applogger.Logger,
	m drepo.Metrics,
) *usecase.BarIngest {
	return usecase.NewBarIngest(cfg.Kafka.BarsTopic, q, mgr, l, m)
}

// ProvideClickHouseClient creates the ClickHouse client, or nil when the
// store is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideSignalStore creates the signal store, or nil without ClickHouse.
func ProvideSignalStore(client *pkgch.Client) (drepo.SignalStore, error) {
	if client == nil {
		return nil, nil
	}
	store := signalstore.New(client)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("signal store schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates the signal producer, or nil when no
// brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.SignalsTopic == "" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
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

// ProvideKafkaConsumer creates the bar consumer, or nil when ingestion
// comes from the WebSocket stream instead.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Ingest.Source != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMarketStream creates the WebSocket stream, or nil when
// ingestion comes from Kafka instead.
func ProvideMarketStream(cfg *config.Config, l *applogger.Logger) drepo.MarketStream {
	if cfg.Ingest.Source != "websocket" {
		return nil
	}
	return marketdata.New(marketdata.Config{
		URL:            cfg.Stream.URL,
		APIKey:         cfg.Stream.APIKey,
		Symbols:        cfg.Scan.Symbols,
		Timeframes:     cfg.Scan.Timeframes,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
		PingInterval:   cfg.Stream.PingInterval,
		MaxBarsPerSec:  cfg.Stream.MaxBarsPerSec,
	}, l)
}

// ProvidePump drives the WebSocket stream into bar ingestion.
func ProvidePump(stream drepo.MarketStream, ingest *usecase.BarIngest, l *applogger.Logger) *marketdata.Pump {
	if stream == nil {
		return nil
	}
	return marketdata.NewPump(stream, ingest, l)
}

// ProvideCacheService creates the shared cache: layered over Redis when
// enabled, in-memory otherwise.
func ProvideCacheService(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return pkgcache.NewLayeredCache(rc), nil
}

// ProvideSignalSink creates the subscriber persisting generated signals.
func ProvideSignalSink(cfg *config.Config, store drepo.SignalStore, svc pkgcache.Service, l *applogger.Logger) *subscribers.SignalSink {
	opts := []subscribers.SinkOption{subscribers.WithSinkLogger(l)}
	if cfg.ClickHouse.BatchSize > 0 {
		opts = append(opts, subscribers.WithBatchSize(cfg.ClickHouse.BatchSize))
	}
	if cfg.ClickHouse.FlushInterval > 0 {
		opts = append(opts, subscribers.WithFlushInterval(cfg.ClickHouse.FlushInterval))
	}
	return subscribers.NewSignalSink(store, svc, opts...)
}

// ProvideSignalPublisher creates the subscriber forwarding signals to
// Kafka, or nil without a producer.
func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) *subscribers.SignalPublisher {
	if producer == nil {
		return nil
	}
	return subscribers.NewSignalPublisher(producer, cfg.Kafka.SignalsTopic, l)
}

// ProvideAlertLogger creates the subscriber logging notable events.
func ProvideAlertLogger(l *applogger.Logger) *subscribers.AlertLogger {
	return subscribers.NewAlertLogger(l)
}

// ProvideOpsHandler creates the operator HTTP handler.
func ProvideOpsHandler(
	l *applogger.Logger,
	collector *applogger.Collector,
	reg *breaker.Registry,
	rc *rescache.Cache,
	bus *eventbus.Bus,
	q *workqueue.Queue,
	mgr *workqueue.Manager,
	store drepo.SignalStore,
	svc pkgcache.Service,
) *api.OpsHandler {
	h := api.NewOpsHandler(l, reg, rc, bus, q, mgr)
	h.SetCollector(collector)
	if store != nil {
		h.SetSignalStore(store)
	}
	if svc != nil {
		h.SetCache(svc)
	}
	return h
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	bus *eventbus.Bus,
	rc *rescache.Cache,
	scn *scanner.Scanner,
	ingest *usecase.BarIngest,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	pump *marketdata.Pump,
	chClient *pkgch.Client,
	store drepo.SignalStore,
	svc pkgcache.Service,
	sink *subscribers.SignalSink,
	pub *subscribers.SignalPublisher,
	alerts *subscribers.AlertLogger,
	ops *api.OpsHandler,
) *server.App {
	return server.New(server.Deps{
		Config:    cfg,
		Logger:    l,
		Bus:       bus,
		Rescache:  rc,
		Scanner:   scn,
		BarIngest: ingest,
		Consumer:  consumer,
		Producer:  producer,
		Pump:      pump,
		CHClient:  chClient,
		Store:     store,
		Cache:     svc,
		Sink:      sink,
		Publisher: pub,
		Alerts:    alerts,
		Handler:   ops,
	})
}
