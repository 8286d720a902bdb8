package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drepo "PatternPulse/internal/domain/repository"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/handler/api"
	"PatternPulse/internal/rescache"
	"PatternPulse/internal/scanner"
	"PatternPulse/internal/service/marketdata"
	"PatternPulse/internal/subscribers"
	"PatternPulse/internal/usecase"
	pkgcache "PatternPulse/pkg/cache"
	pkgch "PatternPulse/pkg/clickhouse"
	"PatternPulse/pkg/config"
	xhttp "PatternPulse/pkg/http"
	pkgkafka "PatternPulse/pkg/kafka"
	applogger "PatternPulse/pkg/logger"
)

// Deps carries everything the application lifecycle owns. Optional
// members (consumer, producer, pump, store) may be nil depending on
// configuration.
type Deps struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Bus       *eventbus.Bus
	Rescache  *rescache.Cache
	Scanner   *scanner.Scanner
	BarIngest *usecase.BarIngest
	Consumer  *pkgkafka.Consumer
	Producer  *pkgkafka.Producer
	Pump      *marketdata.Pump
	CHClient  *pkgch.Client
	Store     drepo.SignalStore
	Cache     pkgcache.Service
	Sink      *subscribers.SignalSink
	Publisher *subscribers.SignalPublisher
	Alerts    *subscribers.AlertLogger
	Handler   *api.OpsHandler
}

// App encapsulates the application lifecycle: subscribers, ingestion,
// the scan worker pool, and the operator HTTP server.
type App struct {
	deps       Deps
	httpServer *xhttp.Server
}

// New creates an App from its wired dependencies.
func New(deps Deps) *App {
	return &App{deps: deps}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := a.deps.Config
	l := a.deps.Logger

	// Subscribers first, so no event published after startup is missed.
	if a.deps.Sink != nil {
		a.deps.Sink.Attach(a.deps.Bus)
	}
	if a.deps.Publisher != nil {
		a.deps.Publisher.Attach(a.deps.Bus)
	}
	if a.deps.Alerts != nil {
		a.deps.Alerts.Attach(a.deps.Bus)
	}

	// Ingestion source: Kafka consumer or WebSocket pump.
	if a.deps.Consumer != nil {
		a.deps.Consumer.RegisterHandler(a.deps.BarIngest)
		a.deps.Consumer.WithConsumerHook(pkgkafka.NoopHook{})
		go func() {
			if err := a.deps.Consumer.Start(); err != nil {
				l.Error("kafka consumer", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.deps.BarIngest.Topic()))
	}
	if a.deps.Pump != nil {
		go func() {
			if err := a.deps.Pump.Run(ctx); err != nil && ctx.Err() == nil {
				l.Error("market stream pump", applogger.Error(err))
			}
		}()
		l.Info("market stream started", applogger.Strings("symbols", cfg.Scan.Symbols))
	}

	a.deps.Scanner.Start(ctx)
	l.Info("scanner started",
		applogger.Int("workers", cfg.Scan.Workers),
		applogger.Strings("symbols", cfg.Scan.Symbols))

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
	}
	a.httpServer = xhttp.NewServer(a.deps.Handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithServerLogger(l),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown stops ingestion before the scanner so the queue drains, then
// flushes the sink and releases infrastructure clients.
func (a *App) shutdown() error {
	cfg := a.deps.Config
	l := a.deps.Logger

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.deps.Consumer != nil {
		if err := a.deps.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop", applogger.Error(err))
		}
	}

	a.deps.Scanner.Stop()

	if a.deps.Sink != nil {
		a.deps.Sink.Close()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			l.Error("http shutdown", applogger.Error(err))
		}
	}

	if a.deps.Producer != nil {
		if err := a.deps.Producer.Close(); err != nil {
			l.Warn("kafka producer close", applogger.Error(err))
		}
	}
	if a.deps.Store != nil {
		if err := a.deps.Store.Close(); err != nil {
			l.Warn("signal store close", applogger.Error(err))
		}
	} else if a.deps.CHClient != nil {
		if err := a.deps.CHClient.Close(); err != nil {
			l.Warn("clickhouse close", applogger.Error(err))
		}
	}
	if a.deps.Cache != nil {
		if err := a.deps.Cache.Close(); err != nil {
			l.Warn("cache close", applogger.Error(err))
		}
	}
	if a.deps.Rescache != nil {
		a.deps.Rescache.Close()
	}

	l.Info("shutdown complete")
	return nil
}
