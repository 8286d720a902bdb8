package api

import (
	"PatternPulse/internal/breaker"
	drepo "PatternPulse/internal/domain/repository"
	"PatternPulse/internal/eventbus"
	"PatternPulse/internal/rescache"
	"PatternPulse/internal/workqueue"
	"PatternPulse/pkg/cache"
	applogger "PatternPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// OpsHandler exposes the operator surface: breaker control, runtime
// statistics, priority management, and stored signal lookups.
type OpsHandler struct {
	logger    *applogger.Logger
	collector *applogger.Collector
	breakers  *breaker.Registry
	rescache  *rescache.Cache
	bus       *eventbus.Bus
	queue     *workqueue.Queue
	manager   *workqueue.Manager
	signals   drepo.SignalStore
	cache     cache.Service
}

// NewOpsHandler creates the operator handler. The signal store, cache
// service, and collector may be nil; the corresponding endpoints degrade
// instead of failing.
func NewOpsHandler(
	logger *applogger.Logger,
	breakers *breaker.Registry,
	rc *rescache.Cache,
	bus *eventbus.Bus,
	queue *workqueue.Queue,
	manager *workqueue.Manager,
) *OpsHandler {
	return &OpsHandler{
		logger:   logger,
		breakers: breakers,
		rescache: rc,
		bus:      bus,
		queue:    queue,
		manager:  manager,
	}
}

// SetSignalStore injects the signal store backing /api/signals.
func (h *OpsHandler) SetSignalStore(s drepo.SignalStore) { h.signals = s }

// SetCache injects the shared cache used for latest-signal lookups.
func (h *OpsHandler) SetCache(c cache.Service) { h.cache = c }

// SetCollector injects the recent-error ring backing /api/errors.
func (h *OpsHandler) SetCollector(c *applogger.Collector) { h.collector = c }

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/breakers", h.ListBreakers)
	g.GET("/breakers/:symbol", h.GetBreaker)
	g.POST("/breakers/:symbol/reset", h.ResetBreaker)
	g.GET("/cache/stats", h.CacheStats)
	g.GET("/events/stats", h.EventStats)
	g.GET("/queue/stats", h.QueueStats)
	g.GET("/priority", h.GetPriorities)
	g.PUT("/priority", h.SetPriority)
	g.GET("/signals", h.ListSignals)
	g.GET("/signals/latest", h.LatestSignal)
	g.GET("/errors", h.RecentErrors)
}
