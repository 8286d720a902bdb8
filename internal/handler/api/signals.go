package api

import (
	"time"

	models "PatternPulse/internal/domain/models"
	"PatternPulse/internal/subscribers"
	xhttp "PatternPulse/pkg/http"
	applogger "PatternPulse/pkg/logger"
	"PatternPulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// LatestSignal returns the newest signal for a symbol, served from the
// cache when possible and falling back to the store.
func (h *OpsHandler) LatestSignal(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol required"))
	}

	if h.cache != nil {
		var sig *models.PatternSignal
		if err := h.cache.Get(c.Request().Context(), subscribers.LatestSignalKey(symbol), &sig); err == nil && sig != nil {
			return xhttp.SuccessResponse(c, sig)
		}
	}

	if h.signals == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no signal for symbol %s", symbol))
	}
	now := time.Now()
	sigs, err := h.signals.Query(c.Request().Context(), symbol, now.Add(-24*time.Hour), now, 1)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("latest signal query", applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError("latest signal query failed").WithError(err))
	}
	if len(sigs) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no signal for symbol %s", symbol))
	}
	return xhttp.SuccessResponse(c, sigs[0])
}

// ListSignals returns stored signals for a symbol, newest first. The
// range defaults to the last 24 hours aligned to bar boundaries.
func (h *OpsHandler) ListSignals(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol required"))
	}
	if h.signals == nil {
		return xhttp.ServiceUnavailableResponse(c, "signal store disabled")
	}

	now := time.Now()
	from := xhttp.ParseTimeDefault(c.QueryParam("from"), now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), now)
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)
	tf := c.QueryParam("tf")
	if tf != "" {
		from, to = util.AlignFromTo(from, to, tf)
	}

	sigs, err := h.signals.Query(c.Request().Context(), symbol, from, to, limit)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("signals query", applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError("signals query failed").WithError(err))
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}

// RecentErrors returns the deduplicated ring of recent warn/error log
// entries.
func (h *OpsHandler) RecentErrors(c echo.Context) error {
	if h.collector == nil {
		return xhttp.SuccessResponse(c, []applogger.Entry{})
	}
	entries := h.collector.Snapshot()
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

// Health reports liveness, including the signal store when enabled.
func (h *OpsHandler) Health(c echo.Context) error {
	status := map[string]string{"status": "ok"}
	if h.signals != nil {
		if err := h.signals.Health(c.Request().Context()); err != nil {
			status["status"] = "degraded"
			status["signal_store"] = err.Error()
			return xhttp.ServiceUnavailableResponse(c, status)
		}
		status["signal_store"] = "ok"
	}
	return xhttp.SuccessResponse(c, status)
}
