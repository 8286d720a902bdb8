package api

import (
	"PatternPulse/internal/workqueue"
	xhttp "PatternPulse/pkg/http"
	applogger "PatternPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PriorityRequest sets the scan priority for one symbol.
type PriorityRequest struct {
	Symbol   string `json:"symbol" validate:"required,min=1,max=12"`
	Priority string `json:"priority" validate:"required"`
}

// CacheStats returns hit/miss counters for the stage result cache.
func (h *OpsHandler) CacheStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.rescache.Stats())
}

// EventStats returns publish/error counters for the event bus.
func (h *OpsHandler) EventStats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.bus.Stats())
}

// QueueStats returns the current queue depth and per-symbol priorities.
func (h *OpsHandler) QueueStats(c echo.Context) error {
	prios := make(map[string]string, len(h.manager.Snapshot()))
	for sym, p := range h.manager.Snapshot() {
		prios[sym] = p.String()
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"depth":      h.queue.Len(),
		"priorities": prios,
	})
}

// GetPriorities returns every symbol with a non-default priority.
func (h *OpsHandler) GetPriorities(c echo.Context) error {
	out := make(map[string]string)
	for sym, p := range h.manager.Snapshot() {
		out[sym] = p.String()
	}
	return xhttp.SuccessResponse(c, out)
}

// SetPriority updates the scan priority for a symbol. Takes effect on
// the symbol's next enqueue; items already queued keep their level.
func (h *OpsHandler) SetPriority(c echo.Context) error {
	req := &PriorityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := workqueue.ParsePriority(req.Priority)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	h.manager.SetPriority(req.Symbol, p)
	if h.logger != nil {
		h.logger.Info("priority updated",
			applogger.String("symbol", req.Symbol),
			applogger.String("priority", p.String()),
		)
	}
	return xhttp.SuccessResponse(c, map[string]string{
		"symbol":   req.Symbol,
		"priority": p.String(),
	})
}
