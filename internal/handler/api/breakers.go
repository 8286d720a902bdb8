package api

import (
	xhttp "PatternPulse/pkg/http"
	applogger "PatternPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ListBreakers returns the state of every known breaker.
func (h *OpsHandler) ListBreakers(c echo.Context) error {
	snaps := h.breakers.Snapshots()
	return xhttp.ListResponse(c, snaps, int64(len(snaps)))
}

// GetBreaker returns one breaker's state without creating it.
func (h *OpsHandler) GetBreaker(c echo.Context) error {
	symbol := c.Param("symbol")
	b, ok := h.breakers.Lookup(symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no breaker for symbol %s", symbol))
	}
	return xhttp.SuccessResponse(c, b.Snapshot())
}

// ResetBreaker forces a breaker back to closed state.
func (h *OpsHandler) ResetBreaker(c echo.Context) error {
	symbol := c.Param("symbol")
	if !h.breakers.Reset(symbol) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no breaker for symbol %s", symbol))
	}
	if h.logger != nil {
		h.logger.Info("breaker reset by operator", applogger.String("symbol", symbol))
	}
	b, _ := h.breakers.Lookup(symbol)
	return xhttp.SuccessResponse(c, b.Snapshot())
}
