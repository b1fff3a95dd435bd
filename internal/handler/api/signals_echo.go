package api

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	domrepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/service/export"
	"github.com/NayellyZurita/CRE-Market-Signals/internal/usecase"
	xhttp "github.com/NayellyZurita/CRE-Market-Signals/pkg/http"
	xlogger "github.com/NayellyZurita/CRE-Market-Signals/pkg/logger"
)

// SignalsEchoHandler serves the read API.
type SignalsEchoHandler struct {
	logger   *xlogger.Logger
	query    *usecase.SignalsQueryUseCase
	exporter *export.Exporter
	store    domrepo.SignalStore
	tempDir  string
}

func NewSignalsEchoHandler(
	logger *xlogger.Logger,
	query *usecase.SignalsQueryUseCase,
	exporter *export.Exporter,
	store domrepo.SignalStore,
) *SignalsEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &SignalsEchoHandler{logger: logger, query: query, exporter: exporter, store: store, tempDir: os.TempDir()}
}

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/signals", h.Signals)
	e.GET("/markets", h.Markets)
	e.GET("/status", h.Status)
}

func (h *SignalsEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Signals returns matching records as JSON, or as a CSV/Parquet attachment.
func (h *SignalsEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	filter, format, err := usecase.ResolveRequest(*req)
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("Unsupported format '%s'", req.Format))
	case errors.Is(err, models.ErrUnknownMarket):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("Unknown market key '%s'", req.Market))
	case err != nil:
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	ctx := c.Request().Context()
	if format == models.FormatJSON {
		resp, err := h.query.List(ctx, filter)
		if err != nil {
			h.logger.Error("signals query failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, xhttp.InternalError("Database query failed"))
		}
		return c.JSON(http.StatusOK, resp)
	}

	return h.file(c, filter, format)
}

func (h *SignalsEchoHandler) file(c echo.Context, filter models.SignalFilter, format models.ExportFormat) error {
	tmp, err := os.CreateTemp(h.tempDir, "signals-*."+string(format))
	if err != nil {
		h.logger.Error("create export temp file", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	path := tmp.Name()
	_ = tmp.Close()

	res, err := h.exporter.Export(c.Request().Context(), export.Request{
		Filter: filter,
		Format: format,
		Path:   path,
	})
	if err != nil {
		_ = os.Remove(path)
		h.logger.Error("signals export failed", xlogger.Error(err), xlogger.String("format", string(format)))
		var exportErr *models.ExportError
		if errors.As(err, &exportErr) {
			return xhttp.AppErrorResponse(c, xhttp.InternalError("Export failed"))
		}
		return xhttp.AppErrorResponse(c, xhttp.InternalError("Database query failed"))
	}

	return xhttp.FileResponse(c, res.Path, export.ContentType(format), "signals."+string(format))
}

// Markets lists the preconfigured markets.
func (h *SignalsEchoHandler) Markets(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(models.TargetMarkets),
		"items": models.TargetMarkets,
	})
}

type statusResponse struct {
	LastLoaded *time.Time       `json:"last_loaded"`
	Counts     map[string]int64 `json:"counts"`
}

// Status reports the last recorded daily load and row counts per source.
func (h *SignalsEchoHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	counts, err := h.store.CountBySource(ctx)
	if err != nil {
		h.logger.Error("status count failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("Database query failed"))
	}

	resp := statusResponse{Counts: counts}
	at, err := h.store.LastLoaded(ctx, usecase.LoadStatusKey)
	switch {
	case err == nil:
		resp.LastLoaded = &at
	case !errors.Is(err, models.ErrNotFound):
		h.logger.Error("status last load failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("Database query failed"))
	}
	return c.JSON(http.StatusOK, resp)
}
