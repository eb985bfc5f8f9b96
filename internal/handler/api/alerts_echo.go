package api

import (
	models "PolyPulse/internal/domain/models"
	domrepo "PolyPulse/internal/domain/repository"
	"PolyPulse/internal/usecase"
	xhttp "PolyPulse/pkg/http"
	xlogger "PolyPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AlertsEchoHandler exposes the monitor over HTTP: recent alerts, the
// subscription set, per-market activity, and health.
type AlertsEchoHandler struct {
	logger  *xlogger.Logger
	monitor *usecase.MarketMonitor
	titles  domrepo.MarketTitles
}

func NewAlertsEchoHandler(logger *xlogger.Logger, monitor *usecase.MarketMonitor, titles domrepo.MarketTitles) *AlertsEchoHandler {
	return &AlertsEchoHandler{logger: logger, monitor: monitor, titles: titles}
}

func (h *AlertsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/alerts/recent", h.RecentAlerts)
	g.GET("/markets", h.Markets)
	g.POST("/markets", h.AddMarkets)
	g.DELETE("/markets", h.RemoveMarkets)
	g.GET("/markets/:asset_id/activity", h.Activity)
}

func (h *AlertsEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.HealthStatus{
		Connected: h.monitor.IsConnected(),
		Markets:   len(h.monitor.MonitoredMarkets()),
	})
}

func (h *AlertsEchoHandler) RecentAlerts(c echo.Context) error {
	req := &models.RecentAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	alerts := h.monitor.RecentAlerts(req.Limit)
	if req.Type != "" {
		filtered := alerts[:0]
		for _, a := range alerts {
			if string(a.Type) == req.Type {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

func (h *AlertsEchoHandler) Markets(c echo.Context) error {
	ids := h.monitor.MonitoredMarkets()
	rows := make([]models.MarketStatus, 0, len(ids))
	for _, id := range ids {
		st := models.MarketStatus{
			AssetID:  id,
			Activity: string(h.monitor.ActivityState(id)),
		}
		if h.titles != nil {
			if q, ok := h.titles.Question(c.Request().Context(), id); ok {
				st.Question = q
			}
		}
		rows = append(rows, st)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *AlertsEchoHandler) AddMarkets(c echo.Context) error {
	req := &models.MarketsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.monitor.AddMarkets(c.Request().Context(), req.AssetIDs...); err != nil {
		h.logger.Error("add markets failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, models.HealthStatus{
		Connected: h.monitor.IsConnected(),
		Markets:   len(h.monitor.MonitoredMarkets()),
	})
}

func (h *AlertsEchoHandler) RemoveMarkets(c echo.Context) error {
	req := &models.MarketsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.monitor.RemoveMarkets(c.Request().Context(), req.AssetIDs...); err != nil {
		h.logger.Error("remove markets failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *AlertsEchoHandler) Activity(c echo.Context) error {
	assetID := c.Param("asset_id")
	if assetID == "" {
		return xhttp.BadRequestResponse(c, "asset_id required")
	}
	st := models.MarketStatus{
		AssetID:  assetID,
		Activity: string(h.monitor.ActivityState(assetID)),
	}
	if h.titles != nil {
		if q, ok := h.titles.Question(c.Request().Context(), assetID); ok {
			st.Question = q
		}
	}
	return xhttp.SuccessResponse(c, st)
}
