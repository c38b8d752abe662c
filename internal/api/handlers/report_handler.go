// internal/api/handlers/report_handler.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/depomat/stockbi/internal/bi"
	"github.com/depomat/stockbi/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ReportHandler exposes the BI tables to the dashboard. All endpoints are
// read-only; writes happen exclusively through the pipeline commands.
type ReportHandler struct {
	reports *service.ReportService
	loc     *time.Location
}

func NewReportHandler(reports *service.ReportService, loc *time.Location) *ReportHandler {
	return &ReportHandler{reports: reports, loc: loc}
}

// resolveDay reads the optional ?day=YYYY-MM-DD query, defaulting to
// yesterday like the pipeline commands do.
func (h *ReportHandler) resolveDay(c *gin.Context) (time.Time, bool) {
	day, err := bi.ResolveDay(c.Query("day"), h.loc)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return time.Time{}, false
	}
	return day, true
}

// GetDailyReport handles GET /api/v1/bi/report
func (h *ReportHandler) GetDailyReport(c *gin.Context) {
	day, ok := h.resolveDay(c)
	if !ok {
		return
	}

	report, err := h.reports.GetDailyReport(c.Request.Context(), day)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to build daily report")
		return
	}
	if report == nil {
		errorResponse(c, http.StatusNotFound, "no report for day "+day.Format("2006-01-02"))
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetKpi handles GET /api/v1/bi/kpi
func (h *ReportHandler) GetKpi(c *gin.Context) {
	day, ok := h.resolveDay(c)
	if !ok {
		return
	}

	kpi, err := h.reports.GetKpi(c.Request.Context(), day)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to get kpi")
		return
	}
	if kpi == nil {
		errorResponse(c, http.StatusNotFound, "no kpi for day "+day.Format("2006-01-02"))
		return
	}

	c.JSON(http.StatusOK, kpi)
}

// GetAlerts handles GET /api/v1/bi/alerts
func (h *ReportHandler) GetAlerts(c *gin.Context) {
	day, ok := h.resolveDay(c)
	if !ok {
		return
	}

	alerts, err := h.reports.GetAlerts(c.Request.Context(), day)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list alerts")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"day":    day.Format("2006-01-02"),
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// GetTopMovers handles GET /api/v1/bi/velocity/top
func (h *ReportHandler) GetTopMovers(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	movers, err := h.reports.GetTopMovers(c.Request.Context(), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to get top movers")
		return
	}

	c.JSON(http.StatusOK, gin.H{"movers": movers})
}

// GetAvailableDays handles GET /api/v1/bi/days
func (h *ReportHandler) GetAvailableDays(c *gin.Context) {
	days, err := h.reports.GetAvailableDays(c.Request.Context(), 30)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list available days")
		return
	}

	formatted := make([]string, 0, len(days))
	for _, d := range days {
		formatted = append(formatted, d.Format("2006-01-02"))
	}
	c.JSON(http.StatusOK, gin.H{"days": formatted})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	log.Error().Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
}
