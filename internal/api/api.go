// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/depomat/stockbi/internal/api/handlers"
	"github.com/depomat/stockbi/internal/api/middleware"
	"github.com/depomat/stockbi/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the read-only BI endpoints.
func NewRouter(reports *service.ReportService, loc *time.Location, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.Logger(),
		middleware.Recovery(),
		cors.New(buildCorsConfig(allowedOrigins)),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	reportHandler := handlers.NewReportHandler(reports, loc)
	biGroup := router.Group("/api/v1/bi")
	{
		biGroup.GET("/report", reportHandler.GetDailyReport)
		biGroup.GET("/kpi", reportHandler.GetKpi)
		biGroup.GET("/alerts", reportHandler.GetAlerts)
		biGroup.GET("/velocity/top", reportHandler.GetTopMovers)
		biGroup.GET("/days", reportHandler.GetAvailableDays)
	}

	return router
}

func buildCorsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	normalized, allowAll := normalizeAllowedOrigins(allowedOrigins)
	if allowAll {
		cfg.AllowOrigins = nil
		cfg.AllowOriginFunc = func(origin string) bool { return true }
	} else if len(normalized) > 0 {
		cfg.AllowOrigins = normalized
	}

	return cfg
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
