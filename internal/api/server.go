package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// NewServer wires the middleware chain, the query routes, health and metrics.
func NewServer(q Querier, metrics *Metrics, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(RequestLogger(logger, metrics))
	e.Use(Recovery(logger))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		e.GET("/metrics", metrics.Handler())
	}

	NewHandler(q, metrics).RegisterRoutes(e.Group("/api"))
	return e
}
