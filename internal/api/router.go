package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tank-monitor-service/internal/auth"
	"tank-monitor-service/internal/config"
	"tank-monitor-service/internal/logging"
)

func NewRouter(h *Handler, authMgr *auth.Manager, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
	})

	api := r.Group(cfg.API.BasePath)
	{
		api.POST("/login", h.Login)
		api.POST("/register", h.Register)

		authed := api.Group("", IdentityMiddleware(authMgr, logger))
		{
			// Devices
			authed.GET("/devices", h.ListDevices)
			authed.GET("/devices/:id", h.GetDevice)
			authed.PATCH("/devices/:id", h.UpdateDevice)

			// Consumers
			authed.GET("/consumers", h.ListConsumers)

			// Alerts. gin cannot register a static segment next to a
			// parameter one, so /alerts/auto-update shares the :id slot.
			authed.POST("/alerts", h.CreateAlert)
			authed.GET("/alerts", h.ListAlerts)
			authed.POST("/alerts/:id", h.AlertAction)
			authed.POST("/alerts/:id/resolve", h.ResolveAlert)

			// Live push
			authed.GET("/ws/alerts", h.AlertsWebSocket)
		}
	}

	return r
}
