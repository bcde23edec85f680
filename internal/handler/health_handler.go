package handler

import (
	"net/http"

	"neargo/internal/presence"
	"neargo/internal/watch"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	reg *presence.Registry
	hub *watch.Hub
}

func NewHealthHandler(reg *presence.Registry, hub *watch.Hub) *HealthHandler {
	return &HealthHandler{reg: reg, hub: hub}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"active_users": h.reg.ActiveCount(),
		"watches":      h.hub.Count(),
	})
}
