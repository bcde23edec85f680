package handler

import (
	"errors"
	"net/http"
	"time"

	"neargo/internal/domain"
	"neargo/internal/ingest"
	"neargo/internal/middleware"
	"neargo/internal/presence"

	"github.com/gin-gonic/gin"
)

type LocationHandler struct {
	pipeline *ingest.Pipeline
	reg      *presence.Registry
}

func NewLocationHandler(pipeline *ingest.Pipeline, reg *presence.Registry) *LocationHandler {
	return &LocationHandler{pipeline: pipeline, reg: reg}
}

// ReportLocation ingests one location report. Stale and rate-limited
// reports come back as accepted=false with a reason rather than an
// error status; the client is expected to keep reporting.
func (h *LocationHandler) ReportLocation(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req struct {
		Latitude       *float64 `json:"latitude" binding:"required"`
		Longitude      *float64 `json:"longitude" binding:"required"`
		TimestampMs    int64    `json:"timestamp_ms"`
		AccuracyMeters float64  `json:"accuracy_meters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reportedAt := time.Now()
	if req.TimestampMs > 0 {
		reportedAt = time.UnixMilli(req.TimestampMs)
	}
	outcome, err := h.pipeline.Report(userID, *req.Latitude, *req.Longitude, reportedAt, req.AccuracyMeters)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, outcome)
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, outcome)
	case errors.Is(err, domain.ErrNotRegistered):
		c.JSON(http.StatusNotFound, outcome)
	case errors.Is(err, domain.ErrStaleReport), errors.Is(err, domain.ErrRateLimited):
		c.JSON(http.StatusOK, outcome)
	default:
		c.JSON(http.StatusInternalServerError, outcome)
	}
}

// GetMyLocation returns the caller's last applied position and state.
func (h *LocationHandler) GetMyLocation(c *gin.Context) {
	userID := middleware.GetUserID(c)
	entry, err := h.reg.GetSnapshot(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not registered"})
		return
	}
	if entry.State == domain.StatePending {
		c.JSON(http.StatusOK, gin.H{"latitude": nil, "longitude": nil, "state": entry.State})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"latitude":        entry.Position.Latitude,
		"longitude":       entry.Position.Longitude,
		"accuracy_meters": entry.Position.AccuracyMeters,
		"reported_at":     entry.Position.ReportedAt,
		"state":           entry.State,
	})
}
