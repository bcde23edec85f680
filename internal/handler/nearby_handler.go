package handler

import (
	"math"
	"net/http"
	"strconv"

	"neargo/internal/domain"
	"neargo/internal/middleware"
	"neargo/internal/presence"
	"neargo/internal/query"
	"neargo/pkg/proximity"

	"github.com/gin-gonic/gin"
)

type NearbyHandler struct {
	engine *query.Engine
	reg    *presence.Registry
}

func NewNearbyHandler(engine *query.Engine, reg *presence.Registry) *NearbyHandler {
	return &NearbyHandler{engine: engine, reg: reg}
}

// FindNearby returns live users around the caller, nearest first. The
// caller's own last reported position anchors the query, so at least
// one report must have been accepted.
func (h *NearbyHandler) FindNearby(c *gin.Context) {
	userID := middleware.GetUserID(c)
	entry, err := h.reg.GetSnapshot(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not registered"})
		return
	}
	if entry.State == domain.StatePending {
		c.JSON(http.StatusConflict, gin.H{"error": "no location reported yet"})
		return
	}
	radiusM, _ := strconv.ParseFloat(c.Query("radius_m"), 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	radiusM = h.engine.ClampRadius(radiusM)

	results := h.engine.FindNearby(entry.Position.Latitude, entry.Position.Longitude, radiusM, limit, userID)
	out := make([]gin.H, len(results))
	for i, r := range results {
		progress := proximity.Progress(r.DistanceM, radiusM)
		out[i] = gin.H{
			"user_id":            r.Snapshot.UserID,
			"display_name":       r.Snapshot.DisplayName,
			"age":                r.Snapshot.Age,
			"gender":             r.Snapshot.Gender,
			"distance_m":         math.Round(r.DistanceM*10) / 10,
			"proximity_progress": math.Round(progress*10) / 10,
			"proximity_label":    proximity.Label(progress),
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}
