package handler

import (
	"errors"
	"net/http"
	"strings"

	"neargo/config"
	"neargo/internal/auth"
	"neargo/internal/domain"
	"neargo/internal/models"
	"neargo/internal/presence"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RegisterHandler struct {
	cfg *config.Config
	reg *presence.Registry
}

func NewRegisterHandler(cfg *config.Config, reg *presence.Registry) *RegisterHandler {
	return &RegisterHandler{cfg: cfg, reg: reg}
}

// Register creates a session: a PENDING presence entry plus a token the
// client uses for reports, queries and watches. The profile snapshot is
// immutable for the session; re-registering starts a new session with a
// fresh userId.
func (h *RegisterHandler) Register(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
		Age         int    `json:"age" binding:"required"`
		Gender      string `json:"gender" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap := models.ProfileSnapshot{
		UserID:      uuid.NewString(),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Age:         req.Age,
		Gender:      req.Gender,
	}
	if err := h.reg.Register(snap); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	token, err := auth.GenerateToken(&h.cfg.JWT, snap.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user_id": snap.UserID,
		"token":   token,
	})
}
