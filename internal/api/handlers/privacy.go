package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ezbridge/internal/core"
	"ezbridge/internal/ezviz"
)

// CommandService handles imperative privacy mode requests
type CommandService interface {
	SetPrivacyMode(ctx context.Context, serial, mode string) error
}

// PrivacyHandler handles privacy mode read and set requests
type PrivacyHandler struct {
	store    *core.DeviceStore
	commands CommandService
	logger   *slog.Logger
}

// NewPrivacyHandler creates a new privacy handler
func NewPrivacyHandler(store *core.DeviceStore, commands CommandService, logger *slog.Logger) *PrivacyHandler {
	return &PrivacyHandler{
		store:    store,
		commands: commands,
		logger:   logger,
	}
}

// setPrivacyRequest is the body of a privacy set request
type setPrivacyRequest struct {
	PrivacyMode string `json:"privacy_mode" binding:"required"`
}

// GetPrivacy returns the cached privacy state of one device
// GET /devices/:serial/privacy
func (h *PrivacyHandler) GetPrivacy(c *gin.Context) {
	serial := c.Param("serial")

	dev, err := h.store.Get(serial)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Device not found",
			"code":  "DEVICE_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"serial":     dev.Serial,
		"privacy":    dev.Privacy,
		"stale":      dev.Stale,
		"updated_at": dev.UpdatedAt,
	})
}

// SetPrivacy sets the privacy mode of one device
// PUT /devices/:serial/privacy
func (h *PrivacyHandler) SetPrivacy(c *gin.Context) {
	serial := c.Param("serial")

	var req setPrivacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "privacy_mode is required",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	err := h.commands.SetPrivacyMode(c.Request.Context(), serial, req.PrivacyMode)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"serial":       serial,
			"privacy_mode": req.PrivacyMode,
		})
	case errors.Is(err, core.ErrInvalidPrivacyMode):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "INVALID_PRIVACY_MODE",
		})
	case errors.Is(err, ezviz.ErrAuth):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": err.Error(),
			"code":  "AUTH_FAILED",
		})
	case errors.Is(err, ezviz.ErrUnsupported):
		c.JSON(http.StatusConflict, gin.H{
			"error": err.Error(),
			"code":  "DEVICE_UNSUPPORTED",
		})
	default:
		h.logger.Error("Privacy command failed",
			"component", "api",
			"device_serial", serial,
			"error", err,
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"code":  "COMMAND_FAILED",
		})
	}
}
