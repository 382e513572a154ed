package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// StreamClient covers the on-demand media operations of the vendor API
type StreamClient interface {
	Capture(ctx context.Context, serial string) ([]byte, string, error)
	LiveAddress(ctx context.Context, serial, protocol string, quality int) (string, error)
}

// StreamHandler handles snapshot and live stream requests. Both are
// pass-through calls to the vendor; nothing here is polled or cached.
type StreamHandler struct {
	client StreamClient
	logger *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(client StreamClient, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		client: client,
		logger: logger,
	}
}

// GetSnapshot returns a fresh snapshot image from the device
// GET /devices/:serial/snapshot
func (h *StreamHandler) GetSnapshot(c *gin.Context) {
	serial := c.Param("serial")

	img, contentType, err := h.client.Capture(c.Request.Context(), serial)
	if err != nil {
		h.logger.Error("Failed to capture snapshot",
			"component", "api",
			"device_serial", serial,
			"error", err,
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"code":  "CAPTURE_FAILED",
		})
		return
	}

	c.Data(http.StatusOK, contentType, img)
}

// GetLiveAddress returns a time-limited live stream URL
// GET /devices/:serial/live?protocol=ezopen&quality=2
func (h *StreamHandler) GetLiveAddress(c *gin.Context) {
	serial := c.Param("serial")
	protocol := c.DefaultQuery("protocol", "ezopen")
	quality, err := strconv.Atoi(c.DefaultQuery("quality", "2"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "quality must be an integer",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	url, err := h.client.LiveAddress(c.Request.Context(), serial, protocol, quality)
	if err != nil {
		h.logger.Error("Failed to get live address",
			"component", "api",
			"device_serial", serial,
			"error", err,
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"code":  "LIVE_ADDRESS_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"serial":   serial,
		"protocol": protocol,
		"url":      url,
	})
}
