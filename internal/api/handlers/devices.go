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

// DeviceDirectory is the vendor lookup needed for device detail
type DeviceDirectory interface {
	GetDeviceInfo(ctx context.Context, serial string) (*ezviz.DeviceDetail, error)
}

// DevicesHandler handles device listing and detail requests
type DevicesHandler struct {
	store     *core.DeviceStore
	directory DeviceDirectory
	logger    *slog.Logger
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(store *core.DeviceStore, directory DeviceDirectory, logger *slog.Logger) *DevicesHandler {
	return &DevicesHandler{
		store:     store,
		directory: directory,
		logger:    logger,
	}
}

// ListDevices returns the cached state of all monitored devices
// GET /devices
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	devices := h.store.List()

	response := make([]gin.H, 0, len(devices))
	for _, dev := range devices {
		response = append(response, gin.H{
			"serial":     dev.Serial,
			"name":       dev.Name,
			"online":     dev.Online,
			"privacy":    dev.Privacy,
			"stale":      dev.Stale,
			"updated_at": dev.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

// GetDevice returns the vendor detail record for one device
// GET /devices/:serial
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	serial := c.Param("serial")

	detail, err := h.directory.GetDeviceInfo(c.Request.Context(), serial)
	if err != nil {
		h.logger.Error("Failed to fetch device info",
			"component", "api",
			"device_serial", serial,
			"error", err,
		)
		status := http.StatusBadGateway
		if errors.Is(err, ezviz.ErrAuth) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{
			"error": err.Error(),
			"code":  "VENDOR_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"serial":  detail.Serial,
		"name":    detail.Name,
		"model":   detail.Model,
		"online":  detail.Status == 1,
		"defence": detail.Defence,
	})
}
