package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ezbridge/internal/core"
)

// EventHistory is the read side of the privacy event log
type EventHistory interface {
	RecentEvents(ctx context.Context, limit int) ([]core.ChangeEvent, error)
}

// EventsHandler serves the privacy change history
type EventsHandler struct {
	history EventHistory
	logger  *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(history EventHistory, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		history: history,
		logger:  logger,
	}
}

// ListEvents returns the most recent privacy changes, newest first
// GET /events?limit=50
func (h *EventsHandler) ListEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "limit must be a non-negative integer",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	events, err := h.history.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to query event history",
			"component", "api",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to query events",
			"code":  "STORAGE_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, events)
}
