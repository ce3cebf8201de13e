package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/relay/internal/service"
)

// EventHandler is the inbound ticket-event webhook from the ITSM side.
type EventHandler struct {
	forward service.ForwardService
}

func NewEventHandler(forward service.ForwardService) *EventHandler {
	return &EventHandler{forward: forward}
}

func (h *EventHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.forward.Accept(ctx, body); err != nil {
		slog.ErrorContext(ctx, "ticket event not forwarded", "error", err)
		// Non-2xx so the sender's retry machinery kicks in.
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to forward event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
