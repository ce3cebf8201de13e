package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/relay/internal/service"
)

// CommandHandler is the inbound slash-command webhook. All the relay
// logic lives in the ingest service; the handler only moves bytes and
// speaks the chat platform's response conventions.
type CommandHandler struct {
	ingest service.IngestService
}

func NewCommandHandler(ingest service.IngestService) *CommandHandler {
	return &CommandHandler{ingest: ingest}
}

func (h *CommandHandler) HandleCommand(c *gin.Context) {
	ctx := c.Request.Context()

	// The signature covers the raw body bytes; read them before any form
	// parsing touches the request.
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"text": "failed to read request body"})
		return
	}

	ack, err := h.ingest.Ingest(ctx, c.Request.Header, body)
	if err != nil {
		// Configuration or queue failure: surface hard so the ops layer
		// is alerted instead of silently degrading.
		slog.ErrorContext(ctx, "command ingest failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"text": "relay unavailable, try again shortly"})
		return
	}

	if ack.Status == http.StatusUnauthorized {
		c.String(http.StatusUnauthorized, ack.Text)
		return
	}

	c.JSON(ack.Status, gin.H{"text": ack.Text})
}
