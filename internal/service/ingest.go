package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/opsbridge/relay/common/logger"
	"github.com/opsbridge/relay/internal/command"
	"github.com/opsbridge/relay/internal/queue"
	"github.com/opsbridge/relay/internal/secrets"
	"github.com/opsbridge/relay/internal/signature"
)

const (
	commandStatus  = "/ops-status"
	commandResolve = "/ops-resolve"

	invalidSignatureText = "Invalid Signature"
	invalidTicketText    = "❌ Invalid Ticket Number. Use format INC000..."
	inProgressTextFmt    = "⏳ Checking %s..."
)

// Ack is the synchronous answer to an inbound slash command. The chat
// protocol wants HTTP 200 even for logical errors; only a failed
// signature check gets a real error status.
type Ack struct {
	Status int
	Text   string
}

type IngestService interface {
	// Ingest runs the producer path of the relay state machine:
	// verify -> parse -> enqueue. A returned error is a configuration or
	// queue failure; everything user-facing comes back as an Ack.
	Ingest(ctx context.Context, headers http.Header, rawBody []byte) (Ack, error)
}

type ingestService struct {
	provider secrets.Provider
	producer queue.Producer
	logger   *slog.Logger
}

func NewIngestService(provider secrets.Provider, producer queue.Producer, log *slog.Logger) IngestService {
	if log == nil {
		log = slog.Default()
	}
	return &ingestService{
		provider: provider,
		producer: producer,
		logger:   log,
	}
}

func (s *ingestService) Ingest(ctx context.Context, headers http.Header, rawBody []byte) (Ack, error) {
	bundle, err := s.provider.Bundle(ctx)
	if err != nil {
		return Ack{}, fmt.Errorf("loading secret bundle: %w", err)
	}
	if err := bundle.RequireChat(); err != nil {
		return Ack{}, err
	}

	if !signature.Verify(headers, rawBody, bundle.SigningSecret) {
		s.logger.ErrorContext(ctx, "signature verification failed")
		return Ack{Status: http.StatusUnauthorized, Text: invalidSignatureText}, nil
	}

	cmd, err := command.Parse(rawBody)
	if err != nil {
		var parseErr *command.ParseError
		if errors.As(err, &parseErr) {
			s.logger.WarnContext(ctx, "rejected slash command", "kind", parseErr.Kind)
			return Ack{Status: http.StatusOK, Text: invalidTicketText}, nil
		}
		return Ack{}, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TicketNumber: logger.Ptr(cmd.TicketRef),
		UserID:       logger.Ptr(cmd.UserID),
	})

	action, ok := actionFor(cmd.Command)
	if !ok {
		s.logger.WarnContext(ctx, "unsupported slash command", "command", cmd.Command)
		return Ack{
			Status: http.StatusOK,
			Text:   fmt.Sprintf("❌ Unsupported command %s.", cmd.Command),
		}, nil
	}

	s.logger.InfoContext(ctx, "received slash command", "command", cmd.Command)

	msg := queue.RelayMessage{
		Action:       action,
		TicketNumber: cmd.TicketRef,
		ResponseURL:  cmd.ResponseURL,
		UserID:       cmd.UserID,
	}

	if _, err := s.producer.EnqueueCommand(ctx, msg, traceID(ctx)); err != nil {
		return Ack{}, fmt.Errorf("enqueuing command: %w", err)
	}

	return Ack{
		Status: http.StatusOK,
		Text:   fmt.Sprintf(inProgressTextFmt, cmd.TicketRef),
	}, nil
}

func actionFor(commandName string) (queue.Action, bool) {
	switch commandName {
	case commandStatus:
		return queue.ActionStatusCheck, true
	case commandResolve:
		return queue.ActionResolve, true
	}
	return "", false
}

func traceID(ctx context.Context) string {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
