package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/opsbridge/relay/common/logger"
	"github.com/opsbridge/relay/core/config"
	"github.com/opsbridge/relay/internal/notify"
	"github.com/opsbridge/relay/internal/queue"
	"github.com/opsbridge/relay/internal/secrets"
	"github.com/opsbridge/relay/internal/store"
)

type ForwardService interface {
	// Accept takes a raw ticket event off the webhook: in queued mode it
	// lands on the relay stream for the worker, in direct mode it is
	// forwarded inline.
	Accept(ctx context.Context, payload []byte) error

	// Forward normalizes, signs, and delivers one ticket event. Errors
	// propagate so that the caller's at-least-once layer retries.
	Forward(ctx context.Context, payload []byte) error
}

type forwardService struct {
	provider   secrets.Provider
	producer   queue.Producer
	normalizer *notify.Normalizer
	deliverer  *notify.Deliverer
	audit      *store.AuditStore
	mode       string
	logger     *slog.Logger
}

func NewForwardService(
	provider secrets.Provider,
	producer queue.Producer,
	normalizer *notify.Normalizer,
	deliverer *notify.Deliverer,
	audit *store.AuditStore,
	mode string,
	log *slog.Logger,
) ForwardService {
	if log == nil {
		log = slog.Default()
	}
	return &forwardService{
		provider:   provider,
		producer:   producer,
		normalizer: normalizer,
		deliverer:  deliverer,
		audit:      audit,
		mode:       mode,
		logger:     log,
	}
}

func (s *forwardService) Accept(ctx context.Context, payload []byte) error {
	if s.mode == config.ForwardModeQueued {
		if _, err := s.producer.EnqueueTicketEvent(ctx, payload, traceID(ctx)); err != nil {
			return fmt.Errorf("enqueuing ticket event: %w", err)
		}
		return nil
	}
	return s.Forward(ctx, payload)
}

func (s *forwardService) Forward(ctx context.Context, payload []byte) error {
	bundle, err := s.provider.Bundle(ctx)
	if err != nil {
		return fmt.Errorf("loading secret bundle: %w", err)
	}
	if err := bundle.RequireForward(); err != nil {
		return err
	}

	event, err := notify.ParseEvent(payload)
	if err != nil {
		return err
	}

	notification := s.normalizer.Normalize(event)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TicketNumber: logger.Ptr(notification.IncidentID),
		EventType:    logger.Ptr(event.EventType),
	})

	if notification.Action == notify.ActionResolved {
		s.logger.InfoContext(ctx, "forwarding incident resolution")
	}

	sc := logger.StartSpan(ctx, "notify.deliver", trace.WithSpanKind(trace.SpanKindProducer))
	defer sc.End()
	ctx = sc.Context()

	if err := s.deliverer.Deliver(ctx, bundle.WebhookURL, bundle.SecretString, notification); err != nil {
		sc.RecordError(err)
		s.audit.RecordDelivery(ctx, notification.IncidentID, string(notification.Action),
			string(notification.Priority), store.DeliveryFailed, err.Error())
		return err
	}

	s.audit.RecordDelivery(ctx, notification.IncidentID, string(notification.Action),
		string(notification.Priority), store.DeliverySent, "")
	return nil
}
