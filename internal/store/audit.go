// Package store is the optional Postgres audit trail of relay activity.
// It is an ops aid: writes that fail are logged and dropped, and a nil
// store disables auditing entirely. The queue, not this log, is the
// source of truth for delivery.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsbridge/relay/common/id"
	"github.com/opsbridge/relay/core/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS relay_command_log (
	id            BIGINT PRIMARY KEY,
	ticket_number TEXT NOT NULL,
	action        TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	detail        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notification_delivery_log (
	id          BIGINT PRIMARY KEY,
	incident_id TEXT NOT NULL,
	action      TEXT NOT NULL,
	priority    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type CommandOutcome string

const (
	CommandResolved        CommandOutcome = "resolved"
	CommandAlreadyResolved CommandOutcome = "already_resolved"
	CommandStatusReported  CommandOutcome = "status_reported"
	CommandNotFound        CommandOutcome = "not_found"
	CommandFailed          CommandOutcome = "failed"
)

type DeliveryOutcome string

const (
	DeliverySent   DeliveryOutcome = "sent"
	DeliveryFailed DeliveryOutcome = "failed"
)

// AuditStore records processed commands and outbound deliveries. All
// methods are nil-safe no-ops so callers never branch on whether
// auditing is configured.
type AuditStore struct {
	db *db.DB
}

func NewAuditStore(ctx context.Context, database *db.DB) (*AuditStore, error) {
	if database == nil {
		return nil, nil
	}
	if _, err := database.Pool().Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating audit tables: %w", err)
	}
	return &AuditStore{db: database}, nil
}

func (s *AuditStore) RecordCommand(ctx context.Context, ticketNumber, action, userID string, outcome CommandOutcome, detail string) {
	if s == nil {
		return
	}

	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO relay_command_log (id, ticket_number, action, user_id, outcome, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id.New(), ticketNumber, action, userID, string(outcome), detail, time.Now().UTC())
	if err != nil {
		slog.WarnContext(ctx, "audit write failed",
			"error", err,
			"table", "relay_command_log",
			"ticket_number", ticketNumber)
	}
}

func (s *AuditStore) RecordDelivery(ctx context.Context, incidentID, action, priority string, outcome DeliveryOutcome, detail string) {
	if s == nil {
		return
	}

	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO notification_delivery_log (id, incident_id, action, priority, outcome, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id.New(), incidentID, action, priority, string(outcome), detail, time.Now().UTC())
	if err != nil {
		slog.WarnContext(ctx, "audit write failed",
			"error", err,
			"table", "notification_delivery_log",
			"incident_id", incidentID)
	}
}
