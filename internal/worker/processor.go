package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsbridge/relay/common/logger"
	"github.com/opsbridge/relay/internal/chat"
	"github.com/opsbridge/relay/internal/queue"
	"github.com/opsbridge/relay/internal/secrets"
	"github.com/opsbridge/relay/internal/service"
	"github.com/opsbridge/relay/internal/snow"
	"github.com/opsbridge/relay/internal/store"
)

const (
	notFoundTextFmt  = "❌ Ticket %s not found."
	alreadyTextFmt   = "⚠️ %s is already *%s*."
	resolvedTextFmt  = "✅ Success! %s has been resolved."
	statusReportFmt  = "📋 *Status Report for %s*\n> **State:** %s\n> **Summary:** %s"
	defaultMsgBudget = 30 * time.Second
)

// TicketClient is the slice of the ITSM client the processor needs.
type TicketClient interface {
	FindByNumber(ctx context.Context, number string) (*snow.Incident, error)
	Resolve(ctx context.Context, sysID string) error
}

// TicketClientFactory builds a client for the credentials in the current
// secret bundle. Bound per message because the bundle may rotate between
// deliveries.
type TicketClientFactory func(bundle secrets.Bundle) TicketClient

// Processor is the consumer side of the relay state machine. It must be
// safe to invoke more than once per message: the only mutation it
// performs (resolve) is guarded by a terminal-state check, so redelivery
// re-applies idempotently.
type Processor struct {
	provider  secrets.Provider
	tickets   TicketClientFactory
	responder chat.Responder
	forward   service.ForwardService
	audit     *store.AuditStore
	budget    time.Duration
	logger    *slog.Logger
}

func NewProcessor(
	provider secrets.Provider,
	tickets TicketClientFactory,
	responder chat.Responder,
	forward service.ForwardService,
	audit *store.AuditStore,
	budget time.Duration,
	log *slog.Logger,
) *Processor {
	if budget <= 0 {
		budget = defaultMsgBudget
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		provider:  provider,
		tickets:   tickets,
		responder: responder,
		forward:   forward,
		audit:     audit,
		budget:    budget,
		logger:    log,
	}
}

// Process handles one dequeued message. A returned error means the
// message was not handled and must be redelivered; a nil return means it
// is finished and may be acked — including user-visible failures like
// "ticket not found", which retrying cannot fix.
func (p *Processor) Process(ctx context.Context, msg queue.Message) error {
	// Bound the whole message so one stuck upstream call cannot pin the
	// worker. On expiry the error propagates and the queue redelivers;
	// there is deliberately no in-process retry on top of that.
	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	switch msg.TaskType {
	case queue.TaskTypeCommand:
		return p.processCommand(ctx, msg.Command)
	case queue.TaskTypeTicketEvent:
		return p.forward.Forward(ctx, msg.EventPayload)
	default:
		return fmt.Errorf("unknown task type %q", msg.TaskType)
	}
}

func (p *Processor) processCommand(ctx context.Context, cmd queue.RelayMessage) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TicketNumber: logger.Ptr(cmd.TicketNumber),
		Action:       logger.Ptr(string(cmd.Action)),
		UserID:       logger.Ptr(cmd.UserID),
	})

	bundle, err := p.provider.Bundle(ctx)
	if err != nil {
		return fmt.Errorf("loading secret bundle: %w", err)
	}
	if err := bundle.RequireITSM(); err != nil {
		return err
	}

	client := p.tickets(bundle)

	p.logger.InfoContext(ctx, "querying servicenow")

	incident, err := client.FindByNumber(ctx, cmd.TicketNumber)
	if err != nil {
		if errors.Is(err, snow.ErrNotFound) {
			// Terminal for this message: the ticket will not appear on
			// redelivery. Tell the user and ack.
			p.audit.RecordCommand(ctx, cmd.TicketNumber, string(cmd.Action), cmd.UserID,
				store.CommandNotFound, "")
			return p.respond(ctx, cmd.ResponseURL, fmt.Sprintf(notFoundTextFmt, cmd.TicketNumber))
		}
		return err
	}

	switch cmd.Action {
	case queue.ActionStatusCheck:
		p.audit.RecordCommand(ctx, cmd.TicketNumber, string(cmd.Action), cmd.UserID,
			store.CommandStatusReported, incident.State)
		return p.respond(ctx, cmd.ResponseURL,
			fmt.Sprintf(statusReportFmt, cmd.TicketNumber, incident.State, incident.ShortDescription))

	case queue.ActionResolve:
		if snow.IsTerminal(incident.State) {
			p.logger.InfoContext(ctx, "incident already terminal", "state", incident.State)
			p.audit.RecordCommand(ctx, cmd.TicketNumber, string(cmd.Action), cmd.UserID,
				store.CommandAlreadyResolved, incident.State)
			return p.respond(ctx, cmd.ResponseURL,
				fmt.Sprintf(alreadyTextFmt, cmd.TicketNumber, incident.State))
		}

		if err := client.Resolve(ctx, incident.SysID); err != nil {
			p.audit.RecordCommand(ctx, cmd.TicketNumber, string(cmd.Action), cmd.UserID,
				store.CommandFailed, err.Error())
			return err
		}

		p.logger.InfoContext(ctx, "incident resolved")
		p.audit.RecordCommand(ctx, cmd.TicketNumber, string(cmd.Action), cmd.UserID,
			store.CommandResolved, "")
		return p.respond(ctx, cmd.ResponseURL, fmt.Sprintf(resolvedTextFmt, cmd.TicketNumber))

	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

func (p *Processor) respond(ctx context.Context, responseURL, text string) error {
	if err := p.responder.Respond(ctx, responseURL, text); err != nil {
		// Propagate: the redelivered message re-runs idempotently and
		// retries the response.
		return err
	}
	return nil
}
