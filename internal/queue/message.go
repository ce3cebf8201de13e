package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type TaskType string

const (
	// TaskTypeCommand is a slash command waiting for its ITSM round trip.
	TaskTypeCommand TaskType = "command"
	// TaskTypeTicketEvent is a raw ITSM event waiting to be forwarded to
	// the agent webhook.
	TaskTypeTicketEvent TaskType = "ticket_event"
)

type Action string

const (
	ActionStatusCheck Action = "status_check"
	ActionResolve     Action = "resolve"
)

// RelayMessage is the wire schema for a queued slash command. The
// producer relinquishes ownership at enqueue; the consumer owns the
// message until it is acknowledged.
type RelayMessage struct {
	Action       Action `json:"action"`
	TicketNumber string `json:"ticket_number"`
	ResponseURL  string `json:"response_url"`
	UserID       string `json:"user_id"`
}

// Message is a dequeued stream entry plus its redelivery bookkeeping.
type Message struct {
	ID           string
	TaskType     TaskType
	Command      RelayMessage // set when TaskType == TaskTypeCommand
	EventPayload []byte       // set when TaskType == TaskTypeTicketEvent
	EnqueuedAt   time.Time
	Attempt      int
	TraceID      string
	Raw          redis.XMessage
}

// ParseMessage decodes a raw stream entry. Entries that cannot be decoded
// are reported as errors; the consumer acks them so they don't loop.
func ParseMessage(msg redis.XMessage) (Message, error) {
	taskType := TaskType(stringValue(msg.Values, "task_type"))

	attempt, err := intValue(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	parsed := Message{
		ID:       msg.ID,
		TaskType: taskType,
		Attempt:  attempt,
		TraceID:  stringValue(msg.Values, "trace_id"),
		Raw:      msg,
	}

	if enqueued := stringValue(msg.Values, "enqueued_at"); enqueued != "" {
		unix, err := strconv.ParseInt(enqueued, 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("parsing enqueued_at: %w", err)
		}
		parsed.EnqueuedAt = time.Unix(unix, 0).UTC()
	}

	switch taskType {
	case TaskTypeCommand:
		parsed.Command = RelayMessage{
			Action:       Action(stringValue(msg.Values, "action")),
			TicketNumber: stringValue(msg.Values, "ticket_number"),
			ResponseURL:  stringValue(msg.Values, "response_url"),
			UserID:       stringValue(msg.Values, "user_id"),
		}
		if parsed.Command.Action != ActionStatusCheck && parsed.Command.Action != ActionResolve {
			return Message{}, fmt.Errorf("unknown action %q", parsed.Command.Action)
		}
		if parsed.Command.TicketNumber == "" || parsed.Command.ResponseURL == "" {
			return Message{}, fmt.Errorf("missing ticket_number or response_url")
		}
	case TaskTypeTicketEvent:
		payload := stringValue(msg.Values, "payload")
		if payload == "" {
			return Message{}, fmt.Errorf("missing payload")
		}
		parsed.EventPayload = []byte(payload)
	default:
		return Message{}, fmt.Errorf("unknown task_type %q", taskType)
	}

	return parsed, nil
}

func messageValues(msg Message, attempt int) map[string]any {
	values := map[string]any{
		"task_type": string(msg.TaskType),
		"attempt":   attempt,
	}

	if !msg.EnqueuedAt.IsZero() {
		values["enqueued_at"] = msg.EnqueuedAt.Unix()
	}
	if msg.TraceID != "" {
		values["trace_id"] = msg.TraceID
	}

	switch msg.TaskType {
	case TaskTypeCommand:
		values["action"] = string(msg.Command.Action)
		values["ticket_number"] = msg.Command.TicketNumber
		values["response_url"] = msg.Command.ResponseURL
		values["user_id"] = msg.Command.UserID
	case TaskTypeTicketEvent:
		values["payload"] = string(msg.EventPayload)
	}

	return values
}

func stringValue(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

func intValue(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}
