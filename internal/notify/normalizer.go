package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	defaultEventType = "incident_created"
	defaultPriority  = "3"
	unknownIncident  = "UNKNOWN"

	// timestampLayout is part of the signed contract with the receiving
	// agent: RFC3339, exactly three fractional digits, literal Z.
	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Normalizer maps raw ITSM events into the canonical notification shape.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// ParseEvent decodes a raw ticket-event body.
func ParseEvent(payload []byte) (TicketEvent, error) {
	var event TicketEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return TicketEvent{}, fmt.Errorf("decoding ticket event: %w", err)
	}
	return event, nil
}

// Normalize classifies the event and builds the outbound notification.
//
// Classification is deliberately substring-based, matching the upstream
// contract: any event type containing "resolve" or "close" counts as a
// resolution, and any priority value containing "1" or "2" maps to
// CRITICAL or HIGH. Do not tighten these into exact matches.
func (n *Normalizer) Normalize(event TicketEvent) AgentNotification {
	record := event.Record()

	incidentID := record.Number
	if incidentID == "" {
		incidentID = unknownIncident
	}

	eventType := event.EventType
	if eventType == "" {
		eventType = defaultEventType
	}

	action := ActionCreated
	if strings.Contains(eventType, "resolve") || strings.Contains(eventType, "close") {
		action = ActionResolved
	}

	priority := classifyPriority(record.Priority)

	return AgentNotification{
		EventType:   "incident",
		IncidentID:  incidentID,
		Title:       fmt.Sprintf("[%s] %s", incidentID, record.ShortDescription),
		Action:      action,
		Priority:    priority,
		Description: record.Description,
		Timestamp:   n.now().UTC().Format(timestampLayout),
	}
}

func classifyPriority(value string) Priority {
	if value == "" {
		value = defaultPriority
	}
	switch {
	case strings.Contains(value, "1"):
		return PriorityCritical
	case strings.Contains(value, "2"):
		return PriorityHigh
	default:
		return PriorityMedium
	}
}
