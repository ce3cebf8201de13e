package notify

// IncidentFields are the ticket fields the normalizer reads from an ITSM
// event. Fields may be absent; defaults are applied in Normalize, not
// here.
type IncidentFields struct {
	Number           string `json:"number"`
	State            string `json:"state"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
}

// TicketEvent is the raw ITSM webhook body. The incident record may be
// nested under "incident" or sit at the top level; RawTicketEvent keeps
// both so Normalize can fall back.
type TicketEvent struct {
	EventType string          `json:"event_type"`
	Incident  *IncidentFields `json:"incident"`

	// Top-level fallback for payloads that carry the record unwrapped.
	IncidentFields
}

// Record returns the incident fields, preferring the nested form.
func (e TicketEvent) Record() IncidentFields {
	if e.Incident != nil {
		return *e.Incident
	}
	return e.IncidentFields
}

type NotificationAction string

const (
	ActionCreated  NotificationAction = "created"
	ActionResolved NotificationAction = "resolved"
)

type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
)

// AgentNotification is the canonical outbound event. Field order matters:
// the struct is marshaled exactly once and those bytes are both signed
// and transmitted.
type AgentNotification struct {
	EventType   string             `json:"eventType"`
	IncidentID  string             `json:"incidentId"`
	Title       string             `json:"title"`
	Action      NotificationAction `json:"action"`
	Priority    Priority           `json:"priority"`
	Description string             `json:"description"`
	Timestamp   string             `json:"timestamp"`
}
