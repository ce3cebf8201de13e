package notify

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Normalizer", func() {
	var normalizer *Normalizer

	BeforeEach(func() {
		normalizer = NewNormalizer()
		normalizer.now = func() time.Time {
			return time.Date(2026, time.March, 14, 9, 26, 53, 589_000_000, time.UTC)
		}
	})

	Describe("ParseEvent", func() {
		It("decodes a nested incident record", func() {
			event, err := ParseEvent([]byte(`{
				"event_type": "incident_resolved",
				"incident": {
					"number": "INC0010042",
					"short_description": "VPN down",
					"priority": "2 - High"
				}
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(event.EventType).To(Equal("incident_resolved"))
			Expect(event.Record().Number).To(Equal("INC0010042"))
			Expect(event.Record().Priority).To(Equal("2 - High"))
		})

		It("falls back to top-level fields when incident is unwrapped", func() {
			event, err := ParseEvent([]byte(`{
				"event_type": "incident_created",
				"number": "INC0009001",
				"priority": "1"
			}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(event.Record().Number).To(Equal("INC0009001"))
		})

		It("rejects a body that is not JSON", func() {
			_, err := ParseEvent([]byte(`not json`))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Normalize", func() {
		It("classifies resolve and close event types as resolutions", func() {
			for _, eventType := range []string{"incident_resolved", "incident_closed", "auto_close"} {
				out := normalizer.Normalize(TicketEvent{EventType: eventType})
				Expect(out.Action).To(Equal(ActionResolved), "event_type %q", eventType)
			}
		})

		It("classifies everything else as a creation", func() {
			for _, eventType := range []string{"incident_created", "incident_updated", ""} {
				out := normalizer.Normalize(TicketEvent{EventType: eventType})
				Expect(out.Action).To(Equal(ActionCreated), "event_type %q", eventType)
			}
		})

		It("maps priority values by substring", func() {
			cases := map[string]Priority{
				"1":            PriorityCritical,
				"1 - Critical": PriorityCritical,
				"high:2":       PriorityHigh,
				"3":            PriorityMedium,
				"":             PriorityMedium,
				"4 - Low":      PriorityMedium,
			}
			for value, want := range cases {
				out := normalizer.Normalize(TicketEvent{
					IncidentFields: IncidentFields{Priority: value},
				})
				Expect(out.Priority).To(Equal(want), "priority %q", value)
			}
		})

		It("builds the full notification from a complete event", func() {
			out := normalizer.Normalize(TicketEvent{
				EventType: "incident_created",
				Incident: &IncidentFields{
					Number:           "INC0010042",
					ShortDescription: "VPN down",
					Description:      "Users in EU cannot connect.",
					Priority:         "2 - High",
				},
			})

			Expect(out).To(Equal(AgentNotification{
				EventType:   "incident",
				IncidentID:  "INC0010042",
				Title:       "[INC0010042] VPN down",
				Action:      ActionCreated,
				Priority:    PriorityHigh,
				Description: "Users in EU cannot connect.",
				Timestamp:   "2026-03-14T09:26:53.589Z",
			}))
		})

		It("defaults the incident id when no number is present", func() {
			out := normalizer.Normalize(TicketEvent{})
			Expect(out.IncidentID).To(Equal("UNKNOWN"))
			Expect(out.Title).To(Equal("[UNKNOWN] "))
		})

		It("formats the timestamp with exactly three fractional digits", func() {
			out := normalizer.Normalize(TicketEvent{})
			Expect(out.Timestamp).To(MatchRegexp(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`))
		})
	})
})
