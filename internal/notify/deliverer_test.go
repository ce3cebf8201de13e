package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsbridge/relay/internal/signature"
)

var _ = Describe("Deliverer", func() {
	var (
		server       *httptest.Server
		status       int
		receivedBody []byte
		receivedHdr  http.Header
	)

	notification := AgentNotification{
		EventType:  "incident",
		IncidentID: "INC0010042",
		Title:      "[INC0010042] VPN down",
		Action:     ActionResolved,
		Priority:   PriorityHigh,
		Timestamp:  "2026-03-14T09:26:53.589Z",
	}

	BeforeEach(func() {
		status = http.StatusOK
		receivedBody = nil
		receivedHdr = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedBody, _ = io.ReadAll(r.Body)
			receivedHdr = r.Header.Clone()
			w.WriteHeader(status)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("signs the exact bytes it transmits", func() {
		deliverer := NewDeliverer(server.Client(), signature.Sign)

		err := deliverer.Deliver(context.Background(), server.URL, "shared-secret", notification)
		Expect(err).NotTo(HaveOccurred())

		Expect(receivedHdr.Get("x-amzn-event-timestamp")).To(Equal(notification.Timestamp))
		Expect(receivedHdr.Get("Content-Type")).To(Equal("application/json"))

		expected := signature.Sign(receivedBody, notification.Timestamp, "shared-secret")
		Expect(receivedHdr.Get("x-amzn-event-signature")).To(Equal(expected))
	})

	It("serializes the notification with the canonical field order", func() {
		deliverer := NewDeliverer(server.Client(), signature.Sign)

		err := deliverer.Deliver(context.Background(), server.URL, "shared-secret", notification)
		Expect(err).NotTo(HaveOccurred())

		Expect(json.Valid(receivedBody)).To(BeTrue())
		Expect(string(receivedBody)).To(HavePrefix(`{"eventType":"incident","incidentId":"INC0010042"`))
	})

	It("returns an error on a non-2xx so the queue redelivers", func() {
		status = http.StatusServiceUnavailable
		deliverer := NewDeliverer(server.Client(), signature.Sign)

		err := deliverer.Deliver(context.Background(), server.URL, "shared-secret", notification)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("503"))
	})

	It("returns an error when the webhook is unreachable", func() {
		deliverer := NewDeliverer(server.Client(), signature.Sign)
		server.Close()

		err := deliverer.Deliver(context.Background(), server.URL, "shared-secret", notification)
		Expect(err).To(HaveOccurred())
	})
})
