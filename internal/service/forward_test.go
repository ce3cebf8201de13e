package service_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsbridge/relay/core/config"
	"github.com/opsbridge/relay/internal/notify"
	"github.com/opsbridge/relay/internal/secrets"
	"github.com/opsbridge/relay/internal/service"
	"github.com/opsbridge/relay/internal/signature"
)

var _ = Describe("ForwardService", func() {
	var (
		webhook      *httptest.Server
		status       int
		receivedBody []byte
		producer     *fakeProducer
	)

	eventPayload := []byte(`{
		"event_type": "incident_resolved",
		"incident": {
			"number": "INC0010042",
			"short_description": "VPN down",
			"priority": "2 - High"
		}
	}`)

	BeforeEach(func() {
		status = http.StatusOK
		receivedBody = nil
		producer = &fakeProducer{}

		webhook = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(status)
		}))
	})

	AfterEach(func() {
		webhook.Close()
	})

	newForward := func(mode string) service.ForwardService {
		provider := &secrets.StaticProvider{Value: secrets.Bundle{
			WebhookURL:   webhook.URL,
			SecretString: "shared-secret",
		}}
		return service.NewForwardService(
			provider,
			producer,
			notify.NewNormalizer(),
			notify.NewDeliverer(webhook.Client(), signature.Sign),
			nil,
			mode,
			nil,
		)
	}

	It("delivers a normalized notification in direct mode", func() {
		err := newForward(config.ForwardModeDirect).Accept(context.Background(), eventPayload)
		Expect(err).NotTo(HaveOccurred())

		Expect(string(receivedBody)).To(ContainSubstring(`"incidentId":"INC0010042"`))
		Expect(string(receivedBody)).To(ContainSubstring(`"action":"resolved"`))
		Expect(string(receivedBody)).To(ContainSubstring(`"priority":"HIGH"`))
		Expect(producer.events).To(BeEmpty())
	})

	It("enqueues instead of delivering in queued mode", func() {
		err := newForward(config.ForwardModeQueued).Accept(context.Background(), eventPayload)
		Expect(err).NotTo(HaveOccurred())

		Expect(producer.events).To(ConsistOf([][]byte{eventPayload}))
		Expect(receivedBody).To(BeNil())
	})

	It("propagates a webhook failure for redelivery", func() {
		status = http.StatusServiceUnavailable

		err := newForward(config.ForwardModeDirect).Forward(context.Background(), eventPayload)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("503"))
	})

	It("rejects an event body that is not JSON", func() {
		err := newForward(config.ForwardModeDirect).Forward(context.Background(), []byte("not json"))
		Expect(err).To(HaveOccurred())
		Expect(receivedBody).To(BeNil())
	})

	It("fails fast when the webhook credentials are missing", func() {
		forward := service.NewForwardService(
			&secrets.StaticProvider{},
			producer,
			notify.NewNormalizer(),
			notify.NewDeliverer(webhook.Client(), signature.Sign),
			nil,
			config.ForwardModeDirect,
			nil,
		)

		err := forward.Forward(context.Background(), eventPayload)
		Expect(err).To(MatchError(secrets.ErrMissingSecret))
	})
})
