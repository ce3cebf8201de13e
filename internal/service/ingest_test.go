package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsbridge/relay/internal/queue"
	"github.com/opsbridge/relay/internal/secrets"
	"github.com/opsbridge/relay/internal/service"
	"github.com/opsbridge/relay/internal/signature"
)

type fakeProducer struct {
	commands []queue.RelayMessage
	events   [][]byte
	err      error
}

func (p *fakeProducer) EnqueueCommand(ctx context.Context, msg queue.RelayMessage, traceID string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.commands = append(p.commands, msg)
	return fmt.Sprintf("17000000000-%d", len(p.commands)), nil
}

func (p *fakeProducer) EnqueueTicketEvent(ctx context.Context, payload []byte, traceID string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, payload)
	return fmt.Sprintf("17000000000-%d", len(p.events)), nil
}

func (p *fakeProducer) Close() error { return nil }

const testSigningSecret = "test-signing-secret"

func commandBody(cmd, text string) []byte {
	form := url.Values{}
	form.Set("command", cmd)
	form.Set("text", text)
	form.Set("response_url", "https://hooks.example.com/T1/abc")
	form.Set("user_id", "U042")
	return []byte(form.Encode())
}

func signedHeaders(body []byte, secret string) http.Header {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)

	headers := http.Header{}
	headers.Set(signature.TimestampHeader, timestamp)
	headers.Set(signature.SignatureHeader, "v0="+hex.EncodeToString(mac.Sum(nil)))
	return headers
}

var _ = Describe("IngestService", func() {
	var (
		producer *fakeProducer
		ingest   service.IngestService
	)

	BeforeEach(func() {
		producer = &fakeProducer{}
		provider := &secrets.StaticProvider{
			Value: secrets.Bundle{SigningSecret: testSigningSecret},
		}
		ingest = service.NewIngestService(provider, producer, nil)
	})

	It("acknowledges a valid resolve command and enqueues it", func() {
		body := commandBody("/ops-resolve", "INC0010042")

		ack, err := ingest.Ingest(context.Background(), signedHeaders(body, testSigningSecret), body)
		Expect(err).NotTo(HaveOccurred())
		Expect(ack.Status).To(Equal(http.StatusOK))
		Expect(ack.Text).To(Equal("⏳ Checking INC0010042..."))

		Expect(producer.commands).To(ConsistOf(queue.RelayMessage{
			Action:       queue.ActionResolve,
			TicketNumber: "INC0010042",
			ResponseURL:  "https://hooks.example.com/T1/abc",
			UserID:       "U042",
		}))
	})

	It("maps the status command to a status check", func() {
		body := commandBody("/ops-status", "INC0009001")

		ack, err := ingest.Ingest(context.Background(), signedHeaders(body, testSigningSecret), body)
		Expect(err).NotTo(HaveOccurred())
		Expect(ack.Status).To(Equal(http.StatusOK))
		Expect(producer.commands).To(HaveLen(1))
		Expect(producer.commands[0].Action).To(Equal(queue.ActionStatusCheck))
	})

	It("rejects a bad signature with 401 and enqueues nothing", func() {
		body := commandBody("/ops-resolve", "INC0010042")

		ack, err := ingest.Ingest(context.Background(), signedHeaders(body, "wrong-secret"), body)
		Expect(err).NotTo(HaveOccurred())
		Expect(ack.Status).To(Equal(http.StatusUnauthorized))
		Expect(ack.Text).To(Equal("Invalid Signature"))
		Expect(producer.commands).To(BeEmpty())
	})

	It("answers an invalid ticket reference with 200 and enqueues nothing", func() {
		body := commandBody("/ops-resolve", "BADTICKET")

		ack, err := ingest.Ingest(context.Background(), signedHeaders(body, testSigningSecret), body)
		Expect(err).NotTo(HaveOccurred())
		Expect(ack.Status).To(Equal(http.StatusOK))
		Expect(ack.Text).To(Equal("❌ Invalid Ticket Number. Use format INC000..."))
		Expect(producer.commands).To(BeEmpty())
	})

	It("answers an unsupported command with 200 and enqueues nothing", func() {
		body := commandBody("/ops-escalate", "INC0010042")

		ack, err := ingest.Ingest(context.Background(), signedHeaders(body, testSigningSecret), body)
		Expect(err).NotTo(HaveOccurred())
		Expect(ack.Status).To(Equal(http.StatusOK))
		Expect(ack.Text).To(Equal("❌ Unsupported command /ops-escalate."))
		Expect(producer.commands).To(BeEmpty())
	})

	It("propagates a queue failure instead of faking an ack", func() {
		producer.err = fmt.Errorf("stream unavailable")
		body := commandBody("/ops-resolve", "INC0010042")

		_, err := ingest.Ingest(context.Background(), signedHeaders(body, testSigningSecret), body)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("enqueuing command"))
	})

	It("fails when the signing secret is missing from the bundle", func() {
		ingest = service.NewIngestService(&secrets.StaticProvider{}, producer, nil)
		body := commandBody("/ops-resolve", "INC0010042")

		_, err := ingest.Ingest(context.Background(), signedHeaders(body, testSigningSecret), body)
		Expect(err).To(MatchError(secrets.ErrMissingSecret))
	})
})
