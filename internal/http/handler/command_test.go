package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsbridge/relay/internal/http/router"
	"github.com/opsbridge/relay/internal/service"
)

type fakeIngest struct {
	ack     service.Ack
	err     error
	headers http.Header
	body    []byte
}

func (f *fakeIngest) Ingest(ctx context.Context, headers http.Header, rawBody []byte) (service.Ack, error) {
	f.headers = headers.Clone()
	f.body = rawBody
	return f.ack, f.err
}

type fakeForwardSvc struct {
	payload []byte
	err     error
}

func (f *fakeForwardSvc) Accept(ctx context.Context, payload []byte) error {
	f.payload = payload
	return f.err
}

func (f *fakeForwardSvc) Forward(ctx context.Context, payload []byte) error {
	return f.Accept(ctx, payload)
}

var _ = Describe("CommandHandler", func() {
	var (
		engine  *gin.Engine
		ingest  *fakeIngest
		forward *fakeForwardSvc
	)

	BeforeEach(func() {
		ingest = &fakeIngest{}
		forward = &fakeForwardSvc{}
		engine = gin.New()
		router.SetupRoutes(engine, ingest, forward)
	})

	post := func(body string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/chat/command", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)
		return recorder
	}

	It("hands the raw body and headers to the ingest service", func() {
		ingest.ack = service.Ack{Status: http.StatusOK, Text: "⏳ Checking INC0010042..."}

		recorder := post("command=%2Fops-status&text=INC0010042", map[string]string{
			"X-Slack-Request-Timestamp": "1700000000",
			"X-Slack-Signature":         "v0=abc",
		})

		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(string(ingest.body)).To(Equal("command=%2Fops-status&text=INC0010042"))
		Expect(ingest.headers.Get("X-Slack-Signature")).To(Equal("v0=abc"))

		var resp map[string]string
		Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["text"]).To(Equal("⏳ Checking INC0010042..."))
	})

	It("answers a rejected signature with plain text 401", func() {
		ingest.ack = service.Ack{Status: http.StatusUnauthorized, Text: "Invalid Signature"}

		recorder := post("command=%2Fops-status", nil)

		Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		Expect(recorder.Body.String()).To(Equal("Invalid Signature"))
	})

	It("answers an ingest failure with 500", func() {
		ingest.err = errors.New("stream unavailable")

		recorder := post("command=%2Fops-status", nil)

		Expect(recorder.Code).To(Equal(http.StatusInternalServerError))
		Expect(recorder.Body.String()).To(ContainSubstring("relay unavailable"))
	})

	It("serves the health endpoint", func() {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)

		Expect(recorder.Code).To(Equal(http.StatusOK))
	})
})
