// Package chat delivers relay results back to the user over the
// per-request response_url the chat platform hands out.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// Responder posts in-channel text messages to a response_url.
type Responder interface {
	Respond(ctx context.Context, responseURL, text string) error
}

type webhookResponder struct {
	httpClient *http.Client
}

func NewResponder(httpClient *http.Client) Responder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &webhookResponder{httpClient: httpClient}
}

func (r *webhookResponder) Respond(ctx context.Context, responseURL, text string) error {
	msg := &slack.WebhookMessage{
		ResponseType: slack.ResponseTypeInChannel,
		Text:         text,
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, r.httpClient, msg); err != nil {
		return fmt.Errorf("posting chat response: %w", err)
	}
	return nil
}
