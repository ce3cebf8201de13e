package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	signatureHeader = "x-amzn-event-signature"
	timestampHeader = "x-amzn-event-timestamp"
)

// Signer computes the outbound payload signature.
// Satisfied by signature.Sign.
type Signer func(payload []byte, timestamp, secret string) string

// Deliverer signs notifications and POSTs them to the agent webhook.
type Deliverer struct {
	httpClient *http.Client
	sign       Signer
}

func NewDeliverer(httpClient *http.Client, sign Signer) *Deliverer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Deliverer{httpClient: httpClient, sign: sign}
}

// Deliver serializes the notification once, signs those exact bytes, and
// sends them. A non-2xx response or transport failure is returned as an
// error so the at-least-once queue redelivers; swallowing it here would
// silently drop the event.
func (d *Deliverer) Deliver(ctx context.Context, webhookURL, secret string, notification AgentNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	sig := d.sign(payload, notification.Timestamp, secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, sig)
	req.Header.Set(timestampHeader, notification.Timestamp)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivering notification for %s: %w", notification.IncidentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("agent webhook returned %d: %s", resp.StatusCode, string(body))
	}

	slog.InfoContext(ctx, "notification delivered",
		"incident_id", notification.IncidentID,
		"action", notification.Action,
		"status", resp.StatusCode)
	return nil
}
