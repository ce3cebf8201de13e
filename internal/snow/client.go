// Package snow is the ServiceNow table-API client the relay uses to read
// and resolve incidents. The relay never caches ticket state: it has no
// authority over concurrent edits in the instance, so every operation
// re-fetches by ticket number.
package snow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotFound = errors.New("incident not found")

// StatusError is a non-2xx response from the instance. The dispatcher
// treats it as transient and lets the queue redeliver.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("servicenow %s failed: status %d", e.Op, e.StatusCode)
}

// Incident is a ticket record as the table API returns it (display
// values on). sys_id is the internal primary key, number the public one.
type Incident struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	State            string `json:"state"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
}

const (
	// state "7" = Closed in a standard instance mapping.
	resolvedState = "7"
	closeCode     = "Solved (Work Around)"
	closeNotes    = "Closed via Slack"
)

type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient builds a client for one instance. instance may be a bare
// instance name ("dev282699") or a full base URL.
func NewClient(instance, username, password string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	baseURL := instance
	if !strings.Contains(baseURL, "://") {
		baseURL = fmt.Sprintf("https://%s.service-now.com", instance)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: httpClient,
	}
}

// FindByNumber looks an incident up by its public ticket number. An
// empty result set is ErrNotFound, not a failure.
func (c *Client) FindByNumber(ctx context.Context, number string) (*Incident, error) {
	query := url.Values{}
	query.Set("sysparm_query", "number="+number)
	query.Set("sysparm_display_value", "true")
	reqURL := c.baseURL + "/api/now/table/incident?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building incident query: %w", err)
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying incident %s: %w", number, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: "query", StatusCode: resp.StatusCode}
	}

	var body struct {
		Result []Incident `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding incident query response: %w", err)
	}

	if len(body.Result) == 0 {
		return nil, fmt.Errorf("incident %s: %w", number, ErrNotFound)
	}

	return &body.Result[0], nil
}

// Resolve moves the incident into the terminal closed state with the
// fixed resolution code. Callers must check IsTerminal first so an
// already-resolved ticket is a reported no-op rather than a second
// mutation (redelivery safety).
func (c *Client) Resolve(ctx context.Context, sysID string) error {
	payload, err := json.Marshal(map[string]string{
		"state":       resolvedState,
		"close_code":  closeCode,
		"close_notes": closeNotes,
	})
	if err != nil {
		return fmt.Errorf("encoding resolve payload: %w", err)
	}

	reqURL := c.baseURL + "/api/now/table/incident/" + url.PathEscape(sysID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building resolve request: %w", err)
	}
	c.prepare(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resolving incident %s: %w", sysID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: "resolve", StatusCode: resp.StatusCode}
	}

	return nil
}

func (c *Client) prepare(req *http.Request) {
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// IsTerminal reports whether a state string is a terminal
// resolved/closed state. Handles both display values and the numeric
// states returned when sysparm_display_value is off.
func IsTerminal(state string) bool {
	switch state {
	case "Resolved", "Closed", "6", "7":
		return true
	}
	return false
}
