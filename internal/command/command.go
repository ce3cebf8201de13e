// Package command extracts a normalized slash-command record from the
// chat platform's form-encoded webhook body.
package command

import (
	"fmt"
	"net/url"
	"strings"
)

// TicketPrefix is the public ticket-number prefix the relay accepts.
const TicketPrefix = "INC"

// SlashCommand is the normalized inbound command. Immutable after Parse.
type SlashCommand struct {
	Command     string // e.g. "/ops-status"
	TicketRef   string
	RawText     string
	ResponseURL string
	UserID      string
}

type ParseErrorKind string

const (
	InvalidTicketFormat ParseErrorKind = "invalid_ticket_format"
	MalformedBody       ParseErrorKind = "malformed_body"
)

type ParseError struct {
	Kind ParseErrorKind
	msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing slash command: %s", e.msg)
}

// Parse decodes a URL-form-encoded body into a SlashCommand. Repeated
// fields keep their first value. A ticket reference that does not match
// the ticket-number prefix policy is a typed ParseError so the dispatcher
// can answer the user directly instead of enqueuing.
func Parse(rawBody []byte) (SlashCommand, error) {
	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		return SlashCommand{}, &ParseError{Kind: MalformedBody, msg: err.Error()}
	}

	cmd := SlashCommand{
		Command:     values.Get("command"),
		RawText:     values.Get("text"),
		ResponseURL: values.Get("response_url"),
		UserID:      values.Get("user_id"),
	}

	ticket := strings.TrimSpace(cmd.RawText)
	if !strings.HasPrefix(ticket, TicketPrefix) {
		return SlashCommand{}, &ParseError{
			Kind: InvalidTicketFormat,
			msg:  fmt.Sprintf("ticket ref %q does not start with %s", ticket, TicketPrefix),
		}
	}
	cmd.TicketRef = ticket

	return cmd, nil
}
