// Package signature implements the two HMAC schemes the relay speaks:
// the chat platform's versioned inbound scheme with a replay window, and
// the timestamped outbound scheme the agent webhook verifies.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"
)

const (
	TimestampHeader = "X-Slack-Request-Timestamp"
	SignatureHeader = "X-Slack-Signature"

	// ReplayWindow bounds both clock skew tolerance and replay exposure.
	ReplayWindow = 5 * time.Minute

	version = "v0"
)

// Verify checks an inbound webhook request's authenticity. Malformed or
// incomplete input is simply "not verified"; Verify never panics.
func Verify(headers http.Header, body []byte, secret string) bool {
	return verifyAt(time.Now(), headers, body, secret)
}

func verifyAt(now time.Time, headers http.Header, body []byte, secret string) bool {
	timestamp := headers.Get(TimestampHeader)
	supplied := headers.Get(SignatureHeader)
	if timestamp == "" || supplied == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	drift := now.Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > ReplayWindow {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(version))
	mac.Write([]byte(":"))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(":"))
	mac.Write(body)
	expected := version + "=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(supplied))
}

// Sign computes the outbound signature over timestamp + ":" + payload.
// The payload must be the exact bytes that go on the wire; re-serializing
// after signing breaks verification on the receiving side.
func Sign(payload []byte, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(":"))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
