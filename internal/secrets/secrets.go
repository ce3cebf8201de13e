package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Bundle is the set of named credentials a single invocation works with.
// It is immutable once handed out; refresh happens in the provider, never
// mid-invocation. Never log a bundle in full.
type Bundle struct {
	SigningSecret string `json:"slack_signing_secret"`
	SNInstance    string `json:"sn_instance"`
	SNUser        string `json:"sn_user"`
	SNPass        string `json:"sn_pass"`
	WebhookURL    string `json:"webhook_url"`
	SecretString  string `json:"secret_string"`
}

var ErrMissingSecret = errors.New("secret bundle incomplete")

// Provider hands out the current secret bundle. How the bundle is stored
// and rotated belongs to the surrounding ops layer; the relay only
// consumes this accessor.
type Provider interface {
	Bundle(ctx context.Context) (Bundle, error)
}

// EnvProvider reads the bundle from a single environment variable holding
// the secret manager's JSON secret string.
type EnvProvider struct {
	Key string
}

func NewEnvProvider(key string) *EnvProvider {
	return &EnvProvider{Key: key}
}

func (p *EnvProvider) Bundle(ctx context.Context) (Bundle, error) {
	raw, ok := os.LookupEnv(p.Key)
	if !ok || raw == "" {
		return Bundle{}, fmt.Errorf("reading secret bundle: %s is not set", p.Key)
	}

	var b Bundle
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return Bundle{}, fmt.Errorf("parsing secret bundle: %w", err)
	}
	return b, nil
}

// StaticProvider returns a fixed bundle. Test use only.
type StaticProvider struct {
	Value Bundle
}

func (p *StaticProvider) Bundle(ctx context.Context) (Bundle, error) {
	return p.Value, nil
}

// RequireChat validates the fields the inbound-command path needs.
func (b Bundle) RequireChat() error {
	if b.SigningSecret == "" {
		return fmt.Errorf("%w: slack_signing_secret", ErrMissingSecret)
	}
	return nil
}

// RequireITSM validates the fields the ticket client needs.
func (b Bundle) RequireITSM() error {
	if b.SNInstance == "" || b.SNUser == "" || b.SNPass == "" {
		return fmt.Errorf("%w: sn_instance/sn_user/sn_pass", ErrMissingSecret)
	}
	return nil
}

// RequireForward validates the fields the agent-webhook path needs.
func (b Bundle) RequireForward() error {
	if b.WebhookURL == "" || b.SecretString == "" {
		return fmt.Errorf("%w: webhook_url/secret_string", ErrMissingSecret)
	}
	return nil
}
