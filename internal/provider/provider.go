// Package provider defines the interface for email delivery methods and
// selects the active one from configuration.
package provider

import (
	"context"

	"github.com/shineum/postmail/internal/email"
)

// Provider is the interface that delivery methods must implement.
// Each provider performs a single synchronous send per call with no retries.
type Provider interface {
	// Send delivers an email message through this provider.
	// It returns a Receipt when the remote party accepted the message and
	// an error (usually a *DeliveryError) otherwise.
	Send(ctx context.Context, msg *email.Message) (*Receipt, error)

	// Name returns the registry name of this provider.
	Name() string
}

// Receipt carries transport-specific metadata about an accepted message.
type Receipt struct {
	// Provider is the name of the provider that delivered the message.
	Provider string
	// StatusCode is the HTTP status or the final SMTP reply code.
	StatusCode int
	// Body is the raw HTTP response body, if any.
	Body []byte
	// MessageID is the Message-Id used for the submission, if known.
	MessageID string
}
