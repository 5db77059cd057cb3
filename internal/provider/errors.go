package provider

import (
	"errors"
	"fmt"
)

// ErrNoRecipients is returned when a message has no envelope recipient.
var ErrNoRecipients = errors.New("message has no recipients")

// Kind classifies a delivery failure.
type Kind int

const (
	// KindTransport is a connection-level failure: DNS, refusal, timeout, TLS.
	KindTransport Kind = iota + 1
	// KindProtocol is a rejection by the remote party: a non-2xx HTTP
	// response or an SMTP protocol or authentication error.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// DeliveryError describes a failed delivery. It is never retried by the
// provider that produced it.
type DeliveryError struct {
	Kind     Kind
	Provider string
	// StatusCode is the HTTP status or SMTP reply code, 0 if none was received.
	StatusCode int
	// Body is the raw HTTP response body for protocol failures.
	Body string
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failure (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failure: %v", e.Provider, e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// TransportError wraps err as a connection-level failure.
func TransportError(provider string, err error) *DeliveryError {
	return &DeliveryError{Kind: KindTransport, Provider: provider, Err: err}
}

// ProtocolError wraps err as a rejection carrying the remote status and body.
func ProtocolError(provider string, status int, body string, err error) *DeliveryError {
	return &DeliveryError{Kind: KindProtocol, Provider: provider, StatusCode: status, Body: body, Err: err}
}

// IsTransient reports whether err is a transport failure, which callers may
// choose to treat as temporary.
func IsTransient(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == KindTransport
}
