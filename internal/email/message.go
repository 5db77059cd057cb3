// Package email defines the message model handed to delivery methods.
package email

import "strings"

// defaultContentType is the RFC 2045 default for a body without a Content-Type.
const defaultContentType = "text/plain"

// Message represents an outbound email message with all its components.
// Delivery methods treat a Message as read-only.
type Message struct {
	From      []string
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	MessageID string

	// ContentType and Body describe a single-part message.
	ContentType string
	Body        []byte

	// Parts holds the decoded leaf body parts of a multipart message,
	// in the order they appear.
	Parts []Part

	Attachments []Attachment

	// Envelope, when set, is the list of SMTP envelope recipients. It takes
	// precedence over the header recipients for delivery.
	Envelope []string
}

// Part is a decoded MIME body part tagged with its media type.
type Part struct {
	ContentType string
	Body        []byte
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Multipart reports whether the message body is made of several parts.
func (m *Message) Multipart() bool {
	return len(m.Parts) > 0
}

// Sender returns the first From address, or an empty string.
func (m *Message) Sender() string {
	if len(m.From) == 0 {
		return ""
	}
	return m.From[0]
}

// MediaType returns the content type of a single-part message,
// falling back to text/plain when none was set.
func (m *Message) MediaType() string {
	if m.ContentType == "" {
		return defaultContentType
	}
	return m.ContentType
}

// Recipients returns every envelope recipient (To, Cc, then Bcc).
func (m *Message) Recipients() []string {
	rcpts := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	rcpts = append(rcpts, m.To...)
	rcpts = append(rcpts, m.Cc...)
	rcpts = append(rcpts, m.Bcc...)
	return rcpts
}

// EnvelopeRecipients returns the addresses a message is delivered to:
// Envelope when set, otherwise Recipients.
func (m *Message) EnvelopeRecipients() []string {
	if len(m.Envelope) > 0 {
		return m.Envelope
	}
	return m.Recipients()
}

// Deliverable filters addrs down to the envelope recipients. Without an
// envelope every address is kept. Matching ignores case.
func (m *Message) Deliverable(addrs []string) []string {
	if len(m.Envelope) == 0 || len(addrs) == 0 {
		return addrs
	}

	envelope := make(map[string]bool, len(m.Envelope))
	for _, rcpt := range m.Envelope {
		envelope[strings.ToLower(rcpt)] = true
	}

	var kept []string
	for _, addr := range addrs {
		if envelope[strings.ToLower(addr)] {
			kept = append(kept, addr)
		}
	}
	return kept
}

// FindPart returns the decoded body whose media type starts with mimeType.
// For a multipart message the first matching part wins; a single-part message
// matches on its own content type. The second result is false when nothing matches.
func (m *Message) FindPart(mimeType string) ([]byte, bool) {
	if m.Multipart() {
		for _, p := range m.Parts {
			if hasMediaPrefix(p.ContentType, mimeType) {
				return p.Body, true
			}
		}
		return nil, false
	}

	if hasMediaPrefix(m.MediaType(), mimeType) {
		return m.Body, true
	}
	return nil, false
}

func hasMediaPrefix(contentType, mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), mimeType)
}
