// Package api implements a Provider that sends emails via the Postal HTTP API.
package api

import (
	"encoding/base64"
	"strings"

	"github.com/shineum/postmail/internal/email"
)

// sendMessageRequest is the JSON body for the send/message endpoint.
// Keys without a value are omitted; subject is always present.
type sendMessageRequest struct {
	From        string           `json:"from,omitempty"`
	To          string           `json:"to,omitempty"`
	Cc          string           `json:"cc,omitempty"`
	Bcc         string           `json:"bcc,omitempty"`
	Subject     string           `json:"subject"`
	PlainBody   *string          `json:"plain_body,omitempty"`
	HTMLBody    *string          `json:"html_body,omitempty"`
	Attachments []postAttachment `json:"attachments,omitempty"`
}

// postAttachment is a file attachment with base64 encoded data.
type postAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// buildSendMessageRequest converts a Message into the API request body.
// When the message carries an envelope, recipients outside it are dropped.
func buildSendMessageRequest(msg *email.Message) *sendMessageRequest {
	return &sendMessageRequest{
		From:        msg.Sender(),
		To:          joinAddresses(msg.Deliverable(msg.To)),
		Cc:          joinAddresses(msg.Deliverable(msg.Cc)),
		Bcc:         joinAddresses(msg.Deliverable(msg.Bcc)),
		Subject:     msg.Subject,
		PlainBody:   extractPart(msg, "text/plain"),
		HTMLBody:    extractPart(msg, "text/html"),
		Attachments: buildAttachments(msg.Attachments),
	}
}

// joinAddresses renders a recipient list as a single comma-separated string.
func joinAddresses(addrs []string) string {
	return strings.Join(addrs, ",")
}

// extractPart returns the decoded body matching mimeType, or nil when the
// message has no such part.
func extractPart(msg *email.Message, mimeType string) *string {
	body, ok := msg.FindPart(mimeType)
	if !ok {
		return nil
	}
	s := string(body)
	return &s
}

// buildAttachments encodes attachment content as unwrapped standard base64.
// It returns nil when there are no attachments so the key is omitted.
func buildAttachments(attachments []email.Attachment) []postAttachment {
	if len(attachments) == 0 {
		return nil
	}

	result := make([]postAttachment, 0, len(attachments))
	for _, att := range attachments {
		result = append(result, postAttachment{
			Name:        att.Filename,
			ContentType: att.ContentType,
			Data:        base64.StdEncoding.EncodeToString(att.Content),
		})
	}
	return result
}
