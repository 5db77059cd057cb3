// Package parser turns raw RFC 5322 messages into email.Message values,
// decoding MIME structure, transfer encodings and charsets.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/shineum/postmail/internal/email"
)

// Parse parses a raw RFC 5322 message.
func Parse(raw []byte) (*email.Message, error) {
	return ParseReader(bytes.NewReader(raw))
}

// ParseReader parses an RFC 5322 message read from r.
// Nested multipart bodies are flattened into Message.Parts in document order;
// parts with an attachment disposition go to Message.Attachments.
// Unknown charsets and transfer encodings are logged and the raw bytes kept.
func ParseReader(r io.Reader) (*email.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		if mr == nil || !isRecoverable(err) {
			return nil, fmt.Errorf("failed to parse message: %w", err)
		}
		slog.Warn("message header could not be fully decoded", "error", err)
	}
	defer mr.Close()

	msg := &email.Message{
		From:      addressList(mr.Header, "From"),
		To:        addressList(mr.Header, "To"),
		Cc:        addressList(mr.Header, "Cc"),
		Bcc:       addressList(mr.Header, "Bcc"),
		Subject:   subject(mr.Header),
		MessageID: messageID(mr.Header),
	}

	multipart := isMultipart(mr.Header.Get("Content-Type"))

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if part == nil || !isRecoverable(err) {
				return nil, fmt.Errorf("failed to read message part: %w", err)
			}
			slog.Warn("message part could not be fully decoded", "error", err)
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			msg.Attachments = append(msg.Attachments, email.Attachment{
				Filename:    attachmentFilename(h),
				ContentType: mediaType(h.Get("Content-Type")),
				Content:     body,
			})
		case *mail.InlineHeader:
			contentType := decodedContentType(h.Get("Content-Type"))
			if !multipart {
				msg.ContentType = contentType
				msg.Body = body
				continue
			}
			if contentType == "" {
				contentType = "text/plain"
			}
			msg.Parts = append(msg.Parts, email.Part{ContentType: contentType, Body: body})
		}
	}

	return msg, nil
}

func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(mediaType(contentType), "multipart/")
}

// mediaType returns the lower-cased media type of a Content-Type value,
// or the trimmed value itself when it cannot be parsed.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// decodedContentType rewrites the charset parameter of a text part to utf-8
// since the body has already been converted.
func decodedContentType(contentType string) string {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	if _, ok := params["charset"]; ok && strings.HasPrefix(mt, "text/") {
		params["charset"] = "utf-8"
	}
	return mime.FormatMediaType(mt, params)
}

// attachmentFilename falls back to the Content-Type name parameter, then to
// a name derived from the media subtype.
func attachmentFilename(h *mail.AttachmentHeader) string {
	if name, err := h.Filename(); err == nil && name != "" {
		return name
	}

	mt, params, err := h.ContentType()
	if err != nil {
		return "attachment"
	}
	if name := params["name"]; name != "" {
		return name
	}
	if _, subtype, ok := strings.Cut(mt, "/"); ok && subtype != "" {
		return "attachment." + subtype
	}
	return "attachment"
}

func subject(h mail.Header) string {
	s, err := h.Subject()
	if err != nil {
		return h.Get("Subject")
	}
	return s
}

func messageID(h mail.Header) string {
	id, err := h.MessageID()
	if err != nil || id == "" {
		return strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	}
	return id
}

// addressList returns the bare addresses in a header field. A field that is
// not a valid RFC 5322 list is split on commas instead.
func addressList(h mail.Header, key string) []string {
	raw := h.Get(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	addrs, err := h.AddressList(key)
	if err != nil {
		var result []string
		for _, p := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, addr.Address)
	}
	return result
}
