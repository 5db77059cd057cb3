package smtp

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/shineum/postmail/internal/email"
)

// writeMessage renders msg as an RFC 5322 message and returns its Message-ID
// without angle brackets. Bcc recipients only appear in the envelope.
func writeMessage(w io.Writer, msg *email.Message, now time.Time) (string, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	setAddressList(&h, "From", msg.From)
	setAddressList(&h, "To", msg.To)
	setAddressList(&h, "Cc", msg.Cc)

	if id := strings.Trim(msg.MessageID, "<> "); id != "" {
		h.SetMessageID(id)
	} else if err := h.GenerateMessageID(); err != nil {
		return "", fmt.Errorf("failed to generate message id: %w", err)
	}
	messageID, err := h.MessageID()
	if err != nil {
		return "", fmt.Errorf("failed to read message id: %w", err)
	}

	if !msg.Multipart() && len(msg.Attachments) == 0 {
		return messageID, writeSinglePart(w, h, msg)
	}
	return messageID, writeMultipart(w, h, msg)
}

func writeSinglePart(w io.Writer, h mail.Header, msg *email.Message) error {
	mediaType, params := splitContentType(msg.MediaType())
	h.SetContentType(mediaType, params)

	bw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return err
	}
	if _, err := bw.Write(msg.Body); err != nil {
		bw.Close()
		return err
	}
	return bw.Close()
}

// writeMultipart emits multipart/mixed with the body parts grouped under
// multipart/alternative, followed by the attachments.
func writeMultipart(w io.Writer, h mail.Header, msg *email.Message) error {
	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return err
	}

	parts := msg.Parts
	if !msg.Multipart() {
		parts = []email.Part{{ContentType: msg.MediaType(), Body: msg.Body}}
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return err
	}
	for _, part := range parts {
		var ph mail.InlineHeader
		mediaType, params := splitContentType(part.ContentType)
		ph.SetContentType(mediaType, params)

		pw, err := iw.CreatePart(ph)
		if err != nil {
			return err
		}
		if _, err := pw.Write(part.Body); err != nil {
			pw.Close()
			return err
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}
	if err := iw.Close(); err != nil {
		return err
	}

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		mediaType, params := splitContentType(att.ContentType)
		if mediaType == "text/plain" && att.ContentType == "" {
			mediaType = "application/octet-stream"
		}
		ah.SetContentType(mediaType, params)
		ah.SetFilename(att.Filename)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return err
		}
		if _, err := aw.Write(att.Content); err != nil {
			aw.Close()
			return err
		}
		if err := aw.Close(); err != nil {
			return err
		}
	}

	return mw.Close()
}

// splitContentType parses a Content-Type value, treating an empty or
// malformed value as UTF-8 text/plain.
func splitContentType(contentType string) (string, map[string]string) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		return "text/plain", map[string]string{"charset": "utf-8"}
	}
	return mediaType, params
}

func setAddressList(h *mail.Header, key string, addrs []string) {
	if len(addrs) == 0 {
		return
	}

	list := make([]*mail.Address, 0, len(addrs))
	for _, raw := range addrs {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			addr = &mail.Address{Address: raw}
		}
		list = append(list, addr)
	}
	h.SetAddressList(key, list)
}
