// Package stdout implements a dry-run Provider that prints emails instead of
// delivering them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/postmail/internal/email"
	"github.com/shineum/postmail/internal/provider"
)

// Name identifies the dry-run provider.
const Name = "stdout"

const separator = "========================================\n"

// Provider writes a readable summary of each message to a writer.
type Provider struct {
	writer io.Writer
}

// New creates a Provider that writes to os.Stdout.
func New() *Provider {
	return &Provider{writer: os.Stdout}
}

// NewWithWriter creates a Provider that writes to w.
func NewWithWriter(w io.Writer) *Provider {
	return &Provider{writer: w}
}

// Send prints the message. Bcc recipients are shown since nothing leaves
// the process.
func (p *Provider) Send(_ context.Context, msg *email.Message) (*provider.Receipt, error) {
	var b strings.Builder

	b.WriteString(separator)
	writeList(&b, "From", msg.From)
	writeList(&b, "To", msg.To)
	writeList(&b, "Cc", msg.Cc)
	writeList(&b, "Bcc", msg.Bcc)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)

	if msg.Multipart() {
		for _, part := range msg.Parts {
			fmt.Fprintf(&b, "Part (%s):\n%s\n", part.ContentType, part.Body)
		}
	} else {
		fmt.Fprintf(&b, "Body (%s):\n%s\n", msg.MediaType(), msg.Body)
	}

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			attachments = append(attachments, fmt.Sprintf("%s (%s, %s)", att.Filename, att.ContentType, formatSize(len(att.Content))))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(attachments, ", "))
	}
	b.WriteString(separator)

	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return nil, provider.TransportError(Name, fmt.Errorf("failed to write message: %w", err))
	}

	return &provider.Receipt{Provider: Name, MessageID: msg.MessageID}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return Name
}

func writeList(b *strings.Builder, header string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", header, strings.Join(values, ", "))
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
