package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/shineum/postmail/internal/config"
	"github.com/shineum/postmail/internal/email"
	"github.com/shineum/postmail/internal/parser"
	"github.com/shineum/postmail/internal/provider"
	"github.com/shineum/postmail/internal/provider/stdout"
)

type sendOptions struct {
	from    string
	to      []string
	cc      []string
	bcc     []string
	subject string
	text    string
	html    string
	attach  []string
	dryRun  bool

	smtpHost   string
	smtpPort   int
	smtpDomain string
}

func newSendCmd(a *app) *cobra.Command {
	opts := &sendOptions{}

	sendCmd := &cobra.Command{
		Use:   "send [file.eml|-]",
		Short: "Deliver one message",
		Long: `Deliver a raw RFC 5322 message read from a file or standard input ("-"),
or compose one from flags. Flags given alongside a file replace its
sender and subject and add to its recipients. --text and --html replace
only the body part of their own type.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := buildMessage(cmd, args, opts)
			if err != nil {
				return err
			}

			prov, err := chooseProvider(cmd, a.cfg, opts)
			if err != nil {
				return err
			}

			receipt, err := prov.Send(cmdContext(cmd), msg)
			if err != nil {
				return fmt.Errorf("failed to send message: %w", err)
			}

			slog.Info("message sent",
				"provider", receipt.Provider,
				"status", receipt.StatusCode,
				"message_id", receipt.MessageID,
			)
			if !opts.dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "sent via %s (message id %q)\n", receipt.Provider, receipt.MessageID)
			}
			return nil
		},
	}

	f := sendCmd.Flags()
	f.StringVar(&opts.from, "from", "", "sender address")
	f.StringSliceVar(&opts.to, "to", nil, "recipient address (repeatable)")
	f.StringSliceVar(&opts.cc, "cc", nil, "carbon copy address (repeatable)")
	f.StringSliceVar(&opts.bcc, "bcc", nil, "blind carbon copy address (repeatable)")
	f.StringVarP(&opts.subject, "subject", "s", "", "subject line")
	f.StringVar(&opts.text, "text", "", "plain text body")
	f.StringVar(&opts.html, "html", "", "HTML body")
	f.StringArrayVarP(&opts.attach, "attach", "a", nil, "file to attach (repeatable)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the message instead of delivering it")
	f.StringVar(&opts.smtpHost, "smtp-host", "", "override the SMTP host for this message")
	f.IntVar(&opts.smtpPort, "smtp-port", 0, "override the SMTP port for this message")
	f.StringVar(&opts.smtpDomain, "smtp-domain", "", "override the SMTP HELO domain for this message")

	return sendCmd
}

func chooseProvider(cmd *cobra.Command, cfg *config.Config, opts *sendOptions) (provider.Provider, error) {
	if opts.dryRun {
		return stdout.NewWithWriter(cmd.OutOrStdout()), nil
	}
	return newRegistry(smtpOverrides(cmd, opts)).Select(cfg)
}

// smtpOverrides collects the SMTP flags that were given explicitly.
func smtpOverrides(cmd *cobra.Command, opts *sendOptions) config.SMTPSettings {
	var s config.SMTPSettings
	if cmd.Flags().Changed("smtp-host") {
		s.Address = config.Ptr(opts.smtpHost)
	}
	if cmd.Flags().Changed("smtp-port") {
		s.Port = config.Ptr(opts.smtpPort)
	}
	if cmd.Flags().Changed("smtp-domain") {
		s.Domain = config.Ptr(opts.smtpDomain)
	}
	return s
}

// buildMessage parses the message file when one is given, then applies the
// composition flags.
func buildMessage(cmd *cobra.Command, args []string, opts *sendOptions) (*email.Message, error) {
	msg := &email.Message{}
	if len(args) == 1 {
		in, err := openInput(cmd, args[0])
		if err != nil {
			return nil, err
		}
		defer in.Close()

		msg, err = parser.ParseReader(in)
		if err != nil {
			return nil, err
		}
	}

	if opts.from != "" {
		msg.From = []string{opts.from}
	}
	msg.To = append(msg.To, opts.to...)
	msg.Cc = append(msg.Cc, opts.cc...)
	msg.Bcc = append(msg.Bcc, opts.bcc...)
	if opts.subject != "" {
		msg.Subject = opts.subject
	}

	if opts.text != "" {
		setBody(msg, "text/plain", opts.text)
	}
	if opts.html != "" {
		setBody(msg, "text/html", opts.html)
	}

	for _, path := range opts.attach {
		att, err := loadAttachment(path)
		if err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	return msg, nil
}

// setBody replaces the body of the given media type and keeps any other
// body parts. A message that gains a second body type becomes multipart,
// with text/plain first.
func setBody(msg *email.Message, mediaType, body string) {
	part := email.Part{ContentType: mediaType + "; charset=utf-8", Body: []byte(body)}

	if !msg.Multipart() {
		if len(msg.Body) == 0 || strings.HasPrefix(strings.ToLower(msg.MediaType()), mediaType) {
			msg.ContentType, msg.Body = part.ContentType, part.Body
			return
		}
		msg.Parts = []email.Part{{ContentType: msg.MediaType(), Body: msg.Body}}
		msg.ContentType, msg.Body = "", nil
	}

	for i, p := range msg.Parts {
		if strings.HasPrefix(strings.ToLower(p.ContentType), mediaType) {
			msg.Parts[i] = part
			return
		}
	}
	if mediaType == "text/plain" {
		msg.Parts = append([]email.Part{part}, msg.Parts...)
		return
	}
	msg.Parts = append(msg.Parts, part)
}

// loadAttachment reads a file and sniffs its content type.
func loadAttachment(path string) (email.Attachment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return email.Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	return email.Attachment{
		Filename:    filepath.Base(path),
		ContentType: mimetype.Detect(content).String(),
		Content:     content,
	}, nil
}
