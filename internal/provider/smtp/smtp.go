// Package smtp implements a Provider that submits emails to an SMTP server.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/postmail/internal/config"
	"github.com/shineum/postmail/internal/email"
	"github.com/shineum/postmail/internal/provider"
)

// Fallbacks used when the effective settings leave a value unset.
const (
	defaultHost     = "localhost"
	defaultPort     = 25
	defaultTimeout  = 30 * time.Second
	defaultHelo     = "localhost"
	acceptedReplyOK = 250
)

// Provider submits messages over SMTP using the resolved SMTP settings
// merged with per-provider overrides.
// @MX:ANCHOR: [AUTO] External system integration point for SMTP submission
// @MX:REASON: All email delivery flows through this provider unless delivery_method is api
type Provider struct {
	cfg       *config.Config
	overrides config.SMTPSettings

	// tlsConfig is cloned for every session; nil uses system roots.
	tlsConfig *tls.Config
}

// New creates a Provider. Keys set in overrides win over the configuration.
func New(cfg *config.Config, overrides config.SMTPSettings) *Provider {
	return &Provider{cfg: cfg, overrides: overrides}
}

// newWithTLSConfig creates a Provider with a custom TLS configuration,
// used for testing.
func newWithTLSConfig(cfg *config.Config, overrides config.SMTPSettings, tlsConfig *tls.Config) *Provider {
	return &Provider{cfg: cfg, overrides: overrides, tlsConfig: tlsConfig}
}

// Send delivers msg using the provider's own overrides.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (*provider.Receipt, error) {
	return p.SendWith(ctx, msg, p.overrides)
}

// SendWith delivers msg with the configuration's SMTP settings merged with
// overrides, overrides winning on collision. The transport's own failures
// are returned as-is inside a DeliveryError; nothing is retried.
func (p *Provider) SendWith(ctx context.Context, msg *email.Message, overrides config.SMTPSettings) (*provider.Receipt, error) {
	settings, err := p.cfg.SMTPSettings().Merge(overrides)
	if err != nil {
		return nil, err
	}

	rcpts := msg.EnvelopeRecipients()
	if len(rcpts) == 0 {
		return nil, provider.ErrNoRecipients
	}

	var buf bytes.Buffer
	messageID, err := writeMessage(&buf, msg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	if err := p.submit(ctx, settings, msg.Sender(), rcpts, buf.Bytes()); err != nil {
		slog.Debug("smtp submission failed",
			"address", settings.Host(),
			"error", err,
		)
		return nil, p.classify(err)
	}

	return &provider.Receipt{
		Provider:   p.Name(),
		StatusCode: acceptedReplyOK,
		MessageID:  messageID,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return provider.NameSMTP
}

// submit runs one SMTP session: connect, EHLO, optional STARTTLS and AUTH,
// MAIL/RCPT/DATA, QUIT. The whole session shares one deadline.
func (p *Provider) submit(ctx context.Context, s config.SMTPSettings, from string, rcpts []string, data []byte) error {
	host := s.Host()
	if host == "" {
		host = defaultHost
	}
	port := config.Value(s.Port)
	if port == 0 {
		port = defaultPort
	}
	timeout := config.Value(s.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	tlsConfig := p.sessionTLSConfig(host)
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := dial(ctx, addr, deadline, s.UseSSL(), tlsConfig)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c := gosmtp.NewClient(conn)
	defer c.Close()

	helo := config.Value(s.Domain)
	if helo == "" {
		helo = defaultHelo
	}
	if err := c.Hello(helo); err != nil {
		return err
	}

	if !s.UseSSL() && s.UseStartTLS() {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	if user := config.Value(s.UserName); user != "" {
		auth, err := saslClient(config.Value(s.Authentication), user, config.Value(s.Password))
		if err != nil {
			return err
		}
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.SendMail(from, rcpts, bytes.NewReader(data)); err != nil {
		return err
	}

	return c.Quit()
}

// dial opens a plain or implicit-TLS connection to addr.
func dial(ctx context.Context, addr string, deadline time.Time, useTLS bool, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := &net.Dialer{Deadline: deadline}
	if !useTLS {
		return dialer.DialContext(ctx, "tcp", addr)
	}

	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}

func (p *Provider) sessionTLSConfig(host string) *tls.Config {
	if p.tlsConfig == nil {
		return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	cfg := p.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// classify maps a session error to a DeliveryError. Replies from the server
// and local authentication misconfiguration are protocol failures; anything
// else happened on the wire.
func (p *Provider) classify(err error) error {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return provider.ProtocolError(p.Name(), smtpErr.Code, smtpErr.Message, err)
	}
	if errors.Is(err, errUnsupportedAuth) {
		return provider.ProtocolError(p.Name(), 0, "", err)
	}
	return provider.TransportError(p.Name(), err)
}
