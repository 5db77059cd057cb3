package relay

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/shineum/postmail/internal/email"
	"github.com/shineum/postmail/internal/parser"
	"github.com/shineum/postmail/internal/provider"
)

var (
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errAuthFailed = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication credentials invalid",
	}
	errAuthUnsupported = &gosmtp.SMTPError{
		Code:         502,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "Authentication not supported",
	}
	errParse = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "Message could not be parsed",
	}
	errTemporary = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 4, 0},
		Message:      "Temporary delivery failure, try again later",
	}
	errRejected = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 0, 0},
		Message:      "Delivery rejected",
	}
)

type backend struct {
	server *Server
}

func (b *backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	id := uuid.NewString()
	logger := slog.With("session_id", id, "remote_addr", c.Conn().RemoteAddr().String())
	logger.Debug("session opened")

	return &session{
		server: b.server,
		logger: logger,
	}, nil
}

// session holds the state of one SMTP connection.
type session struct {
	server *Server
	logger *slog.Logger

	authenticated bool
	from          string
	rcpts         []string
}

func (s *session) AuthMechanisms() []string {
	if !s.server.auth.Enabled() {
		return nil
	}
	return []string{sasl.Plain}
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if !s.server.auth.Enabled() || mech != sasl.Plain {
		return nil, errAuthUnsupported
	}
	return sasl.NewPlainServer(func(_, username, password string) error {
		if err := s.server.auth.Verify(username, password); err != nil {
			s.logger.Warn("authentication failed", "username", username)
			return errAuthFailed
		}
		s.authenticated = true
		s.logger.Debug("authenticated", "username", username)
		return nil
	}), nil
}

func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	if s.server.auth.Enabled() && !s.authenticated {
		return errAuthRequired
	}
	s.from = from
	return nil
}

func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.server.auth.Enabled() && !s.authenticated {
		return errAuthRequired
	}
	s.rcpts = append(s.rcpts, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	msg, err := parser.ParseReader(r)
	if err != nil {
		s.logger.Error("failed to parse message", "error", err)
		return errParse
	}
	applyEnvelope(msg, s.from, s.rcpts)

	receipt, err := s.server.provider.Send(context.Background(), msg)
	if err != nil {
		s.logger.Error("provider send failed",
			"provider", s.server.provider.Name(),
			"error", err,
		)
		if provider.IsTransient(err) {
			return errTemporary
		}
		return errRejected
	}

	s.logger.Info("message relayed",
		"provider", receipt.Provider,
		"message_id", receipt.MessageID,
		"recipients", len(s.rcpts),
	)
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

func (s *session) Logout() error {
	s.logger.Debug("session closed")
	return nil
}

// applyEnvelope fills a missing From with the envelope sender and makes
// every envelope recipient not already in To or Cc a Bcc recipient. The
// envelope recipients are recorded on the message so header-only addresses
// are not delivered to.
func applyEnvelope(msg *email.Message, from string, rcpts []string) {
	if len(msg.From) == 0 && from != "" {
		msg.From = []string{from}
	}
	msg.Envelope = append([]string(nil), rcpts...)

	listed := make(map[string]bool, len(msg.To)+len(msg.Cc))
	for _, addr := range msg.To {
		listed[strings.ToLower(addr)] = true
	}
	for _, addr := range msg.Cc {
		listed[strings.ToLower(addr)] = true
	}

	var bcc []string
	for _, rcpt := range rcpts {
		key := strings.ToLower(rcpt)
		if listed[key] {
			continue
		}
		listed[key] = true
		bcc = append(bcc, rcpt)
	}
	msg.Bcc = bcc
}

var _ gosmtp.AuthSession = (*session)(nil)
