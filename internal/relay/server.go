// Package relay implements an SMTP submission server that hands every
// accepted message to a delivery Provider.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/postmail/internal/config"
	"github.com/shineum/postmail/internal/provider"
)

const (
	// shutdownTimeout bounds the wait for in-flight sessions on shutdown.
	shutdownTimeout = 30 * time.Second

	readTimeout  = 60 * time.Second
	writeTimeout = 60 * time.Second

	maxRecipients = 100
)

// Server accepts SMTP submissions and delivers them through a Provider.
type Server struct {
	cfg      config.RelayConfig
	provider provider.Provider
	auth     *Authenticator
	smtp     *gosmtp.Server

	mu   sync.Mutex
	addr net.Addr
}

// New creates a Server. A nil tlsConfig disables STARTTLS and allows AUTH on
// the plain connection.
func New(cfg config.RelayConfig, prov provider.Provider, tlsConfig *tls.Config) *Server {
	if cfg.Hostname == "" {
		cfg.Hostname = "localhost"
	}

	s := &Server{
		cfg:      cfg,
		provider: prov,
		auth:     NewAuthenticator(cfg.Username, cfg.Password),
	}

	srv := gosmtp.NewServer(&backend{server: s})
	srv.Addr = cfg.Listen
	srv.Domain = cfg.Hostname
	srv.ReadTimeout = readTimeout
	srv.WriteTimeout = writeTimeout
	srv.MaxMessageBytes = cfg.MaxMessageSize
	srv.MaxRecipients = maxRecipients
	srv.TLSConfig = tlsConfig
	srv.AllowInsecureAuth = tlsConfig == nil
	srv.ErrorLog = slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn)
	s.smtp = srv

	return s
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then stops
// accepting and waits up to 30 seconds for in-flight sessions.
// @MX:WARN: [AUTO] go-smtp spawns one goroutine per connection without a limit
// @MX:REASON: Each accepted TCP connection starts a session goroutine
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	slog.Info("SMTP relay listening",
		"addr", ln.Addr().String(),
		"provider", s.provider.Name(),
		"auth_enabled", s.auth.Enabled(),
		"tls_enabled", s.smtp.TLSConfig != nil,
	)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		slog.Info("shutting down SMTP relay")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.smtp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown timeout reached, forcing close", "error", err)
			s.smtp.Close()
		}
	}()

	err := s.smtp.Serve(ln)
	if errors.Is(err, gosmtp.ErrServerClosed) {
		<-stopped
		slog.Info("all sessions completed")
		return nil
	}
	return err
}

// Addr returns the listener address, or an empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}
