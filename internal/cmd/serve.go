package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shineum/postmail/internal/config"
	"github.com/shineum/postmail/internal/relay"
	ptls "github.com/shineum/postmail/internal/tls"
)

func newServeCmd(a *app) *cobra.Command {
	var noTLS bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local SMTP relay",
		Long: `Accept SMTP submissions on POSTMAIL_RELAY_LISTEN and deliver each message
with the configured delivery method. Runs until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg

			prov, err := newRegistry(config.SMTPSettings{}).Select(cfg)
			if err != nil {
				return err
			}

			tlsMode := "disabled"
			var srv *relay.Server
			if noTLS {
				srv = relay.New(cfg.Relay, prov, nil)
			} else {
				tlsConfig, err := ptls.ServerConfig(cfg.Relay.CertFile, cfg.Relay.KeyFile, cfg.Relay.Hostname)
				if err != nil {
					return err
				}
				tlsMode = "self-signed"
				if cfg.Relay.CertFile != "" {
					tlsMode = "file"
				}
				srv = relay.New(cfg.Relay, prov, tlsConfig)
			}

			slog.Info("starting postmail relay",
				"listen", cfg.Relay.Listen,
				"provider", prov.Name(),
				"auth_enabled", cfg.RelayAuthEnabled(),
				"tls_mode", tlsMode,
			)

			ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}
			slog.Info("postmail relay stopped")
			return nil
		},
	}

	serveCmd.Flags().BoolVar(&noTLS, "no-tls", false, "do not offer STARTTLS")

	return serveCmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
