package cmd

import (
	"github.com/shineum/postmail/internal/config"
	"github.com/shineum/postmail/internal/provider"
	"github.com/shineum/postmail/internal/provider/api"
	"github.com/shineum/postmail/internal/provider/smtp"
)

// newRegistry registers both delivery methods. smtpOverrides are applied on
// top of the configured SMTP settings.
func newRegistry(smtpOverrides config.SMTPSettings) *provider.Registry {
	r := provider.NewRegistry()
	r.Register(provider.NameAPI, func(cfg *config.Config) (provider.Provider, error) {
		return api.New(cfg), nil
	})
	r.Register(provider.NameSMTP, func(cfg *config.Config) (provider.Provider, error) {
		return smtp.New(cfg, smtpOverrides), nil
	})
	return r
}
