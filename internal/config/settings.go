package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
)

// SMTPSettings is the projection of the SMTP fields handed to the SMTP
// transport. A nil field is unset and the transport falls back to its own
// default for it.
type SMTPSettings struct {
	Address            *string         `yaml:"address,omitempty"`
	Port               *int            `yaml:"port,omitempty"`
	UserName           *string         `yaml:"user_name,omitempty"`
	Password           *string         `yaml:"password,omitempty"`
	Authentication     *Authentication `yaml:"authentication,omitempty"`
	EnableStartTLSAuto *bool           `yaml:"enable_starttls_auto,omitempty"`
	SSL                *bool           `yaml:"ssl,omitempty"`
	Domain             *string         `yaml:"domain,omitempty"`
	Timeout            *time.Duration  `yaml:"timeout,omitempty"`
}

// SMTPSettings projects the SMTP configuration into transport settings.
// Unset optional values (username, password, domain) are left nil.
func (c *Config) SMTPSettings() SMTPSettings {
	s := SMTPSettings{
		Address:            ptr(c.SMTP.Host),
		Port:               ptr(c.SMTP.Port),
		Authentication:     ptr(c.SMTP.Authentication),
		EnableStartTLSAuto: c.SMTP.EnableStartTLSAuto,
		SSL:                ptr(c.SMTP.SSL),
	}
	if c.SMTP.Username != "" {
		s.UserName = ptr(c.SMTP.Username)
	}
	if c.SMTP.Password != "" {
		s.Password = ptr(c.SMTP.Password)
	}
	if c.SMTP.Domain != "" {
		s.Domain = ptr(c.SMTP.Domain)
	}
	if c.SMTP.Timeout > 0 {
		s.Timeout = ptr(c.SMTP.Timeout)
	}
	return s
}

// Merge returns s with every field set in overrides replacing the value in s.
// An explicit false or zero in overrides still wins because only nil fields
// are skipped.
func (s SMTPSettings) Merge(overrides SMTPSettings) (SMTPSettings, error) {
	merged := s
	if err := mergo.Merge(&merged, overrides, mergo.WithOverride, mergo.WithoutDereference); err != nil {
		return SMTPSettings{}, fmt.Errorf("failed to merge smtp settings: %w", err)
	}
	return merged, nil
}

// Map renders the settings as a key/value mapping. Unset fields are omitted
// entirely; the mapping never contains nil values.
func (s SMTPSettings) Map() map[string]any {
	m := make(map[string]any)
	if s.Address != nil {
		m["address"] = *s.Address
	}
	if s.Port != nil {
		m["port"] = *s.Port
	}
	if s.UserName != nil {
		m["user_name"] = *s.UserName
	}
	if s.Password != nil {
		m["password"] = *s.Password
	}
	if s.Authentication != nil {
		m["authentication"] = *s.Authentication
	}
	if s.EnableStartTLSAuto != nil {
		m["enable_starttls_auto"] = *s.EnableStartTLSAuto
	}
	if s.SSL != nil {
		m["ssl"] = *s.SSL
	}
	if s.Domain != nil {
		m["domain"] = *s.Domain
	}
	if s.Timeout != nil {
		m["timeout"] = *s.Timeout
	}
	return m
}

// Host returns the address, or an empty string when unset.
func (s SMTPSettings) Host() string {
	if s.Address == nil {
		return ""
	}
	return *s.Address
}

// UseSSL reports whether implicit TLS is enabled.
func (s SMTPSettings) UseSSL() bool {
	return s.SSL != nil && *s.SSL
}

// UseStartTLS reports whether STARTTLS should be attempted.
func (s SMTPSettings) UseStartTLS() bool {
	return s.EnableStartTLSAuto != nil && *s.EnableStartTLSAuto
}

// Value returns *p or the zero value of T.
func Value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Ptr returns a pointer to v. Handy for building override settings.
func Ptr[T any](v T) *T {
	return ptr(v)
}
