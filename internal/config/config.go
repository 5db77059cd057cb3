// Package config resolves postmail delivery settings from environment
// variables, with optional YAML file and .env fallbacks.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultAPIEndpoint is the Postal send endpoint used when none is configured.
const DefaultAPIEndpoint = "https://postal.exanora.com/api/v1/send/message"

const (
	defaultSMTPHost       = "localhost"
	defaultSMTPPort       = 25
	defaultSMTPTimeout    = 30 * time.Second
	defaultRelayListen    = ":2525"
	defaultRelayHostname  = "localhost"
	defaultMaxMessageSize = 26214400 // 25 MB
)

// Environment variable names.
const (
	EnvDeliveryMethod     = "POSTMAIL_DELIVERY_METHOD"
	EnvDisableDefaultSMTP = "POSTMAIL_DISABLE_RAILS_SMTP"
	EnvAPIEndpoint        = "POSTMAIL_API_ENDPOINT"
	EnvAPIKey             = "POSTMAIL_API_KEY"
	EnvSMTPHost           = "POSTMAIL_SMTP_HOST"
	EnvSMTPPort           = "POSTMAIL_SMTP_PORT"
	EnvSMTPUsername       = "POSTMAIL_SMTP_USERNAME"
	EnvSMTPPassword       = "POSTMAIL_SMTP_PASSWORD"
	EnvSMTPAuth           = "POSTMAIL_SMTP_AUTH"
	EnvSMTPStartTLSAuto   = "POSTMAIL_SMTP_ENABLE_STARTTLS_AUTO"
	EnvSMTPSSL            = "POSTMAIL_SMTP_SSL"
	EnvSMTPDomain         = "POSTMAIL_SMTP_DOMAIN"
	EnvSMTPTimeout        = "POSTMAIL_SMTP_TIMEOUT"
	EnvRelayListen        = "POSTMAIL_RELAY_LISTEN"
	EnvRelayHostname      = "POSTMAIL_RELAY_HOSTNAME"
	EnvRelayUsername      = "POSTMAIL_RELAY_USERNAME"
	EnvRelayPassword      = "POSTMAIL_RELAY_PASSWORD"
	EnvRelayMaxSize       = "POSTMAIL_RELAY_MAX_MESSAGE_SIZE"
	EnvRelayCertFile      = "POSTMAIL_RELAY_TLS_CERT_FILE"
	EnvRelayKeyFile       = "POSTMAIL_RELAY_TLS_KEY_FILE"
	EnvLogLevel           = "LOG_LEVEL"
)

// Config holds the resolved postmail configuration. A Config is treated as
// immutable once resolved; use Reconfigure to derive a modified copy.
type Config struct {
	DeliveryMethod     DeliveryMethod `yaml:"delivery_method"`
	DisableDefaultSMTP *bool          `yaml:"disable_default_smtp,omitempty"`
	API                APIConfig      `yaml:"api"`
	SMTP               SMTPConfig     `yaml:"smtp"`
	Relay              RelayConfig    `yaml:"relay"`
	Logging            LoggingConfig  `yaml:"logging"`
}

// APIConfig holds the HTTP relay API settings.
type APIConfig struct {
	Endpoint string `yaml:"endpoint"`
	// Key is sent as X-Server-API-Key. It is not validated locally; a missing
	// key surfaces as an authentication failure from the remote endpoint.
	Key string `yaml:"key"`
}

// SMTPConfig holds outbound SMTP settings.
type SMTPConfig struct {
	Host               string         `yaml:"host"`
	Port               int            `yaml:"port"`
	Username           string         `yaml:"username"`
	Password           string         `yaml:"password"`
	Authentication     Authentication `yaml:"authentication"`
	EnableStartTLSAuto *bool          `yaml:"enable_starttls_auto,omitempty"`
	SSL                bool           `yaml:"ssl"`
	Domain             string         `yaml:"domain"`
	Timeout            time.Duration  `yaml:"timeout"`
}

// RelayConfig holds settings for the local SMTP relay listener.
type RelayConfig struct {
	Listen         string `yaml:"listen"`
	Hostname       string `yaml:"hostname"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Source looks up a configuration value by key. An empty result means the
// key is not set.
type Source func(key string) string

// EnvSource reads values from the process environment.
var EnvSource Source = os.Getenv

// MapSource returns a Source backed by a fixed map.
func MapSource(values map[string]string) Source {
	return func(key string) string {
		return values[key]
	}
}

// Resolve builds a Config from defaults and the given source. It is a pure
// function of the source: identical input yields an identical Config.
func Resolve(src Source) *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applySource(src)
	cfg.normalize()
	return cfg
}

// Load resolves configuration from environment variables with defaults.
func Load() (*Config, error) {
	return Resolve(EnvSource), nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applySource(EnvSource)
	cfg.normalize()

	return cfg, nil
}

// LoadDotEnv loads the given .env files into the process environment.
// Variables that are already set are left untouched. With no paths it loads
// ./.env if present and is a no-op otherwise.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// APIDelivery reports whether the HTTP relay API is the selected transport.
func (c *Config) APIDelivery() bool {
	return c.DeliveryMethod == MethodAPI
}

// DisableDefaultSMTPEnabled reports whether the host's own SMTP settings
// should be discarded. It is advisory only and never changes delivery.
func (c *Config) DisableDefaultSMTPEnabled() bool {
	return c.DisableDefaultSMTP != nil && *c.DisableDefaultSMTP
}

// RelayAuthEnabled returns true if both relay username and password are set.
func (c *Config) RelayAuthEnabled() bool {
	return c.Relay.Username != "" && c.Relay.Password != ""
}

// Reconfigure returns a copy of c with fn applied. The receiver is not modified.
// Derived defaults are not recomputed: a caller that sets SMTP.SSL should
// also set SMTP.EnableStartTLSAuto.
func (c *Config) Reconfigure(fn func(*Config)) *Config {
	next := *c
	if c.DisableDefaultSMTP != nil {
		next.DisableDefaultSMTP = ptr(*c.DisableDefaultSMTP)
	}
	if c.SMTP.EnableStartTLSAuto != nil {
		next.SMTP.EnableStartTLSAuto = ptr(*c.SMTP.EnableStartTLSAuto)
	}
	fn(&next)
	return &next
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c *Config) Redacted() *Config {
	return c.Reconfigure(func(r *Config) {
		r.API.Key = mask(r.API.Key)
		r.SMTP.Password = mask(r.SMTP.Password)
		r.Relay.Password = mask(r.Relay.Password)
	})
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

// applyDefaults sets default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.DeliveryMethod = MethodSMTP
	c.API.Endpoint = DefaultAPIEndpoint
	c.SMTP.Host = defaultSMTPHost
	c.SMTP.Port = defaultSMTPPort
	c.SMTP.Authentication = AuthLogin
	c.SMTP.Timeout = defaultSMTPTimeout
	c.Relay.Listen = defaultRelayListen
	c.Relay.Hostname = defaultRelayHostname
	c.Relay.MaxMessageSize = defaultMaxMessageSize
	c.Logging.Level = "info"
}

// applySource overrides configuration with values from src.
// Only non-empty values override existing ones; unparseable booleans and
// integers are ignored so the previous layer's value is kept.
func (c *Config) applySource(src Source) {
	if v := src(EnvDeliveryMethod); v != "" {
		c.DeliveryMethod = ParseDeliveryMethod(v)
	}
	if b := parseBool(src(EnvDisableDefaultSMTP)); b != nil {
		c.DisableDefaultSMTP = b
	}

	if v := src(EnvAPIEndpoint); v != "" {
		c.API.Endpoint = v
	}
	if v := src(EnvAPIKey); v != "" {
		c.API.Key = v
	}

	if v := src(EnvSMTPHost); v != "" {
		c.SMTP.Host = v
	}
	if n := parseInt(src(EnvSMTPPort)); n != nil {
		c.SMTP.Port = *n
	}
	if v := src(EnvSMTPUsername); v != "" {
		c.SMTP.Username = v
	}
	if v := src(EnvSMTPPassword); v != "" {
		c.SMTP.Password = v
	}
	if v := src(EnvSMTPAuth); v != "" {
		c.SMTP.Authentication = ParseAuthentication(v)
	}
	if b := parseBool(src(EnvSMTPStartTLSAuto)); b != nil {
		c.SMTP.EnableStartTLSAuto = b
	}
	if b := parseBool(src(EnvSMTPSSL)); b != nil {
		c.SMTP.SSL = *b
	}
	if v := src(EnvSMTPDomain); v != "" {
		c.SMTP.Domain = v
	}
	if n := parseInt(src(EnvSMTPTimeout)); n != nil && *n > 0 {
		c.SMTP.Timeout = time.Duration(*n) * time.Second
	}

	if v := src(EnvRelayListen); v != "" {
		c.Relay.Listen = v
	}
	if v := src(EnvRelayHostname); v != "" {
		c.Relay.Hostname = v
	}
	if v := src(EnvRelayUsername); v != "" {
		c.Relay.Username = v
	}
	if v := src(EnvRelayPassword); v != "" {
		c.Relay.Password = v
	}
	if n := parseInt64(src(EnvRelayMaxSize)); n != nil {
		c.Relay.MaxMessageSize = *n
	}
	if v := src(EnvRelayCertFile); v != "" {
		c.Relay.CertFile = v
	}
	if v := src(EnvRelayKeyFile); v != "" {
		c.Relay.KeyFile = v
	}

	if v := src(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// normalize canonicalizes enum values and derives dependent defaults.
// It runs once, after every layer has been applied.
func (c *Config) normalize() {
	c.DeliveryMethod = ParseDeliveryMethod(string(c.DeliveryMethod))
	c.SMTP.Authentication = ParseAuthentication(string(c.SMTP.Authentication))
	c.Logging.Level = lower(c.Logging.Level)

	// STARTTLS and implicit TLS are mutually exclusive defaults.
	if c.SMTP.EnableStartTLSAuto == nil {
		c.SMTP.EnableStartTLSAuto = ptr(!c.SMTP.SSL)
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func ptr[T any](v T) *T {
	return &v
}
