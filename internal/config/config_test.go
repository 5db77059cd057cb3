package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnvVars = []string{
	EnvDeliveryMethod, EnvDisableDefaultSMTP, EnvAPIEndpoint, EnvAPIKey,
	EnvSMTPHost, EnvSMTPPort, EnvSMTPUsername, EnvSMTPPassword, EnvSMTPAuth,
	EnvSMTPStartTLSAuto, EnvSMTPSSL, EnvSMTPDomain, EnvSMTPTimeout,
	EnvRelayListen, EnvRelayHostname, EnvRelayUsername, EnvRelayPassword,
	EnvRelayMaxSize, EnvRelayCertFile, EnvRelayKeyFile, EnvLogLevel,
}

// clearEnv blanks every postmail variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		t.Setenv(env, "")
	}
}

func TestResolve_DefaultValues(t *testing.T) {
	t.Parallel()

	cfg := Resolve(MapSource(nil))

	assert.Equal(t, MethodSMTP, cfg.DeliveryMethod)
	assert.Nil(t, cfg.DisableDefaultSMTP)
	assert.False(t, cfg.DisableDefaultSMTPEnabled())
	assert.Equal(t, "https://postal.exanora.com/api/v1/send/message", cfg.API.Endpoint)
	assert.Empty(t, cfg.API.Key)
	assert.Equal(t, "localhost", cfg.SMTP.Host)
	assert.Equal(t, 25, cfg.SMTP.Port)
	assert.Empty(t, cfg.SMTP.Username)
	assert.Empty(t, cfg.SMTP.Password)
	assert.Equal(t, AuthLogin, cfg.SMTP.Authentication)
	require.NotNil(t, cfg.SMTP.EnableStartTLSAuto)
	assert.True(t, *cfg.SMTP.EnableStartTLSAuto)
	assert.False(t, cfg.SMTP.SSL)
	assert.Empty(t, cfg.SMTP.Domain)
	assert.Equal(t, 30*time.Second, cfg.SMTP.Timeout)
	assert.Equal(t, ":2525", cfg.Relay.Listen)
	assert.Equal(t, int64(26214400), cfg.Relay.MaxMessageSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestResolve_Overrides(t *testing.T) {
	t.Parallel()

	cfg := Resolve(MapSource(map[string]string{
		EnvDeliveryMethod:     "API",
		EnvDisableDefaultSMTP: "yes",
		EnvAPIEndpoint:        "https://postal.example.com/api/v1/send/message",
		EnvAPIKey:             "abc123",
		EnvSMTPHost:           "smtp.example.com",
		EnvSMTPPort:           "587",
		EnvSMTPUsername:       "mailer",
		EnvSMTPPassword:       "secret",
		EnvSMTPAuth:           "PLAIN",
		EnvSMTPStartTLSAuto:   "n",
		EnvSMTPSSL:            "1",
		EnvSMTPDomain:         "example.com",
		EnvSMTPTimeout:        "10",
		EnvLogLevel:           "DEBUG",
	}))

	assert.Equal(t, MethodAPI, cfg.DeliveryMethod)
	assert.True(t, cfg.APIDelivery())
	assert.True(t, cfg.DisableDefaultSMTPEnabled())
	assert.Equal(t, "https://postal.example.com/api/v1/send/message", cfg.API.Endpoint)
	assert.Equal(t, "abc123", cfg.API.Key)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "mailer", cfg.SMTP.Username)
	assert.Equal(t, "secret", cfg.SMTP.Password)
	assert.Equal(t, AuthPlain, cfg.SMTP.Authentication)
	require.NotNil(t, cfg.SMTP.EnableStartTLSAuto)
	assert.False(t, *cfg.SMTP.EnableStartTLSAuto)
	assert.True(t, cfg.SMTP.SSL)
	assert.Equal(t, "example.com", cfg.SMTP.Domain)
	assert.Equal(t, 10*time.Second, cfg.SMTP.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()

	src := MapSource(map[string]string{
		EnvSMTPSSL:  "true",
		EnvSMTPPort: "465",
		EnvAPIKey:   "k",
	})

	assert.Equal(t, Resolve(src), Resolve(src))
}

func TestResolve_StartTLSDerivedFromSSL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ssl      string
		starttls string
		want     bool
	}{
		{name: "ssl unset", ssl: "", starttls: "", want: true},
		{name: "ssl false", ssl: "false", starttls: "", want: true},
		{name: "ssl true", ssl: "true", starttls: "", want: false},
		{name: "ssl garbage", ssl: "maybe", starttls: "", want: true},
		{name: "explicit starttls wins over ssl", ssl: "true", starttls: "true", want: true},
		{name: "explicit starttls off", ssl: "", starttls: "no", want: false},
		{name: "garbage starttls falls back to derivation", ssl: "y", starttls: "sometimes", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Resolve(MapSource(map[string]string{
				EnvSMTPSSL:          tt.ssl,
				EnvSMTPStartTLSAuto: tt.starttls,
			}))
			require.NotNil(t, cfg.SMTP.EnableStartTLSAuto)
			assert.Equal(t, tt.want, *cfg.SMTP.EnableStartTLSAuto)
		})
	}
}

func TestResolve_PermissiveEnums(t *testing.T) {
	t.Parallel()

	cfg := Resolve(MapSource(map[string]string{
		EnvDeliveryMethod: "Carrier-Pigeon",
		EnvSMTPAuth:       "XOAUTH2",
	}))

	assert.Equal(t, DeliveryMethod("carrier-pigeon"), cfg.DeliveryMethod)
	assert.False(t, cfg.DeliveryMethod.Known())
	assert.False(t, cfg.APIDelivery())
	assert.Equal(t, Authentication("xoauth2"), cfg.SMTP.Authentication)
}

func TestResolve_InvalidIntegersKeepDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		port string
	}{
		{name: "not a number", port: "smtp"},
		{name: "blank", port: "   "},
		{name: "float", port: "25.5"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Resolve(MapSource(map[string]string{
				EnvSMTPPort:    tt.port,
				EnvSMTPTimeout: tt.port,
			}))
			assert.Equal(t, 25, cfg.SMTP.Port)
			assert.Equal(t, 30*time.Second, cfg.SMTP.Timeout)
		})
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want *bool
	}{
		{in: "true", want: ptr(true)},
		{in: "TRUE", want: ptr(true)},
		{in: "1", want: ptr(true)},
		{in: "Yes", want: ptr(true)},
		{in: "y", want: ptr(true)},
		{in: "false", want: ptr(false)},
		{in: "0", want: ptr(false)},
		{in: "NO", want: ptr(false)},
		{in: "n", want: ptr(false)},
		{in: "", want: nil},
		{in: "on", want: nil},
		{in: "2", want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseBool(tt.in))
		})
	}
}

func TestLoad_UsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSMTPSSL, "true")
	t.Setenv(EnvAPIKey, "abc123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.SMTP.SSL)
	require.NotNil(t, cfg.SMTP.EnableStartTLSAuto)
	assert.False(t, *cfg.SMTP.EnableStartTLSAuto)
	assert.Equal(t, "abc123", cfg.API.Key)
}

func TestLoad_PicksUpChangedEnvironment(t *testing.T) {
	clearEnv(t)

	t.Setenv(EnvSMTPHost, "first.example.com")
	first, err := Load()
	require.NoError(t, err)

	t.Setenv(EnvSMTPHost, "second.example.com")
	second, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "first.example.com", first.SMTP.Host)
	assert.Equal(t, "second.example.com", second.SMTP.Host)
}

func TestLoadFromFile(t *testing.T) {
	yamlContent := `
delivery_method: API
api:
  endpoint: "https://yaml.example.com/send"
  key: "yaml-key"
smtp:
  host: "yaml-smtp.example.com"
  port: 2525
  ssl: true
  timeout: 5s
relay:
  listen: ":3025"
logging:
  level: "warn"
`

	configPath := filepath.Join(t.TempDir(), "postmail.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	clearEnv(t)

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, MethodAPI, cfg.DeliveryMethod)
	assert.Equal(t, "https://yaml.example.com/send", cfg.API.Endpoint)
	assert.Equal(t, "yaml-key", cfg.API.Key)
	assert.Equal(t, "yaml-smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.SSL)
	require.NotNil(t, cfg.SMTP.EnableStartTLSAuto)
	assert.False(t, *cfg.SMTP.EnableStartTLSAuto, "starttls should derive from YAML ssl")
	assert.Equal(t, 5*time.Second, cfg.SMTP.Timeout)
	assert.Equal(t, AuthLogin, cfg.SMTP.Authentication)
	assert.Equal(t, ":3025", cfg.Relay.Listen)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromFile_EnvOverridesYAML(t *testing.T) {
	yamlContent := `
smtp:
  host: "yaml-smtp.example.com"
  username: "yamluser"
  ssl: true
`

	configPath := filepath.Join(t.TempDir(), "postmail.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	clearEnv(t)
	t.Setenv(EnvSMTPHost, "env-smtp.example.com")
	t.Setenv(EnvSMTPSSL, "false")

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-smtp.example.com", cfg.SMTP.Host, "env should override YAML")
	assert.Equal(t, "yamluser", cfg.SMTP.Username, "empty env should not override YAML")
	assert.False(t, cfg.SMTP.SSL, "env should override YAML")
	require.NotNil(t, cfg.SMTP.EnableStartTLSAuto)
	assert.True(t, *cfg.SMTP.EnableStartTLSAuto)
}

func TestLoadFromFile_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile("/nonexistent/path/postmail.yaml")
	assert.Error(t, err)
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "postmail.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{{invalid yaml"), 0644))

	_, err := LoadFromFile(configPath)
	assert.Error(t, err)
}

func TestLoadDotEnv_DoesNotOverrideSetVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSMTPHost, "from-process.example.com")
	// godotenv only fills variables that are absent; t.Setenv restores it afterwards.
	os.Unsetenv(EnvSMTPDomain)

	envPath := filepath.Join(t.TempDir(), ".env")
	content := EnvSMTPHost + "=from-file.example.com\n" + EnvSMTPDomain + "=dotenv.example.com\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0644))

	require.NoError(t, LoadDotEnv(envPath))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-process.example.com", cfg.SMTP.Host)
	assert.Equal(t, "dotenv.example.com", cfg.SMTP.Domain)
}

func TestLoadDotEnv_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	assert.Error(t, LoadDotEnv("/nonexistent/.env"))
}

func TestReconfigure_LeavesOriginalUntouched(t *testing.T) {
	t.Parallel()

	cfg := Resolve(MapSource(nil))
	next := cfg.Reconfigure(func(c *Config) {
		c.API.Endpoint = "https://my-postal.example/api/v1/send/message"
	})

	assert.Equal(t, DefaultAPIEndpoint, cfg.API.Endpoint)
	assert.Equal(t, "https://my-postal.example/api/v1/send/message", next.API.Endpoint)
}

func TestReconfigure_CopiesPointerFields(t *testing.T) {
	t.Parallel()

	cfg := Resolve(MapSource(map[string]string{
		EnvDisableDefaultSMTP: "true",
	}))
	require.NotNil(t, cfg.SMTP.EnableStartTLSAuto)
	require.NotNil(t, cfg.DisableDefaultSMTP)

	next := cfg.Reconfigure(func(c *Config) {
		*c.SMTP.EnableStartTLSAuto = false
		*c.DisableDefaultSMTP = false
	})

	assert.True(t, *cfg.SMTP.EnableStartTLSAuto)
	assert.True(t, *cfg.DisableDefaultSMTP)
	assert.False(t, *next.SMTP.EnableStartTLSAuto)
	assert.False(t, *next.DisableDefaultSMTP)
}

func TestReconfigure_DoesNotRederiveStartTLS(t *testing.T) {
	t.Parallel()

	next := Resolve(MapSource(nil)).Reconfigure(func(c *Config) { c.SMTP.SSL = true })

	assert.True(t, next.SMTP.SSL)
	assert.True(t, *next.SMTP.EnableStartTLSAuto)
}

func TestRedacted(t *testing.T) {
	t.Parallel()

	cfg := Resolve(MapSource(map[string]string{
		EnvAPIKey:       "abc123",
		EnvSMTPPassword: "secret",
	}))
	red := cfg.Redacted()

	assert.Equal(t, "********", red.API.Key)
	assert.Equal(t, "********", red.SMTP.Password)
	assert.Empty(t, red.Relay.Password)
	assert.Equal(t, "abc123", cfg.API.Key)

	out, err := red.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "abc123")
	assert.Contains(t, string(out), "delivery_method: smtp")
}

func TestRelayAuthEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		password string
		expect   bool
	}{
		{name: "both set", username: "user", password: "pass", expect: true},
		{name: "username only", username: "user", password: "", expect: false},
		{name: "password only", username: "", password: "pass", expect: false},
		{name: "neither set", username: "", password: "", expect: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{Relay: RelayConfig{Username: tt.username, Password: tt.password}}
			assert.Equal(t, tt.expect, cfg.RelayAuthEnabled())
		})
	}
}
