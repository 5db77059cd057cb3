package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/postmail/internal/config"
	"github.com/shineum/postmail/internal/email"
)

// clearEnv unsets every variable postmail reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvDeliveryMethod, config.EnvDisableDefaultSMTP, config.EnvAPIEndpoint, config.EnvAPIKey,
		config.EnvSMTPHost, config.EnvSMTPPort, config.EnvSMTPUsername, config.EnvSMTPPassword,
		config.EnvSMTPAuth, config.EnvSMTPStartTLSAuto, config.EnvSMTPSSL, config.EnvSMTPDomain,
		config.EnvSMTPTimeout, config.EnvRelayListen, config.EnvRelayHostname, config.EnvRelayUsername,
		config.EnvRelayPassword, config.EnvRelayMaxSize, config.EnvRelayCertFile, config.EnvRelayKeyFile,
		config.EnvLogLevel,
	} {
		t.Setenv(key, "")
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))

	err := root.Execute()
	return out.String(), err
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvAPIKey, "super-secret")
	t.Setenv(config.EnvSMTPPassword, "hunter2")

	out, err := run(t, "", "config")
	require.NoError(t, err)

	assert.Contains(t, out, "delivery_method: smtp")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "super-secret")
	assert.NotContains(t, out, "hunter2")
}

func TestConfigCommand_FromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "postmail.yaml")
	require.NoError(t, os.WriteFile(path, []byte("delivery_method: api\nsmtp:\n  host: file.example.com\n"), 0o600))

	out, err := run(t, "", "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "delivery_method: api")
	assert.Contains(t, out, "host: file.example.com")
}

func TestConfigCommand_LogLevelFlag(t *testing.T) {
	clearEnv(t)

	out, err := run(t, "", "config", "--log-level", "DEBUG")
	require.NoError(t, err)
	assert.Contains(t, out, "level: debug")
}

func TestSendCommand_DryRunComposed(t *testing.T) {
	clearEnv(t)

	attachment := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(attachment, []byte("hello"), 0o600))

	out, err := run(t, "", "send", "--dry-run",
		"--from", "sender@example.com",
		"--to", "alice@example.com,bob@example.com",
		"--bcc", "hidden@example.com",
		"--subject", "Report",
		"--text", "plain body",
		"--html", "<p>html body</p>",
		"--attach", attachment,
	)
	require.NoError(t, err)

	assert.Contains(t, out, "From: sender@example.com\n")
	assert.Contains(t, out, "To: alice@example.com, bob@example.com\n")
	assert.Contains(t, out, "Bcc: hidden@example.com\n")
	assert.Contains(t, out, "Subject: Report\n")
	assert.Contains(t, out, "plain body")
	assert.Contains(t, out, "<p>html body</p>")
	assert.Contains(t, out, "notes.txt (text/plain; charset=utf-8, 5 B)")
	assert.NotContains(t, out, "sent via")
}

func TestSendCommand_DryRunFromStdin(t *testing.T) {
	clearEnv(t)

	raw := "From: sender@example.com\r\nTo: alice@example.com\r\nSubject: Piped\r\n\r\npiped body\r\n"

	out, err := run(t, raw, "send", "--dry-run", "--subject", "Overridden", "-")
	require.NoError(t, err)

	assert.Contains(t, out, "To: alice@example.com\n")
	assert.Contains(t, out, "Subject: Overridden\n")
	assert.Contains(t, out, "piped body")
}

func TestSendCommand_API(t *testing.T) {
	clearEnv(t)

	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k-123", r.Header.Get("X-Server-API-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.Write([]byte(`{"status":"success","data":{"message_id":"m-1"}}`))
	}))
	defer server.Close()

	t.Setenv(config.EnvDeliveryMethod, "api")
	t.Setenv(config.EnvAPIEndpoint, server.URL)
	t.Setenv(config.EnvAPIKey, "k-123")

	out, err := run(t, "", "send", "--to", "alice@example.com", "--subject", "Hi", "--text", "hello")
	require.NoError(t, err)

	assert.Equal(t, "sent via postmail_api (message id \"m-1\")\n", out)
	assert.Equal(t, map[string]any{"to": "alice@example.com", "subject": "Hi", "plain_body": "hello"}, payload)
}

func TestSendCommand_SMTPFailure(t *testing.T) {
	clearEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = run(t, "", "send",
		"--smtp-host", "127.0.0.1",
		"--smtp-port", strconv.Itoa(port),
		"--to", "alice@example.com",
		"--text", "hello",
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send message")
}

func TestSendCommand_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := run(t, "", "send", "--dry-run", filepath.Join(t.TempDir(), "missing.eml"))
	assert.ErrorContains(t, err, "failed to open message file")
}

func TestSMTPOverrides_OnlyChangedFlags(t *testing.T) {
	t.Parallel()

	opts := &sendOptions{}
	c := &cobra.Command{}
	c.Flags().StringVar(&opts.smtpHost, "smtp-host", "", "")
	c.Flags().IntVar(&opts.smtpPort, "smtp-port", 0, "")
	c.Flags().StringVar(&opts.smtpDomain, "smtp-domain", "", "")
	require.NoError(t, c.Flags().Parse([]string{"--smtp-port", "2525"}))

	got := smtpOverrides(c, opts)
	assert.Equal(t, map[string]any{"port": 2525}, got.Map())
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	logger, err := newLogger(io.Discard, "warn", "json")
	require.NoError(t, err)
	assert.Equal(t, log.WarnLevel, logger.GetLevel())

	logger, err = newLogger(io.Discard, "nonsense", "")
	require.NoError(t, err)
	assert.Equal(t, log.InfoLevel, logger.GetLevel())

	_, err = newLogger(io.Discard, "info", "xml")
	assert.Error(t, err)
}

func TestSendCommand_TextFlagKeepsHTMLPart(t *testing.T) {
	clearEnv(t)

	raw := "From: sender@example.com\r\n" +
		"To: alice@example.com\r\n" +
		"Subject: Both\r\n" +
		"Content-Type: multipart/alternative; boundary=b\r\n" +
		"\r\n" +
		"--b\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"old text\r\n" +
		"--b\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>kept html</p>\r\n" +
		"--b--\r\n"

	out, err := run(t, raw, "send", "--dry-run", "--text", "new text", "-")
	require.NoError(t, err)

	assert.Contains(t, out, "new text")
	assert.NotContains(t, out, "old text")
	assert.Contains(t, out, "<p>kept html</p>")
}

func TestSetBody(t *testing.T) {
	t.Parallel()

	t.Run("empty message becomes single part", func(t *testing.T) {
		t.Parallel()

		msg := &email.Message{}
		setBody(msg, "text/plain", "hi")

		assert.False(t, msg.Multipart())
		assert.Equal(t, "text/plain; charset=utf-8", msg.ContentType)
		assert.Equal(t, "hi", string(msg.Body))
	})

	t.Run("same type replaces single part", func(t *testing.T) {
		t.Parallel()

		msg := &email.Message{ContentType: "text/html", Body: []byte("<p>old</p>")}
		setBody(msg, "text/html", "<p>new</p>")

		assert.False(t, msg.Multipart())
		assert.Equal(t, "<p>new</p>", string(msg.Body))
	})

	t.Run("other type turns single part into alternatives", func(t *testing.T) {
		t.Parallel()

		msg := &email.Message{ContentType: "text/html", Body: []byte("<p>html</p>")}
		setBody(msg, "text/plain", "text")

		require.Len(t, msg.Parts, 2)
		assert.Equal(t, "text/plain; charset=utf-8", msg.Parts[0].ContentType)
		assert.Equal(t, "text", string(msg.Parts[0].Body))
		assert.Equal(t, "text/html", msg.Parts[1].ContentType)
		assert.Empty(t, msg.ContentType)
		assert.Nil(t, msg.Body)
	})

	t.Run("multipart replaces only the matching part", func(t *testing.T) {
		t.Parallel()

		msg := &email.Message{Parts: []email.Part{
			{ContentType: "text/plain", Body: []byte("old")},
			{ContentType: "text/html", Body: []byte("<p>kept</p>")},
		}}
		setBody(msg, "text/plain", "new")

		assert.Equal(t, []email.Part{
			{ContentType: "text/plain; charset=utf-8", Body: []byte("new")},
			{ContentType: "text/html", Body: []byte("<p>kept</p>")},
		}, msg.Parts)
	})
}
