package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shineum/postmail/internal/config"
	"github.com/shineum/postmail/internal/email"
	"github.com/shineum/postmail/internal/provider"
)

const (
	// connectTimeout bounds the TCP dial and the TLS handshake.
	connectTimeout = 5 * time.Second
	// readTimeout bounds the wait for the response.
	readTimeout = 15 * time.Second
)

// apiKeyHeader carries the Postal server credential.
const apiKeyHeader = "X-Server-API-Key"

// Provider sends emails as JSON to a Postal-compatible send/message endpoint.
// @MX:ANCHOR: [AUTO] External system integration point for the Postal HTTP API
// @MX:REASON: All email delivery flows through this provider when delivery_method is api
type Provider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider using the endpoint and key from cfg.
// A missing API key is not rejected here; the endpoint reports it.
func New(cfg *config.Config) *Provider {
	return newWithClient(cfg, newHTTPClient())
}

// newWithClient creates a Provider with a custom HTTP client, used for testing.
func newWithClient(cfg *config.Config, client *http.Client) *Provider {
	return &Provider{
		endpoint:   cfg.API.Endpoint,
		apiKey:     cfg.API.Key,
		httpClient: client,
	}
}

// newHTTPClient returns a client with a 5s connect and a 15s read budget.
func newHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = readTimeout

	return &http.Client{
		Transport: transport,
		Timeout:   connectTimeout + readTimeout,
	}
}

// Send posts the message to the API endpoint once.
// A 2xx response is a success; any other status is returned as a protocol
// DeliveryError carrying the status code and raw body.
func (p *Provider) Send(ctx context.Context, msg *email.Message) (*provider.Receipt, error) {
	bodyJSON, err := json.Marshal(buildSendMessageRequest(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.TransportError(p.Name(), fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.TransportError(p.Name(), fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, provider.ProtocolError(p.Name(), resp.StatusCode, string(respBody),
			fmt.Errorf("postal API responded with status %d: %s", resp.StatusCode, respBody))
	}

	messageID := parseMessageID(respBody)
	slog.Debug("message accepted by postal API",
		"status", resp.StatusCode,
		"message_id", messageID,
	)

	return &provider.Receipt{
		Provider:   p.Name(),
		StatusCode: resp.StatusCode,
		Body:       respBody,
		MessageID:  messageID,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return provider.NameAPI
}

// sendMessageResponse is the subset of the Postal response we read.
type sendMessageResponse struct {
	Status string `json:"status"`
	Data   struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

// parseMessageID extracts data.message_id from a Postal response, if present.
func parseMessageID(body []byte) string {
	var resp sendMessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Data.MessageID
}
