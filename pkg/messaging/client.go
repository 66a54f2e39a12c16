// Package messaging is the client for the numbered-message provider used for
// both SMS and WhatsApp. The two channels share one transport; WhatsApp
// destinations carry the "whatsapp:" prefix convention.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProviderName is recorded on outbox entries for sends through this client.
const ProviderName = "twigo"

const whatsappPrefix = "whatsapp:"

type Client interface {
	// SendText submits one message and returns the provider message id.
	// to must already be a normalized destination; whatsapp toggles the
	// channel prefix.
	SendText(ctx context.Context, to, body string, whatsapp bool) (string, error)
}

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	FromNumber string
	Timeout    time.Duration
}

type client struct {
	config     ClientConfig
	httpClient *http.Client
}

func NewClient(config ClientConfig) Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// ErrMisconfigured reports missing sender configuration before any network
// call is attempted.
type ErrMisconfigured struct {
	Missing string
}

func (e *ErrMisconfigured) Error() string {
	return fmt.Sprintf("messaging provider not configured: missing %s", e.Missing)
}

// ProviderStatusError carries the provider's HTTP status and diagnostic text.
type ProviderStatusError struct {
	StatusCode int
	Detail     string
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("provider request failed with status %d: %s", e.StatusCode, e.Detail)
}

func (c *client) SendText(ctx context.Context, to, body string, whatsapp bool) (string, error) {
	if c.config.FromNumber == "" {
		return "", &ErrMisconfigured{Missing: "from_number"}
	}
	if c.config.APIKey == "" {
		return "", &ErrMisconfigured{Missing: "api_key"}
	}

	from := c.config.FromNumber
	if whatsapp {
		from = whatsappPrefix + from
		to = whatsappPrefix + to
	}

	payload := sendMessageRequest{From: from, To: to, Body: body}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &ProviderStatusError{StatusCode: resp.StatusCode, Detail: result.Error}
	}
	if result.MessageID == "" {
		return "", &ProviderStatusError{StatusCode: resp.StatusCode, Detail: "response missing message id"}
	}

	return result.MessageID, nil
}
