// Package email is the client for the transactional email provider.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProviderName is recorded on outbox entries for sends through this client.
const ProviderName = "mailpost"

type Client interface {
	// Send submits one email and returns the provider message id. textBody
	// is an optional plain-text fallback.
	Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error)
}

type ClientConfig struct {
	BaseURL     string
	APIKey      string
	FromAddress string
	FromName    string
	Timeout     time.Duration
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

type sendEmailRequest struct {
	FromAddress string `json:"from_address"`
	FromName    string `json:"from_name,omitempty"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	HTMLBody    string `json:"html_body"`
	TextBody    string `json:"text_body,omitempty"`
}

type sendEmailResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// ErrMisconfigured reports missing sender configuration before any network
// call is attempted.
type ErrMisconfigured struct {
	Missing string
}

func (e *ErrMisconfigured) Error() string {
	return fmt.Sprintf("email provider not configured: missing %s", e.Missing)
}

// ProviderStatusError carries the provider's HTTP status and diagnostic text.
type ProviderStatusError struct {
	StatusCode int
	Detail     string
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("provider request failed with status %d: %s", e.StatusCode, e.Detail)
}

func (c *client) Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error) {
	if c.config.FromAddress == "" {
		return "", &ErrMisconfigured{Missing: "from_address"}
	}
	if c.config.APIKey == "" {
		return "", &ErrMisconfigured{Missing: "api_key"}
	}

	payload := sendEmailRequest{
		FromAddress: c.config.FromAddress,
		FromName:    c.config.FromName,
		To:          to,
		Subject:     subject,
		HTMLBody:    htmlBody,
		TextBody:    textBody,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/send", bytes.NewBuffer(jsonData))
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

	var result sendEmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", &ProviderStatusError{StatusCode: resp.StatusCode, Detail: result.Error}
	}
	if result.MessageID == "" {
		return "", &ProviderStatusError{StatusCode: resp.StatusCode, Detail: "response missing message id"}
	}

	return result.MessageID, nil
}
