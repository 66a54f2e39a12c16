package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/send", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req sendEmailRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "quotes@example.com", req.FromAddress)
		assert.Equal(t, "maria@client.com", req.To)
		assert.Equal(t, "Your quote", req.Subject)
		assert.Equal(t, "<p>Hi</p>", req.HTMLBody)
		assert.Equal(t, "Hi", req.TextBody)

		json.NewEncoder(w).Encode(sendEmailResponse{MessageID: "email-42"})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		FromAddress: "quotes@example.com",
	})

	msgID, err := client.Send(context.Background(), "maria@client.com", "Your quote", "<p>Hi</p>", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "email-42", msgID)
}

func TestSendProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(sendEmailResponse{Error: "recipient address rejected"})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, APIKey: "k", FromAddress: "quotes@example.com"})
	_, err := client.Send(context.Background(), "bad", "s", "<p></p>", "")
	require.Error(t, err)

	var statusErr *ProviderStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
}

func TestSendMisconfigured(t *testing.T) {
	var misconfigured *ErrMisconfigured

	noFrom := NewClient(ClientConfig{BaseURL: "http://localhost:1", APIKey: "k"})
	_, err := noFrom.Send(context.Background(), "a@b.c", "s", "h", "")
	require.ErrorAs(t, err, &misconfigured)
	assert.Equal(t, "from_address", misconfigured.Missing)

	noKey := NewClient(ClientConfig{BaseURL: "http://localhost:1", FromAddress: "q@e.com"})
	_, err = noKey.Send(context.Background(), "a@b.c", "s", "h", "")
	require.ErrorAs(t, err, &misconfigured)
	assert.Equal(t, "api_key", misconfigured.Missing)
}
