package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) Client {
	return NewClient(ClientConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		FromNumber: "+5511000000000",
	})
}

func TestSendText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+5511000000000", req.From)
		assert.Equal(t, "+5511999998888", req.To)
		assert.Equal(t, "Hi", req.Body)

		json.NewEncoder(w).Encode(sendMessageResponse{MessageID: "msg-123", Status: "accepted"})
	}))
	defer server.Close()

	msgID, err := testClient(server.URL).SendText(context.Background(), "+5511999998888", "Hi", false)
	require.NoError(t, err)
	assert.Equal(t, "msg-123", msgID)
}

func TestSendTextWhatsAppPrefix(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "whatsapp:+5511000000000", req.From)
		assert.Equal(t, "whatsapp:+5511999998888", req.To)

		json.NewEncoder(w).Encode(sendMessageResponse{MessageID: "msg-wa-1"})
	}))
	defer server.Close()

	msgID, err := testClient(server.URL).SendText(context.Background(), "+5511999998888", "Hi", true)
	require.NoError(t, err)
	assert.Equal(t, "msg-wa-1", msgID)
}

func TestSendTextProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(sendMessageResponse{Error: "invalid destination number"})
	}))
	defer server.Close()

	_, err := testClient(server.URL).SendText(context.Background(), "+55", "Hi", false)
	require.Error(t, err)

	var statusErr *ProviderStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.Detail, "invalid destination")
}

func TestSendTextMisconfigured(t *testing.T) {
	noFrom := NewClient(ClientConfig{BaseURL: "http://localhost:1", APIKey: "k"})
	_, err := noFrom.SendText(context.Background(), "+5511999998888", "Hi", false)
	var misconfigured *ErrMisconfigured
	require.ErrorAs(t, err, &misconfigured)
	assert.Equal(t, "from_number", misconfigured.Missing)

	noKey := NewClient(ClientConfig{BaseURL: "http://localhost:1", FromNumber: "+55110"})
	_, err = noKey.SendText(context.Background(), "+5511999998888", "Hi", false)
	require.ErrorAs(t, err, &misconfigured)
	assert.Equal(t, "api_key", misconfigured.Missing)
}

func TestSendTextNetworkFailure(t *testing.T) {
	// Port 1 refuses connections
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", APIKey: "k", FromNumber: "+55110"})
	_, err := client.SendText(context.Background(), "+5511999998888", "Hi", false)
	assert.Error(t, err)
}
