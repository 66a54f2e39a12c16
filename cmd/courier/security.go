package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	apperrors "courier/internal/errors"
)

const (
	signatureHeader = "X-Webhook-Signature"
	internalHeader  = "X-Internal-Token"
)

// authenticate resolves the account behind a bearer token. Websocket clients
// may pass the token as an access_token query parameter since browsers cannot
// set headers on upgrade requests.
func (s *Server) authenticate(r *http.Request) (string, error) {
	token := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return "", apperrors.NewUnauthorizedError("missing bearer token")
	}

	userID, ok := s.authTokens[token]
	if !ok {
		return "", apperrors.NewUnauthorizedError("unknown token")
	}
	return userID, nil
}

// authorizeInternal guards operator endpoints with the shared internal token.
// An empty configured secret only passes outside production.
func (s *Server) authorizeInternal(r *http.Request) error {
	secret := s.cfg.Server.WebhookSecret
	if secret == "" {
		if os.Getenv("COURIER_ENV") == "production" {
			return apperrors.NewUnauthorizedError("internal token is required in production")
		}
		return nil
	}
	if subtleEqual(r.Header.Get(internalHeader), secret) {
		return nil
	}
	return apperrors.NewUnauthorizedError("invalid internal token")
}

func subtleEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// verifySignature reads the body and checks its sha256 HMAC against the
// signature header, formatted as "sha256=<hex>". The body is returned with
// r.Body reset for downstream readers. An empty secret skips verification
// outside production.
func verifySignature(r *http.Request, secretKey, headerName string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if secretKey == "" {
		if os.Getenv("COURIER_ENV") == "production" {
			return nil, fmt.Errorf("webhook secret is required in production mode")
		}
		return body, nil
	}

	signature := r.Header.Get(headerName)
	if signature == "" {
		return nil, fmt.Errorf("missing signature header: %s", headerName)
	}

	parts := strings.SplitN(signature, "=", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "sha256" {
		return nil, fmt.Errorf("invalid signature format in header %s", headerName)
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(parts[1])) {
		return nil, fmt.Errorf("signature mismatch")
	}
	return body, nil
}
