package validation

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "courier/internal/errors"
)

const (
	maxEmailLength    = 254
	maxTemplateLength = 64
	maxPayloadEntries = 32
	maxPayloadValue   = 4096
	maxContentLength  = 16384
	maxSubjectLength  = 256
)

// ValidateEmailAddress checks the shape of a destination address. Full RFC
// conformance is the provider's problem; this catches obvious garbage before
// a request is charged against the rate limit.
func ValidateEmailAddress(address string) error {
	if address == "" {
		return apperrors.NewValidationError("destination", "email address cannot be empty")
	}
	if len(address) > maxEmailLength {
		return apperrors.NewValidationError("destination", fmt.Sprintf("email address too long (max %d characters)", maxEmailLength))
	}

	at := strings.Index(address, "@")
	if at < 1 || at == len(address)-1 {
		return apperrors.NewValidationError("destination", "a valid email address is required")
	}
	if strings.Count(address, "@") > 1 {
		return apperrors.NewValidationError("destination", "a valid email address is required")
	}
	if !strings.Contains(address[at+1:], ".") {
		return apperrors.NewValidationError("destination", "email domain is incomplete")
	}
	for _, char := range address {
		if unicode.IsSpace(char) || unicode.IsControl(char) {
			return apperrors.NewValidationError("destination", "email address contains invalid characters")
		}
	}
	return nil
}

// ValidateTemplateName checks a template identifier: lowercase slug form,
// bounded length. An empty template is allowed.
func ValidateTemplateName(template string) error {
	if template == "" {
		return nil
	}
	if len(template) > maxTemplateLength {
		return apperrors.NewValidationError("template", fmt.Sprintf("template name too long (max %d characters)", maxTemplateLength))
	}
	for _, char := range template {
		if !unicode.IsLower(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return apperrors.NewValidationError("template", "template name may only contain lowercase letters, digits, underscores and hyphens")
		}
	}
	return nil
}

// ValidatePayload bounds the free-form payload map persisted with each
// outbox entry.
func ValidatePayload(payload map[string]string) error {
	if len(payload) > maxPayloadEntries {
		return apperrors.NewValidationError("payload", fmt.Sprintf("too many payload entries (max %d)", maxPayloadEntries))
	}
	for key, value := range payload {
		if key == "" {
			return apperrors.NewValidationError("payload", "payload keys cannot be empty")
		}
		if len(value) > maxPayloadValue {
			return apperrors.NewValidationError("payload", fmt.Sprintf("payload value for %q too long (max %d bytes)", key, maxPayloadValue))
		}
	}
	return nil
}

// ValidateContent bounds the message body and subject.
func ValidateContent(content, subject string) error {
	if len(content) > maxContentLength {
		return apperrors.NewValidationError("content", fmt.Sprintf("content too long (max %d bytes)", maxContentLength))
	}
	if len(subject) > maxSubjectLength {
		return apperrors.NewValidationError("subject", fmt.Sprintf("subject too long (max %d characters)", maxSubjectLength))
	}
	for _, char := range subject {
		if char == '\n' || char == '\r' {
			return apperrors.NewValidationError("subject", "subject cannot contain line breaks")
		}
	}
	return nil
}
