package service

import (
	"context"
	"errors"
	"fmt"

	apperrors "courier/internal/errors"
	"courier/internal/models"
	"courier/pkg/email"
	"courier/pkg/messaging"
)

// ChannelSender is the capability the dispatcher sends through. It performs
// the outbound provider call and nothing else; persistence stays with the
// dispatcher.
type ChannelSender interface {
	Send(ctx context.Context, channel models.Channel, destination, subject, body string) (providerMsgID string, err error)
	Provider(channel models.Channel) string
}

// providerSender dispatches by channel variant: SMS and WhatsApp share the
// numbered-message transport, email has its own.
type providerSender struct {
	messaging messaging.Client
	email     email.Client
}

func NewChannelSender(messagingClient messaging.Client, emailClient email.Client) ChannelSender {
	return &providerSender{
		messaging: messagingClient,
		email:     emailClient,
	}
}

func (s *providerSender) Provider(channel models.Channel) string {
	if channel == models.ChannelEmail {
		return email.ProviderName
	}
	return messaging.ProviderName
}

func (s *providerSender) Send(ctx context.Context, channel models.Channel, destination, subject, body string) (string, error) {
	switch channel {
	case models.ChannelSMS:
		msgID, err := s.messaging.SendText(ctx, destination, body, false)
		return msgID, s.classifyMessagingError(err)
	case models.ChannelWhatsApp:
		msgID, err := s.messaging.SendText(ctx, destination, body, true)
		return msgID, s.classifyMessagingError(err)
	case models.ChannelEmail:
		if subject == "" {
			subject = "New message"
		}
		msgID, err := s.email.Send(ctx, destination, subject, body, "")
		return msgID, s.classifyEmailError(err)
	default:
		return "", apperrors.NewValidationError("channel", fmt.Sprintf("unsupported channel %q", channel))
	}
}

func (s *providerSender) classifyMessagingError(err error) error {
	if err == nil {
		return nil
	}

	var misconfigured *messaging.ErrMisconfigured
	if errors.As(err, &misconfigured) {
		return apperrors.NewProviderMisconfiguredError(messaging.ProviderName, misconfigured.Missing)
	}

	var statusErr *messaging.ProviderStatusError
	if errors.As(err, &statusErr) {
		return apperrors.NewProviderError(messaging.ProviderName, statusErr.StatusCode, err)
	}

	return apperrors.NewProviderError(messaging.ProviderName, 0, err)
}

func (s *providerSender) classifyEmailError(err error) error {
	if err == nil {
		return nil
	}

	var misconfigured *email.ErrMisconfigured
	if errors.As(err, &misconfigured) {
		return apperrors.NewProviderMisconfiguredError(email.ProviderName, misconfigured.Missing)
	}

	var statusErr *email.ProviderStatusError
	if errors.As(err, &statusErr) {
		return apperrors.NewProviderError(email.ProviderName, statusErr.StatusCode, err)
	}

	return apperrors.NewProviderError(email.ProviderName, 0, err)
}
