package models

import (
	"fmt"
	"strings"
	"time"
)

// Channel identifies the transmission medium for an outbound message.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// ParseChannel validates and normalizes a channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelSMS:
		return ChannelSMS, nil
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	case ChannelEmail:
		return ChannelEmail, nil
	default:
		return "", fmt.Errorf("unknown channel: %q", s)
	}
}

type DeliveryStatus string

const (
	DeliveryStatusQueued    DeliveryStatus = "queued"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusBounced   DeliveryStatus = "bounced"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// statusRank orders statuses along the forward-only lifecycle.
// Terminal statuses share the highest rank; an entry never reverts.
var statusRank = map[DeliveryStatus]int{
	DeliveryStatusQueued:    0,
	DeliveryStatusSent:      1,
	DeliveryStatusDelivered: 2,
	DeliveryStatusBounced:   2,
	DeliveryStatusFailed:    2,
}

// ValidStatus reports whether s is a known delivery status.
func ValidStatus(s DeliveryStatus) bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether an outbox entry may move from one status to
// another. Transitions are monotonic: queued -> sent -> delivered|bounced|failed,
// and a terminal status accepts no further change.
func CanTransition(from, to DeliveryStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if fromRank >= 2 {
		return false
	}
	return toRank > fromRank
}

// ProviderSystem marks entries accepted for deferred delivery by the queue
// worker rather than submitted to an external provider synchronously.
const ProviderSystem = "system"

// OutboxEntry is one row of the durable audit trail of outbound sends.
// Entries are created by the dispatcher and mutated only through monotonic
// status updates; they are never deleted.
type OutboxEntry struct {
	ID              string         `json:"id" db:"id"`
	UserID          string         `json:"userId" db:"user_id"`
	Channel         Channel        `json:"channel" db:"channel"`
	Destination     string         `json:"destination" db:"destination"`
	Template        string         `json:"template,omitempty" db:"template"`
	Payload         map[string]string `json:"payload,omitempty" db:"payload"`
	Status          DeliveryStatus `json:"status" db:"status"`
	Provider        string         `json:"provider" db:"provider"`
	ProviderMsgID   *string        `json:"providerMessageId,omitempty" db:"provider_msg_id"`
	ErrorCode       *string        `json:"errorCode,omitempty" db:"error_code"`
	ErrorDetails    *string        `json:"errorDetails,omitempty" db:"error_details"`
	OrderID         *string        `json:"orderId,omitempty" db:"order_id"`
	ClientID        *string        `json:"clientId,omitempty" db:"client_id"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
	StatusUpdatedAt time.Time      `json:"statusUpdatedAt" db:"status_updated_at"`
	LastTestedAt    *time.Time     `json:"lastTestedAt,omitempty" db:"last_tested_at"`
}

// DeliveryChange is the transient event emitted for every outbox mutation.
// It exists only on the wire between the store and changefeed subscribers;
// each event is a full snapshot of the row's delivery state.
type DeliveryChange struct {
	OutboxID        string         `json:"outbox_id"`
	UserID          string         `json:"-"`
	Status          DeliveryStatus `json:"delivery_status"`
	StatusUpdatedAt time.Time      `json:"delivery_status_updated_at"`
	ErrorCode       *string        `json:"delivery_error_code,omitempty"`
	ErrorDetails    *string        `json:"delivery_error_details,omitempty"`
}

// SendRequest is the caller-facing submission shape.
type SendRequest struct {
	Channel     string            `json:"channel"`
	Destination string            `json:"destination"`
	Template    string            `json:"template,omitempty"`
	Content     string            `json:"content,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	OrderID     string            `json:"orderId,omitempty"`
	ClientID    string            `json:"clientId,omitempty"`
	Queue       bool              `json:"queue,omitempty"`
}
