package models

import "time"

// ReminderRule is the per-user schedule configuration for reminder sends.
// At most one rule exists per user; saves upsert on user id.
type ReminderRule struct {
	UserID             string    `json:"userId" db:"user_id"`
	Enabled            bool      `json:"enabled" db:"enabled"`
	EscalationDays     int       `json:"escalationDays" db:"escalation_days"`
	Channels           []Channel `json:"channels" db:"channels"`
	AutoMoveOnSent     bool      `json:"autoMoveOnSent" db:"auto_move_on_sent"`
	AutoMoveOnApproved bool      `json:"autoMoveOnApproved" db:"auto_move_on_approved"`
	AutoMoveOnRejected bool      `json:"autoMoveOnRejected" db:"auto_move_on_rejected"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// DefaultReminderRule is what a user gets before saving an explicit rule.
func DefaultReminderRule(userID string, escalationDays int) *ReminderRule {
	return &ReminderRule{
		UserID:         userID,
		Enabled:        true,
		EscalationDays: escalationDays,
		Channels:       []Channel{ChannelWhatsApp},
		UpdatedAt:      time.Now().UTC(),
	}
}

// Order statuses that participate in the reminder sweep. The wider order
// lifecycle lives with the CRM layer; the pipeline only cares about orders
// sitting in OrderStatusSent past the escalation window.
const (
	OrderStatusDraft    = "draft"
	OrderStatusSent     = "sent"
	OrderStatusApproved = "approved"
	OrderStatusRejected = "rejected"
)

// Order is the reminder candidate view of a quote/order row.
type Order struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"userId" db:"user_id"`
	ClientID        string    `json:"clientId" db:"client_id"`
	ClientName      string    `json:"clientName" db:"client_name"`
	ClientPhone     string    `json:"clientPhone" db:"client_phone"`
	ClientEmail     string    `json:"clientEmail" db:"client_email"`
	Status          string    `json:"status" db:"status"`
	StatusEnteredAt time.Time `json:"statusEnteredAt" db:"status_entered_at"`
}
