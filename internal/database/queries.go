package database

// Outbox queries
const (
	insertOutboxEntryQuery = `
		INSERT INTO outbox_entries (
			id, user_id, channel, destination, template, payload,
			status, provider, provider_msg_id, error_code, error_details,
			order_id, client_id, created_at, status_updated_at, last_tested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	outboxColumns = `
		id, user_id, channel, destination, template, payload,
		status, provider, provider_msg_id, error_code, error_details,
		order_id, client_id, created_at, status_updated_at, last_tested_at
	`

	selectOutboxEntryQuery = `
		SELECT ` + outboxColumns + `
		FROM outbox_entries
		WHERE id = ?
	`

	selectOutboxEntryForUserQuery = `
		SELECT ` + outboxColumns + `
		FROM outbox_entries
		WHERE id = ? AND user_id = ?
	`

	selectOutboxEntryByProviderMsgIDQuery = `
		SELECT ` + outboxColumns + `
		FROM outbox_entries
		WHERE provider_msg_id = ?
	`

	selectOutboxByUserQuery = `
		SELECT ` + outboxColumns + `
		FROM outbox_entries
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	selectQueuedEntriesQuery = `
		SELECT ` + outboxColumns + `
		FROM outbox_entries
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT ?
	`

	updateOutboxStatusQuery = `
		UPDATE outbox_entries
		SET status = ?,
		    provider_msg_id = COALESCE(?, provider_msg_id),
		    error_code = ?,
		    error_details = ?,
		    status_updated_at = ?
		WHERE id = ?
	`

	countRecentRemindersQuery = `
		SELECT COUNT(1)
		FROM outbox_entries
		WHERE order_id = ? AND template = ? AND created_at >= ?
	`
)

// Reminder rule queries
const (
	selectReminderRuleQuery = `
		SELECT user_id, enabled, escalation_days, channels,
		       auto_move_on_sent, auto_move_on_approved, auto_move_on_rejected,
		       updated_at
		FROM reminder_rules
		WHERE user_id = ?
	`

	upsertReminderRuleQuery = `
		INSERT INTO reminder_rules (
			user_id, enabled, escalation_days, channels,
			auto_move_on_sent, auto_move_on_approved, auto_move_on_rejected,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled = excluded.enabled,
			escalation_days = excluded.escalation_days,
			channels = excluded.channels,
			auto_move_on_sent = excluded.auto_move_on_sent,
			auto_move_on_approved = excluded.auto_move_on_approved,
			auto_move_on_rejected = excluded.auto_move_on_rejected,
			updated_at = excluded.updated_at
	`

	selectUsersWithReminderRulesQuery = `
		SELECT DISTINCT user_id FROM reminder_rules
	`
)

// Order queries. Orders are owned by the CRM layer; the pipeline only needs
// enough to select and link reminder candidates.
const (
	insertOrderQuery = `
		INSERT INTO orders (
			id, user_id, client_id, client_name, client_phone, client_email,
			status, status_entered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	updateOrderStatusQuery = `
		UPDATE orders
		SET status = ?, status_entered_at = ?
		WHERE id = ?
	`

	selectOrdersAwaitingResponseQuery = `
		SELECT id, user_id, client_id, client_name, client_phone, client_email,
		       status, status_entered_at
		FROM orders
		WHERE status = 'sent' AND status_entered_at <= ?
		ORDER BY status_entered_at ASC
	`

	selectOrdersAwaitingResponseRangeQuery = `
		SELECT id, user_id, client_id, client_name, client_phone, client_email,
		       status, status_entered_at
		FROM orders
		WHERE status = 'sent' AND status_entered_at <= ?
		  AND status_entered_at >= ? AND status_entered_at < ?
		ORDER BY status_entered_at ASC
	`
)
