package migrations

// InitialSchema is applied on every open; all statements are idempotent.
const InitialSchema = `
CREATE TABLE IF NOT EXISTS outbox_entries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    channel TEXT NOT NULL,
    destination TEXT NOT NULL,
    template TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    provider TEXT NOT NULL,
    provider_msg_id TEXT,
    error_code TEXT,
    error_details TEXT,
    order_id TEXT,
    client_id TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status_updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_tested_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_outbox_user ON outbox_entries(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_entries(status, created_at);
CREATE INDEX IF NOT EXISTS idx_outbox_order ON outbox_entries(order_id, template, created_at);
CREATE INDEX IF NOT EXISTS idx_outbox_provider_msg ON outbox_entries(provider_msg_id);

CREATE TABLE IF NOT EXISTS reminder_rules (
    user_id TEXT PRIMARY KEY,
    enabled INTEGER NOT NULL DEFAULT 1,
    escalation_days INTEGER NOT NULL,
    channels TEXT NOT NULL DEFAULT '["whatsapp"]',
    auto_move_on_sent INTEGER NOT NULL DEFAULT 0,
    auto_move_on_approved INTEGER NOT NULL DEFAULT 0,
    auto_move_on_rejected INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    client_id TEXT NOT NULL DEFAULT '',
    client_name TEXT NOT NULL DEFAULT '',
    client_phone TEXT NOT NULL DEFAULT '',
    client_email TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    status_entered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, status_entered_at);
`
