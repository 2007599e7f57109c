package database

import "context"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		login TEXT NOT NULL,
		password TEXT NOT NULL,
		game_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'free',
		renter_id TEXT,
		rented_until TIMESTAMPTZ,
		order_id TEXT,
		order_synthetic BOOLEAN NOT NULL DEFAULT FALSE,
		warned BOOLEAN NOT NULL DEFAULT FALSE,
		bonus_granted BOOLEAN NOT NULL DEFAULT FALSE,
		guard_lookup_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		mailbox_login TEXT,
		mailbox_password TEXT,
		imap_host TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_game_status ON accounts (game_name, status)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_renter ON accounts (renter_id) WHERE status = 'rented'`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_order ON accounts (order_id) WHERE status = 'rented'`,
	`CREATE TABLE IF NOT EXISTS friend_mode_flags (
		buyer_id TEXT PRIMARY KEY,
		activated_at TIMESTAMPTZ NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS operators (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate bootstraps the schema. Statements are idempotent so this is safe to
// run on every start.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
