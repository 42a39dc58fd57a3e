package postgres

import "context"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS menu_items (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
		stock       INT NOT NULL DEFAULT 0 CHECK (stock >= 0),
		visible     BOOLEAN NOT NULL DEFAULT TRUE,
		deleted     BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		balance_cents BIGINT NOT NULL DEFAULT 0 CHECK (balance_cents >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		direction    TEXT NOT NULL,
		amount_cents BIGINT NOT NULL CHECK (amount_cents >= 0),
		status       TEXT NOT NULL,
		ref          TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_credit_ref
		ON transactions (ref, direction)
		WHERE direction = 'credit' AND ref <> ''`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id                    TEXT PRIMARY KEY,
		user_id               TEXT NOT NULL,
		total_cents           BIGINT NOT NULL,
		status                TEXT NOT NULL,
		transaction_id        TEXT NOT NULL DEFAULT '',
		charged               BOOLEAN NOT NULL DEFAULT FALSE,
		charged_at            TIMESTAMPTZ,
		stock_deducted        BOOLEAN NOT NULL DEFAULT FALSE,
		refunded              BOOLEAN NOT NULL DEFAULT FALSE,
		refund_transaction_id TEXT NOT NULL DEFAULT '',
		created_at            TIMESTAMPTZ NOT NULL,
		updated_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservation_lines (
		reservation_id TEXT NOT NULL,
		item_id        TEXT NOT NULL,
		name           TEXT NOT NULL,
		price_cents    BIGINT NOT NULL,
		quantity       INT NOT NULL,
		PRIMARY KEY (reservation_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id          BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		type        TEXT NOT NULL,
		payload     BYTEA NOT NULL,
		headers     JSONB,
		traceparent TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'pending',
		relay_id    TEXT,
		lease_until TIMESTAMPTZ,
		retry_count INT NOT NULL DEFAULT 0,
		last_error  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables this backend needs. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
