package postgres

import (
	"context"
	"fmt"
)

// schema creates the ledger tables. Statements are idempotent so ApplySchema
// can run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS companies (
	id         BIGINT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallets (
	id           UUID PRIMARY KEY,
	company_id   BIGINT NOT NULL REFERENCES companies(id),
	wallet_type  TEXT NOT NULL CHECK (wallet_type IN ('general', 'profit', 'provider', 'processor_fees', 'tax')),
	balance      NUMERIC(20, 4) NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	retired_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS wallets_company_type_active
	ON wallets (company_id, wallet_type) WHERE retired_at IS NULL;

CREATE TABLE IF NOT EXISTS wallet_transactions (
	id                      UUID PRIMARY KEY,
	wallet_id               UUID NOT NULL REFERENCES wallets(id),
	company_id              BIGINT NOT NULL REFERENCES companies(id),
	amount                  NUMERIC(20, 4) NOT NULL,
	type                    TEXT NOT NULL CHECK (type IN ('credit', 'debit', 'refund', 'cancellation')),
	description             TEXT NOT NULL DEFAULT '',
	related_transaction_id  UUID REFERENCES wallet_transactions(id) DEFERRABLE INITIALLY DEFERRED,
	original_transaction_id UUID REFERENCES wallet_transactions(id),
	esim_order_id           TEXT,
	esim_plan_id            TEXT,
	idempotency_key         TEXT,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS wallet_transactions_wallet_created
	ON wallet_transactions (wallet_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS wallet_transactions_company_created
	ON wallet_transactions (company_id, created_at);
CREATE INDEX IF NOT EXISTS wallet_transactions_unlinked
	ON wallet_transactions (esim_order_id) WHERE related_transaction_id IS NULL;

CREATE TABLE IF NOT EXISTS idempotency_logs (
	key           TEXT PRIMARY KEY,
	response_json JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id            UUID PRIMARY KEY,
	actor         TEXT NOT NULL,
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT,
	details       JSONB,
	ip_address    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// ApplySchema creates missing tables and indexes.
func ApplySchema(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
