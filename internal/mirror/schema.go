package mirror

// schema creates the event table and the per-kind projections. Every
// statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_events (
    seq         BIGINT PRIMARY KEY,
    call_id     TEXT NOT NULL,
    kind        TEXT NOT NULL,
    contract    TEXT NOT NULL,
    caller      TEXT NOT NULL DEFAULT '',
    accounts    JSONB NOT NULL DEFAULT '{}',
    amounts     JSONB NOT NULL DEFAULT '{}',
    occurred_at TIMESTAMPTZ NOT NULL,
    mirrored_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_events_call_id ON ledger_events (call_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_kind ON ledger_events (kind, contract)`,

	`CREATE OR REPLACE VIEW rights_ledgers AS
SELECT contract AS ledger, accounts->>'owner' AS owner,
       (amounts->>'right_purchase_rate')::NUMERIC AS right_purchase_rate,
       (amounts->>'listen_rate')::NUMERIC AS listen_rate,
       call_id, occurred_at
FROM ledger_events WHERE kind = 'rights.deployed'`,

	`CREATE OR REPLACE VIEW validated_ledgers AS
SELECT DISTINCT ON (accounts->>'ledger') accounts->>'ledger' AS ledger, call_id, occurred_at
FROM ledger_events WHERE kind = 'token.ledger_validated'
ORDER BY accounts->>'ledger', seq`,

	`CREATE OR REPLACE VIEW assigned_rights AS
SELECT contract AS ledger, accounts->>'holder' AS holder, (amounts->>'pct')::NUMERIC AS pct,
       call_id, occurred_at
FROM ledger_events WHERE kind = 'rights.assigned'`,

	`CREATE OR REPLACE VIEW withdrawn_rights AS
SELECT contract AS ledger, accounts->>'holder' AS holder, (amounts->>'pct')::NUMERIC AS pct,
       call_id, occurred_at
FROM ledger_events WHERE kind = 'rights.withdrawn'`,

	`CREATE OR REPLACE VIEW sealed_rights AS
SELECT contract AS ledger, caller AS owner, call_id, occurred_at
FROM ledger_events WHERE kind = 'rights.sealed'`,

	`CREATE OR REPLACE VIEW token_purchases AS
SELECT contract AS ledger, caller AS buyer,
       (amounts->>'tokens')::NUMERIC AS tokens,
       (amounts->>'payment')::NUMERIC AS payment,
       (amounts->>'required')::NUMERIC AS required,
       COALESCE((amounts->>'fee')::NUMERIC, 0) AS fee,
       COALESCE((amounts->>'refund')::NUMERIC, 0) AS refund,
       call_id, occurred_at
FROM ledger_events WHERE kind = 'rights.tokens_bought'`,

	`CREATE OR REPLACE VIEW refunds AS
SELECT ledger, buyer, refund, call_id, occurred_at
FROM token_purchases WHERE refund > 0`,

	`CREATE OR REPLACE VIEW token_sales AS
SELECT contract AS ledger, caller AS seller,
       (amounts->>'tokens')::NUMERIC AS tokens,
       (amounts->>'payout')::NUMERIC AS payout,
       call_id, occurred_at
FROM ledger_events WHERE kind = 'rights.tokens_sold'`,

	`CREATE OR REPLACE VIEW rights_fees AS
SELECT contract AS ledger, caller AS payer, (amounts->>'payment')::NUMERIC AS amount,
       call_id, occurred_at
FROM ledger_events WHERE kind = 'rights.fee_paid'`,

	`CREATE OR REPLACE VIEW listens AS
SELECT contract AS ledger, caller AS listener, (amounts->>'payment')::NUMERIC AS amount,
       call_id, occurred_at
FROM ledger_events WHERE kind = 'rights.listen_paid'`,

	`CREATE OR REPLACE VIEW vault_transfers AS
SELECT kind, COALESCE(accounts->>'to', accounts->>'from') AS counterparty,
       (amounts->>'tokens')::NUMERIC AS tokens, call_id, occurred_at
FROM ledger_events WHERE kind IN ('vault.sent', 'vault.received')`,
}
