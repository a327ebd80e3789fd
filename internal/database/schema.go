package database

// Schema is the journal database schema. It is idempotent: every statement is
// IF NOT EXISTS, so Migrate can run on every startup.
//
// Money columns (balance, core_pnl, fees, net_pnl) are REAL in a single
// settlement currency. Price and quantity columns on trades are nullable on
// purpose: a NULL means "the agent has not reported this yet", which is
// distinct from a reported value of zero. The field-merge policy relies on
// that distinction.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    currency   TEXT NOT NULL,
    balance    REAL NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

CREATE TABLE IF NOT EXISTS trades (
    id                TEXT PRIMARY KEY,
    account_id        TEXT NOT NULL REFERENCES accounts(id),
    external_id       TEXT,
    raw_symbol        TEXT NOT NULL DEFAULT '',
    symbol            TEXT NOT NULL DEFAULT '',
    direction         TEXT NOT NULL DEFAULT '',
    order_type        TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'OPEN',
    outcome           TEXT NOT NULL DEFAULT 'Open',
    pending           INTEGER NOT NULL DEFAULT 0,
    entry_price       REAL,
    stop_loss         REAL,
    take_profit       REAL,
    final_stop_loss   REAL,
    final_take_profit REAL,
    exit_price        REAL,
    quantity          REAL,
    core_pnl          REAL NOT NULL DEFAULT 0,
    fees              REAL NOT NULL DEFAULT 0,
    net_pnl           REAL NOT NULL DEFAULT 0,
    balance_applied   INTEGER NOT NULL DEFAULT 0,
    tags              TEXT NOT NULL DEFAULT '',
    notes             TEXT NOT NULL DEFAULT '',
    screenshots       TEXT NOT NULL DEFAULT '',
    opened_at         INTEGER,
    closed_at         INTEGER,
    is_deleted        INTEGER NOT NULL DEFAULT 0,
    deleted_at        INTEGER,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL,
    UNIQUE(account_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id);
CREATE INDEX IF NOT EXISTS idx_trades_deleted ON trades(is_deleted, deleted_at);

CREATE TABLE IF NOT EXISTS partials (
    trade_id   TEXT NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
    partial_id TEXT NOT NULL,
    quantity   REAL NOT NULL,
    price      REAL NOT NULL,
    pnl        REAL NOT NULL,
    closed_at  INTEGER NOT NULL,
    PRIMARY KEY (trade_id, partial_id)
);

CREATE TABLE IF NOT EXISTS processed_events (
    event_id          TEXT PRIMARY KEY,
    account_id        TEXT NOT NULL,
    external_trade_id TEXT,
    event_type        TEXT NOT NULL,
    payload           BLOB,
    received_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processed_events_account ON processed_events(account_id);

-- Single-row table used by WithWriteTransaction to promote a transaction to a
-- writer before any reads happen.
CREATE TABLE IF NOT EXISTS write_lock (
    id INTEGER PRIMARY KEY CHECK (id = 1)
);
INSERT OR IGNORE INTO write_lock (id) VALUES (1);
`
