package sqlite

// Schema defines the SQL statements to create the ledger tables.
// Money and rates are stored as decimal strings; dates as YYYY-MM-DD text,
// which sorts chronologically.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    name_secondary TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    subtype TEXT NOT NULL DEFAULT '',
    parent_id INTEGER REFERENCES accounts(id),
    currency TEXT NOT NULL,
    opening_balance TEXT NOT NULL DEFAULT '0',
    current_balance TEXT NOT NULL DEFAULT '0',
    is_active INTEGER NOT NULL DEFAULT 1,
    is_system INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_accounts_parent ON accounts(parent_id);

CREATE TABLE IF NOT EXISTS recurring_transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL DEFAULT '',
    frequency TEXT NOT NULL,
    interval INTEGER NOT NULL DEFAULT 1,
    start_date TEXT NOT NULL,
    end_date TEXT,
    next_run_date TEXT NOT NULL,
    max_occurrences INTEGER,
    occurrences_count INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    template_json TEXT NOT NULL,
    created_by INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_recurring_due
    ON recurring_transactions(is_active, next_run_date);

CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    reference_number TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    description_secondary TEXT NOT NULL DEFAULT '',
    transaction_date TEXT NOT NULL,
    type TEXT NOT NULL,
    total_amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    exchange_rate TEXT NOT NULL DEFAULT '1',
    is_locked INTEGER NOT NULL DEFAULT 0,
    is_recurring INTEGER NOT NULL DEFAULT 0,
    recurring_template_id INTEGER REFERENCES recurring_transactions(id) ON DELETE SET NULL,
    cost_center TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    created_by INTEGER NOT NULL DEFAULT 0,
    approved_by INTEGER,
    source_kind TEXT NOT NULL DEFAULT '',
    source_id TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(transaction_date);

CREATE TABLE IF NOT EXISTS transaction_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    transaction_id INTEGER NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
    account_id INTEGER NOT NULL REFERENCES accounts(id),
    debit_amount TEXT NOT NULL DEFAULT '0',
    credit_amount TEXT NOT NULL DEFAULT '0',
    description TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entries_transaction ON transaction_entries(transaction_id);
CREATE INDEX IF NOT EXISTS idx_entries_account ON transaction_entries(account_id);

-- Per-day counter backing reference_number generation.
CREATE TABLE IF NOT EXISTS reference_sequences (
    day TEXT PRIMARY KEY,
    last_seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS recurring_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id TEXT NOT NULL DEFAULT '',
    template_id INTEGER NOT NULL REFERENCES recurring_transactions(id) ON DELETE CASCADE,
    run_at TEXT NOT NULL,
    status TEXT NOT NULL,
    transaction_id INTEGER,
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_recurring_runs_template ON recurring_runs(template_id);

CREATE TABLE IF NOT EXISTS currencies (
    code TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    exchange_rate TEXT NOT NULL DEFAULT '1',
    is_base INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS exchange_rates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_currency TEXT NOT NULL,
    to_currency TEXT NOT NULL,
    rate TEXT NOT NULL,
    effective_date TEXT NOT NULL,
    UNIQUE(from_currency, to_currency, effective_date)
);
`
