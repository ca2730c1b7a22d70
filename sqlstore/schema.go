package sqlstore

import "strings"

// schema is applied in order on every Open. Decimals are stored as TEXT to
// keep them exact; dates as YYYY-MM-DD TEXT so that they sort.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS portfolios (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		base_currency TEXT NOT NULL,
		cost_method   TEXT NOT NULL,
		version       INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id           TEXT PRIMARY KEY,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		name         TEXT NOT NULL,
		currency     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assets (
		id       TEXT PRIMARY KEY,
		symbol   TEXT NOT NULL,
		exchange TEXT NOT NULL DEFAULT '',
		name     TEXT NOT NULL DEFAULT '',
		type     TEXT NOT NULL,
		currency TEXT NOT NULL,
		UNIQUE (symbol, exchange)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id           TEXT PRIMARY KEY,
		seq          INTEGER NOT NULL,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		account_id   TEXT NOT NULL REFERENCES accounts(id),
		asset_id     TEXT NOT NULL REFERENCES assets(id),
		date         TEXT NOT NULL,
		side         TEXT NOT NULL,
		quantity     TEXT NOT NULL,
		price        TEXT NOT NULL,
		fee          TEXT NOT NULL,
		tax          TEXT NOT NULL,
		fx_rate      TEXT,
		note         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_portfolio ON trades (portfolio_id, date, seq)`,
	`CREATE TABLE IF NOT EXISTS cash_transactions (
		id              TEXT PRIMARY KEY,
		seq             INTEGER NOT NULL,
		portfolio_id    TEXT NOT NULL REFERENCES portfolios(id),
		account_id      TEXT NOT NULL REFERENCES accounts(id),
		asset_id        TEXT REFERENCES assets(id),
		trade_id        TEXT REFERENCES trades(id),
		date            TEXT NOT NULL,
		type            TEXT NOT NULL,
		amount          TEXT NOT NULL,
		withholding_tax TEXT NOT NULL,
		shares          TEXT,
		currency        TEXT NOT NULL,
		note            TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cash_portfolio ON cash_transactions (portfolio_id, date, seq)`,
	`CREATE TABLE IF NOT EXISTS splits (
		id           TEXT PRIMARY KEY,
		seq          INTEGER NOT NULL,
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id),
		asset_id     TEXT NOT NULL REFERENCES assets(id),
		date         TEXT NOT NULL,
		numerator    INTEGER NOT NULL,
		denominator  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS prices (
		asset_id TEXT NOT NULL REFERENCES assets(id),
		date     TEXT NOT NULL,
		price    TEXT NOT NULL,
		PRIMARY KEY (asset_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS fx_rates (
		from_currency TEXT NOT NULL,
		to_currency   TEXT NOT NULL,
		date          TEXT NOT NULL,
		rate          TEXT NOT NULL,
		PRIMARY KEY (from_currency, to_currency, date)
	)`,
	immutable("UPDATE", "trades"),
	immutable("DELETE", "trades"),
	immutable("UPDATE", "cash_transactions"),
	immutable("DELETE", "cash_transactions"),
	immutable("UPDATE", "splits"),
	immutable("DELETE", "splits"),
}

// immutable returns the trigger rejecting op (UPDATE or DELETE) on table.
func immutable(op, table string) string {
	return `CREATE TRIGGER IF NOT EXISTS ` + table + `_no_` + strings.ToLower(op) + ` BEFORE ` + op + ` ON ` + table + `
	BEGIN SELECT RAISE(ABORT, 'ledger records are immutable'); END`
}
