package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Version returns the current version of the portfolio.
func (s *Store) Version(ctx context.Context, portfolioID string) (int64, error) {
	return version(ctx, s.db, portfolioID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func version(ctx context.Context, q queryRower, portfolioID string) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx, "SELECT version FROM portfolios WHERE id = ?", portfolioID).Scan(&v)
	if err != nil {
		return 0, notFound("portfolio", portfolioID, err)
	}
	return v, nil
}

// bump moves the portfolio from expected to expected+1, or fails with
// portfolio.ErrVersionConflict. It is the first statement of every append:
// it takes the write lock.
func bump(ctx context.Context, tx *sql.Tx, portfolioID string, expected int64) (int64, error) {
	res, err := tx.ExecContext(ctx, "UPDATE portfolios SET version = version + 1 WHERE id = ? AND version = ?", portfolioID, expected)
	if err != nil {
		return 0, fmt.Errorf("failed to bump portfolio version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to bump portfolio version: %w", err)
	}
	if n == 1 {
		return expected + 1, nil
	}
	current, err := version(ctx, tx, portfolioID)
	if err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("portfolio %q at version %d, expected %d: %w", portfolioID, current, expected, portfolio.ErrVersionConflict)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func insertCash(ctx context.Context, tx *sql.Tx, c portfolio.CashTransaction) error {
	var shares any
	if c.Shares != nil {
		shares = c.Shares.String()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cash_transactions (id, seq, portfolio_id, account_id, asset_id, trade_id, date, type, amount, withholding_tax, shares, currency, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Seq, c.Portfolio, c.Account, nullString(c.Asset), nullString(c.TradeID), c.Date.String(), string(c.Type),
		c.Amount.String(), c.WithholdingTax.String(), shares, c.Currency, c.Note)
	if err != nil {
		return fmt.Errorf("failed to insert cash transaction: %w", err)
	}
	return nil
}

// AppendTrade appends t, and linked when not nil, under one new version.
func (s *Store) AppendTrade(ctx context.Context, t portfolio.Trade, linked *portfolio.CashTransaction, expectedVersion int64) (portfolio.Trade, error) {
	if err := t.Validate(); err != nil {
		return portfolio.Trade{}, err
	}
	if linked != nil {
		if err := linked.Validate(); err != nil {
			return portfolio.Trade{}, fmt.Errorf("settlement cash: %w", err)
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		seq, err := bump(ctx, tx, t.Portfolio, expectedVersion)
		if err != nil {
			return err
		}
		t.Seq = seq
		_, err = tx.ExecContext(ctx,
			`INSERT INTO trades (id, seq, portfolio_id, account_id, asset_id, date, side, quantity, price, fee, tax, fx_rate, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Seq, t.Portfolio, t.Account, t.Asset, t.Date.String(), string(t.Side),
			t.Quantity.String(), t.Price.String(), t.Fee.String(), t.Tax.String(), nullDecimal(t.FXRate), t.Note)
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
		if linked == nil {
			return nil
		}
		c := *linked
		c.ID, c.Seq, c.TradeID = uuid.NewString(), seq, t.ID
		return insertCash(ctx, tx, c)
	})
	if err != nil {
		return portfolio.Trade{}, err
	}
	s.log.Debug().Str("portfolio", t.Portfolio).Str("trade", t.ID).Int64("seq", t.Seq).Msg("trade appended")
	return t, nil
}

// AppendCashTransaction appends c under a new version.
func (s *Store) AppendCashTransaction(ctx context.Context, c portfolio.CashTransaction, expectedVersion int64) (portfolio.CashTransaction, error) {
	if err := c.Validate(); err != nil {
		return portfolio.CashTransaction{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		seq, err := bump(ctx, tx, c.Portfolio, expectedVersion)
		if err != nil {
			return err
		}
		c.Seq = seq
		return insertCash(ctx, tx, c)
	})
	if err != nil {
		return portfolio.CashTransaction{}, err
	}
	return c, nil
}

// AppendSplit appends sp under a new version.
func (s *Store) AppendSplit(ctx context.Context, sp portfolio.Split, expectedVersion int64) (portfolio.Split, error) {
	if err := sp.Validate(); err != nil {
		return portfolio.Split{}, err
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		seq, err := bump(ctx, tx, sp.Portfolio, expectedVersion)
		if err != nil {
			return err
		}
		sp.Seq = seq
		_, err = tx.ExecContext(ctx,
			"INSERT INTO splits (id, seq, portfolio_id, asset_id, date, numerator, denominator) VALUES (?, ?, ?, ?, ?, ?, ?)",
			sp.ID, sp.Seq, sp.Portfolio, sp.Asset, sp.Date.String(), sp.Numerator, sp.Denominator)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
		return nil
	})
	if err != nil {
		return portfolio.Split{}, err
	}
	return sp, nil
}

// where accumulates the conditions of a query.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string { return strings.Join(w.conds, " AND ") }

// snapshot runs read and the watermark query in one transaction, so that
// both observe the same database state.
func (s *Store) snapshot(ctx context.Context, portfolioID string, read func(tx *sql.Tx) error) (int64, error) {
	var watermark int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if watermark, err = version(ctx, tx, portfolioID); err != nil {
			return err
		}
		return read(tx)
	})
	return watermark, err
}

// ListTrades returns the trades matching q, ordered by date then seq.
func (s *Store) ListTrades(ctx context.Context, q portfolio.TradeQuery) ([]portfolio.Trade, int64, error) {
	w := &where{}
	w.add("portfolio_id = ?", q.Portfolio)
	w.add("seq <= ?", q.AtVersion)
	if q.Asset != "" {
		w.add("asset_id = ?", q.Asset)
	}
	if !q.AsOf.IsZero() {
		w.add("date <= ?", q.AsOf.String())
	}

	var trades []portfolio.Trade
	watermark, err := s.snapshot(ctx, q.Portfolio, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, seq, portfolio_id, account_id, asset_id, date, side, quantity, price, fee, tax, fx_rate, note
			FROM trades WHERE `+w.String()+` ORDER BY date, seq, id`, w.args...)
		if err != nil {
			return fmt.Errorf("failed to query trades: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t portfolio.Trade
			var side string
			var fx decimal.NullDecimal
			if err := rows.Scan(&t.ID, &t.Seq, &t.Portfolio, &t.Account, &t.Asset, &t.Date, &side,
				&t.Quantity, &t.Price, &t.Fee, &t.Tax, &fx, &t.Note); err != nil {
				return fmt.Errorf("failed to scan trade: %w", err)
			}
			t.Side = portfolio.Side(side)
			if fx.Valid {
				t.FXRate = &fx.Decimal
			}
			trades = append(trades, t)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating trades: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return trades, watermark, nil
}

// ListCashTransactions returns the cash transactions matching q, ordered by
// date then seq.
func (s *Store) ListCashTransactions(ctx context.Context, q portfolio.CashQuery) ([]portfolio.CashTransaction, int64, error) {
	w := &where{}
	w.add("portfolio_id = ?", q.Portfolio)
	w.add("seq <= ?", q.AtVersion)
	if !q.From.IsZero() {
		w.add("date >= ?", q.From.String())
	}
	if !q.To.IsZero() {
		w.add("date <= ?", q.To.String())
	}

	var cash []portfolio.CashTransaction
	watermark, err := s.snapshot(ctx, q.Portfolio, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, seq, portfolio_id, account_id, asset_id, trade_id, date, type, amount, withholding_tax, shares, currency, note
			FROM cash_transactions WHERE `+w.String()+` ORDER BY date, seq, id`, w.args...)
		if err != nil {
			return fmt.Errorf("failed to query cash transactions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var c portfolio.CashTransaction
			var asset, trade sql.NullString
			var typ string
			var shares decimal.NullDecimal
			if err := rows.Scan(&c.ID, &c.Seq, &c.Portfolio, &c.Account, &asset, &trade, &c.Date, &typ,
				&c.Amount, &c.WithholdingTax, &shares, &c.Currency, &c.Note); err != nil {
				return fmt.Errorf("failed to scan cash transaction: %w", err)
			}
			c.Asset, c.TradeID, c.Type = asset.String, trade.String, portfolio.CashType(typ)
			if shares.Valid {
				n := portfolio.Q(shares.Decimal)
				c.Shares = &n
			}
			cash = append(cash, c)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating cash transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return cash, watermark, nil
}

// ListSplits returns the splits matching q, ordered by date then seq.
func (s *Store) ListSplits(ctx context.Context, q portfolio.SplitQuery) ([]portfolio.Split, int64, error) {
	w := &where{}
	w.add("portfolio_id = ?", q.Portfolio)
	w.add("seq <= ?", q.AtVersion)
	if q.Asset != "" {
		w.add("asset_id = ?", q.Asset)
	}
	if !q.AsOf.IsZero() {
		w.add("date <= ?", q.AsOf.String())
	}

	var splits []portfolio.Split
	watermark, err := s.snapshot(ctx, q.Portfolio, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT id, seq, portfolio_id, asset_id, date, numerator, denominator FROM splits WHERE "+w.String()+" ORDER BY date, seq, id",
			w.args...)
		if err != nil {
			return fmt.Errorf("failed to query splits: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var sp portfolio.Split
			if err := rows.Scan(&sp.ID, &sp.Seq, &sp.Portfolio, &sp.Asset, &sp.Date, &sp.Numerator, &sp.Denominator); err != nil {
				return fmt.Errorf("failed to scan split: %w", err)
			}
			splits = append(splits, sp)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating splits: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return splits, watermark, nil
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
