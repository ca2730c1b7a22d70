package sqlstore

import (
	"context"
	"fmt"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/shopspring/decimal"
)

// PutPrice records the price of an asset on a date, replacing any previous one.
func (s *Store) PutPrice(ctx context.Context, q portfolio.Quote) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prices (asset_id, date, price) VALUES (?, ?, ?)
		ON CONFLICT (asset_id, date) DO UPDATE SET price = excluded.price`,
		q.Asset, q.Date.String(), q.Price.String())
	if err != nil {
		return fmt.Errorf("failed to upsert price: %w", err)
	}
	return nil
}

// Price returns the last price of asset on or before on.
func (s *Store) Price(ctx context.Context, asset string, on portfolio.Date) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		"SELECT price FROM prices WHERE asset_id = ? AND date <= ? ORDER BY date DESC LIMIT 1",
		asset, on.String()).Scan(&price)
	switch {
	case isNoRows(err):
		return decimal.Decimal{}, false, nil
	case err != nil:
		return decimal.Decimal{}, false, fmt.Errorf("failed to query price: %w", err)
	}
	return price, true, nil
}

// PutFXRate records an exchange rate on a date, replacing any previous one.
func (s *Store) PutFXRate(ctx context.Context, r portfolio.FXRate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fx_rates (from_currency, to_currency, date, rate) VALUES (?, ?, ?, ?)
		ON CONFLICT (from_currency, to_currency, date) DO UPDATE SET rate = excluded.rate`,
		r.From, r.To, r.Date.String(), r.Rate.String())
	if err != nil {
		return fmt.Errorf("failed to upsert fx rate: %w", err)
	}
	return nil
}

// Rate returns the last rate from→to on or before on. When only the inverse
// pair is recorded, its reciprocal is used.
func (s *Store) Rate(ctx context.Context, from, to string, on portfolio.Date) (decimal.Decimal, bool, error) {
	r, ok, err := s.rate(ctx, from, to, on)
	if err != nil || ok {
		return r, ok, err
	}
	inv, ok, err := s.rate(ctx, to, from, on)
	if err != nil || !ok || inv.IsZero() {
		return decimal.Decimal{}, false, err
	}
	return decimal.NewFromInt(1).Div(inv), true, nil
}

func (s *Store) rate(ctx context.Context, from, to string, on portfolio.Date) (decimal.Decimal, bool, error) {
	var r decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		"SELECT rate FROM fx_rates WHERE from_currency = ? AND to_currency = ? AND date <= ? ORDER BY date DESC LIMIT 1",
		from, to, on.String()).Scan(&r)
	switch {
	case isNoRows(err):
		return decimal.Decimal{}, false, nil
	case err != nil:
		return decimal.Decimal{}, false, fmt.Errorf("failed to query fx rate: %w", err)
	}
	return r, true, nil
}

var _ portfolio.Store = (*Store)(nil)
