package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/google/uuid"
)

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func notFound(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", what, id, portfolio.ErrNotFound)
	}
	return fmt.Errorf("failed to read %s %q: %w", what, id, err)
}

const portfolioColumns = "id, name, base_currency, cost_method, version"

func scanPortfolio(row scanner) (portfolio.Portfolio, error) {
	var p portfolio.Portfolio
	var method string
	if err := row.Scan(&p.ID, &p.Name, &p.BaseCurrency, &method, &p.Version); err != nil {
		return p, err
	}
	m, err := portfolio.ParseCostMethod(method)
	if err != nil {
		return p, err
	}
	p.CostMethod = m
	return p, nil
}

// CreatePortfolio inserts p at version 0. An ID is generated when empty.
func (s *Store) CreatePortfolio(ctx context.Context, p portfolio.Portfolio) (portfolio.Portfolio, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Version = 0
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO portfolios (id, name, base_currency, cost_method, version, created_at) VALUES (?, ?, ?, ?, 0, ?)",
		p.ID, p.Name, p.BaseCurrency, p.CostMethod.String(), time.Now().Unix())
	if err != nil {
		return portfolio.Portfolio{}, fmt.Errorf("failed to insert portfolio: %w", err)
	}
	return p, nil
}

func (s *Store) Portfolio(ctx context.Context, id string) (portfolio.Portfolio, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id)
	p, err := scanPortfolio(row)
	if err != nil {
		return portfolio.Portfolio{}, notFound("portfolio", id, err)
	}
	return p, nil
}

func (s *Store) Portfolios(ctx context.Context) ([]portfolio.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios ORDER BY created_at, name")
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var res []portfolio.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return res, nil
}

// CreateAccount inserts a. An ID is generated when empty.
func (s *Store) CreateAccount(ctx context.Context, a portfolio.Account) (portfolio.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (id, portfolio_id, name, currency) VALUES (?, ?, ?, ?)",
		a.ID, a.Portfolio, a.Name, a.Currency)
	if err != nil {
		return portfolio.Account{}, fmt.Errorf("failed to insert account: %w", err)
	}
	return a, nil
}

func (s *Store) Account(ctx context.Context, id string) (portfolio.Account, error) {
	var a portfolio.Account
	err := s.db.QueryRowContext(ctx, "SELECT id, portfolio_id, name, currency FROM accounts WHERE id = ?", id).
		Scan(&a.ID, &a.Portfolio, &a.Name, &a.Currency)
	if err != nil {
		return portfolio.Account{}, notFound("account", id, err)
	}
	return a, nil
}

func (s *Store) Accounts(ctx context.Context, portfolioID string) ([]portfolio.Account, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, portfolio_id, name, currency FROM accounts WHERE portfolio_id = ? ORDER BY name", portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var res []portfolio.Account
	for rows.Next() {
		var a portfolio.Account
		if err := rows.Scan(&a.ID, &a.Portfolio, &a.Name, &a.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return res, nil
}

const assetColumns = "id, symbol, exchange, name, type, currency"

func scanAsset(row scanner) (portfolio.Asset, error) {
	var a portfolio.Asset
	var typ string
	if err := row.Scan(&a.ID, &a.Symbol, &a.Exchange, &a.Name, &typ, &a.Currency); err != nil {
		return a, err
	}
	a.Type = portfolio.AssetType(typ)
	return a, nil
}

// PutAsset inserts a when its ID is empty, and updates it otherwise.
//
// (symbol, exchange) must stay unique, and the symbol or exchange of an
// asset referenced by a trade cannot change.
func (s *Store) PutAsset(ctx context.Context, a portfolio.Asset) (portfolio.Asset, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var other string
		err := tx.QueryRowContext(ctx, "SELECT id FROM assets WHERE symbol = ? AND exchange = ?", a.Symbol, a.Exchange).Scan(&other)
		switch {
		case err == nil && other != a.ID:
			return &portfolio.ValidationError{Field: "symbol", Reason: fmt.Sprintf("%s is already declared", a.Ticker())}
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check asset unicity: %w", err)
		}

		if a.ID == "" {
			a.ID = uuid.NewString()
			_, err := tx.ExecContext(ctx,
				"INSERT INTO assets ("+assetColumns+") VALUES (?, ?, ?, ?, ?, ?)",
				a.ID, a.Symbol, a.Exchange, a.Name, string(a.Type), a.Currency)
			if err != nil {
				return fmt.Errorf("failed to insert asset: %w", err)
			}
			return nil
		}

		old, err := scanAsset(tx.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", a.ID))
		if err != nil {
			return notFound("asset", a.ID, err)
		}
		if old.Symbol != a.Symbol || old.Exchange != a.Exchange || old.Currency != a.Currency {
			var trades int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades WHERE asset_id = ?", a.ID).Scan(&trades); err != nil {
				return fmt.Errorf("failed to count trades: %w", err)
			}
			if trades > 0 {
				return &portfolio.ValidationError{Field: "symbol", Reason: fmt.Sprintf("%s is referenced by %d trades and cannot change", old.Ticker(), trades)}
			}
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE assets SET symbol = ?, exchange = ?, name = ?, type = ?, currency = ? WHERE id = ?",
			a.Symbol, a.Exchange, a.Name, string(a.Type), a.Currency, a.ID)
		if err != nil {
			return fmt.Errorf("failed to update asset: %w", err)
		}
		return nil
	})
	if err != nil {
		return portfolio.Asset{}, err
	}
	return a, nil
}

func (s *Store) Asset(ctx context.Context, id string) (portfolio.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id))
	if err != nil {
		return portfolio.Asset{}, notFound("asset", id, err)
	}
	return a, nil
}

// AssetBySymbol returns the asset declared as symbol on exchange.
func (s *Store) AssetBySymbol(ctx context.Context, symbol, exchange string) (portfolio.Asset, error) {
	a, err := scanAsset(s.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE symbol = ? AND exchange = ?", symbol, exchange))
	if err != nil {
		return portfolio.Asset{}, notFound("asset", symbol, err)
	}
	return a, nil
}

func (s *Store) Assets(ctx context.Context) ([]portfolio.Asset, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+assetColumns+" FROM assets ORDER BY symbol, exchange")
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var res []portfolio.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return res, nil
}
