package portfolio

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// DashboardStats compares a portfolio between two dates, in the base
// currency, as recorded at one ledger version.
type DashboardStats struct {
	Portfolio        string   `json:"portfolio_id"`
	AsOf             Date     `json:"as_of"`
	PriorAsOf        Date     `json:"prior_as_of"`
	Version          int64    `json:"version"`
	Currency         string   `json:"currency"`
	MarketValue      Money    `json:"market_value"`
	PriorMarketValue Money    `json:"prior_market_value"`
	CashBalance      Money    `json:"cash_balance"`
	TotalNetWorth    Money    `json:"total_net_worth"`
	DayChangeAmount  Money    `json:"day_change_amount"`
	DayChangePercent Percent  `json:"day_change_percent"`
	TotalPnL         Money    `json:"total_pnl"`
	Excluded         []string `json:"excluded_assets"`
}

// DashboardStats returns the stats of portfolio at asOf compared to the day
// before. A zero asOf means today.
func (e *Engine) DashboardStats(ctx context.Context, portfolio string, asOf Date) (DashboardStats, error) {
	if asOf.IsZero() {
		asOf = Today()
	}
	return e.DashboardBetween(ctx, portfolio, asOf.Add(-1), asOf)
}

// DashboardBetween returns the stats of portfolio at asOf compared to prior.
//
// Both valuations, the cash balance and the total pnl are read in parallel
// at the same ledger version.
func (e *Engine) DashboardBetween(ctx context.Context, portfolio string, prior, asOf Date) (DashboardStats, error) {
	if prior.After(asOf) {
		return DashboardStats{}, invalid("prior", "%s is after %s", prior, asOf)
	}
	var res Report
	err := e.pinned(ctx, portfolio, func(ctx context.Context, p Portfolio, version int64) (err error) {
		res, err = e.reportAt(ctx, p, version, prior, asOf)
		return err
	})
	return res.Dashboard, err
}

// Report is the dashboard, the positions and the performance since
// inception of a portfolio, all read at one ledger version.
type Report struct {
	Portfolio Portfolio      `json:"portfolio"`
	Dashboard DashboardStats `json:"dashboard"`
	Valuation Valuation      `json:"valuation"`
	PnL       PnLSummary     `json:"pnl"`
}

// Report returns the report of portfolio at asOf, compared to the day
// before. A zero asOf means today.
func (e *Engine) Report(ctx context.Context, portfolio string, asOf Date) (Report, error) {
	if asOf.IsZero() {
		asOf = Today()
	}
	var res Report
	err := e.pinned(ctx, portfolio, func(ctx context.Context, p Portfolio, version int64) (err error) {
		res, err = e.reportAt(ctx, p, version, asOf.Add(-1), asOf)
		return err
	})
	return res, err
}

func (e *Engine) reportAt(ctx context.Context, p Portfolio, version int64, prior, asOf Date) (Report, error) {
	var (
		today, before Valuation
		cash          Money
		pnl           PnLSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		today, err = e.valuationAt(gctx, p, version, asOf)
		return err
	})
	g.Go(func() (err error) {
		before, err = e.valuationAt(gctx, p, version, prior)
		return err
	})
	g.Go(func() (err error) {
		cash, err = e.cashBalanceAt(gctx, p, version, asOf)
		return err
	})
	g.Go(func() (err error) {
		pnl, err = e.pnlAt(gctx, p, version, Inception, asOf, asOf)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	p.Version = version
	return Report{
		Portfolio: p,
		Dashboard: dashboard(p, version, prior, asOf, today, before, cash, pnl),
		Valuation: today,
		PnL:       pnl,
	}, nil
}

// dashboard joins the sub-reads of a DashboardStats.
func dashboard(p Portfolio, version int64, prior, asOf Date, today, before Valuation, cash Money, pnl PnLSummary) DashboardStats {
	s := DashboardStats{
		Portfolio:        p.ID,
		AsOf:             asOf,
		PriorAsOf:        prior,
		Version:          version,
		Currency:         p.BaseCurrency,
		MarketValue:      today.MarketValue,
		PriorMarketValue: before.MarketValue,
		CashBalance:      cash,
		TotalPnL:         pnl.TotalReturn,
	}
	s.TotalNetWorth = s.MarketValue.Add(s.CashBalance)
	s.DayChangeAmount = s.MarketValue.Sub(s.PriorMarketValue)
	s.DayChangePercent = Change(s.DayChangeAmount, s.PriorMarketValue)

	s.Excluded = append(slices.Clone(today.Excluded), before.Excluded...)
	slices.Sort(s.Excluded)
	s.Excluded = slices.Compact(s.Excluded)
	if s.Excluded == nil {
		s.Excluded = []string{}
	}
	return s
}

// CashBalance returns the cash of portfolio at asOf in the base currency.
// A zero asOf means today.
func (e *Engine) CashBalance(ctx context.Context, portfolio string, asOf Date) (Money, error) {
	if asOf.IsZero() {
		asOf = Today()
	}
	var res Money
	err := e.pinned(ctx, portfolio, func(ctx context.Context, p Portfolio, version int64) (err error) {
		res, err = e.cashBalanceAt(ctx, p, version, asOf)
		return err
	})
	return res, err
}

// AccountCashBalance returns the cash of account at asOf, in the account
// currency. A zero asOf means today.
func (e *Engine) AccountCashBalance(ctx context.Context, account string, asOf Date) (Money, error) {
	if asOf.IsZero() {
		asOf = Today()
	}
	acc, err := e.store.Account(ctx, account)
	if err != nil {
		return Money{}, fmt.Errorf("account %q: %w", account, err)
	}
	var res Money
	err = e.pinned(ctx, acc.Portfolio, func(ctx context.Context, p Portfolio, version int64) (err error) {
		res, err = e.accountBalanceAt(ctx, acc, version, asOf)
		return err
	})
	return res, err
}

func (e *Engine) cashBalanceAt(ctx context.Context, p Portfolio, version int64, asOf Date) (Money, error) {
	cash, err := e.cashAt(ctx, p.ID, version, Date{}, asOf)
	if err != nil {
		return Money{}, err
	}
	return e.balance(ctx, cash, p.BaseCurrency, asOf)
}

func (e *Engine) accountBalanceAt(ctx context.Context, acc Account, version int64, asOf Date) (Money, error) {
	cash, err := e.cashAt(ctx, acc.Portfolio, version, Date{}, asOf)
	if err != nil {
		return Money{}, err
	}
	cash = slices.DeleteFunc(cash, func(c CashTransaction) bool { return c.Account != acc.ID })
	return e.balance(ctx, cash, acc.Currency, asOf)
}

// balance sums the net cash effects per currency and converts every
// currency into currency at the rate of asOf. A missing rate fails with
// ErrFXUnavailable.
func (e *Engine) balance(ctx context.Context, cash []CashTransaction, currency string, asOf Date) (Money, error) {
	balances := make(map[string]Money)
	for _, c := range cash {
		balances[c.Currency] = M(0, c.Currency).Add(balances[c.Currency]).Add(c.Net())
	}
	currencies := make([]string, 0, len(balances))
	for cur, b := range balances {
		if !b.IsZero() {
			currencies = append(currencies, cur)
		}
	}
	slices.Sort(currencies)

	total := M(0, currency)
	for _, cur := range currencies {
		r, ok, err := rate(ctx, e.store, cur, currency, asOf)
		if err != nil {
			return Money{}, err
		}
		if !ok {
			return Money{}, fmt.Errorf("cash balance in %s on %s: %w", cur, asOf, ErrFXUnavailable)
		}
		total = total.Add(balances[cur].Convert(r, currency))
	}
	return total, nil
}
