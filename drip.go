package portfolio

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// dripPlaces is the precision of reinvested share quantities.
const dripPlaces = 6

// dripNote tags the BUY reinvesting the cash dividend id.
func dripNote(dividend string) string { return "DRIP of " + dividend }

// AppendDRIP reinvests the cash dividends of asset paid on date into BUYs at
// the last price on or before date. Every BUY is appended with its
// TRADE_EXPENSE under one version.
//
// The net dividend, converted into the asset currency, buys shares down to
// dripPlaces decimals and the remainder stays in cash. A dividend is
// reinvested at most once. The account must hold the cost of the BUY on
// date, or AppendDRIP fails with an *InsufficientCashError.
func (e *Engine) AppendDRIP(ctx context.Context, portfolio, asset string, date Date) ([]Trade, error) {
	if date.IsZero() {
		return nil, invalid("date", "is required")
	}
	p, err := e.store.Portfolio(ctx, portfolio)
	if err != nil {
		return nil, fmt.Errorf("portfolio %q: %w", portfolio, err)
	}
	a, err := e.store.Asset(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", asset, err)
	}
	price, ok, err := e.store.Price(ctx, a.ID, date)
	if err != nil {
		return nil, fmt.Errorf("reading price of %s on %s: %w", a.Ticker(), date, err)
	}
	if !ok || !price.IsPositive() {
		return nil, fmt.Errorf("reinvesting in %s on %s: %w", a.Ticker(), date, ErrPriceUnavailable)
	}

	cash, _, err := e.store.ListCashTransactions(ctx, CashQuery{Portfolio: p.ID, From: date, To: date, AtVersion: Latest})
	if err != nil {
		return nil, fmt.Errorf("listing cash transactions: %w", err)
	}
	var created []Trade
	for _, div := range cash {
		if div.Type != DividendCash || div.Asset != a.ID || !div.Net().IsPositive() {
			continue
		}
		t, err := e.reinvest(ctx, p, a, div, price)
		if err != nil {
			return created, fmt.Errorf("reinvesting dividend %s: %w", div.ID, err)
		}
		if t != nil {
			created = append(created, *t)
		}
	}
	return created, nil
}

// reinvest appends the BUY of a at price paid by div, unless div was
// already reinvested. It returns nil when nothing was appended.
func (e *Engine) reinvest(ctx context.Context, p Portfolio, a Asset, div CashTransaction, price decimal.Decimal) (*Trade, error) {
	acc, err := e.account(ctx, p.ID, div.Account)
	if err != nil {
		return nil, err
	}
	r, ok, err := rate(ctx, e.store, div.Currency, a.Currency, div.Date)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s/%s on %s: %w", div.Currency, a.Currency, div.Date, ErrFXUnavailable)
	}
	shares := div.Net().Convert(r, a.Currency).Decimal().Div(price).Truncate(dripPlaces)
	if !shares.IsPositive() {
		return nil, nil
	}
	t := Trade{
		Portfolio: p.ID,
		Account:   acc.ID,
		Asset:     a.ID,
		Date:      div.Date,
		Side:      Buy,
		Quantity:  Q(shares),
		Price:     price,
		Note:      dripNote(div.ID),
	}
	sr, err := e.settlementRate(ctx, t, a.Currency, acc.Currency, p.BaseCurrency)
	if err != nil {
		return nil, err
	}
	linked := t.SettlementCash(a.Currency, acc.Currency, sr)

	var res *Trade
	err = e.retryAppend(ctx, p.ID, func(version int64) error {
		res = nil
		done, err := e.reinvested(ctx, p.ID, div, version)
		if err != nil || done {
			return err
		}
		if linked != nil {
			available, err := e.accountBalanceAt(ctx, acc, version, div.Date)
			if err != nil {
				return err
			}
			if cost := M(linked.Amount.Neg(), acc.Currency); available.LessThan(cost) {
				return &InsufficientCashError{Account: acc.ID, Date: div.Date, Requested: cost, Available: available}
			}
		}
		appended, err := e.store.AppendTrade(ctx, t, linked, version)
		if err != nil {
			return err
		}
		res = &appended
		return nil
	})
	if err != nil || res == nil {
		return nil, err
	}
	e.appended(p.ID, res.Date, res.Seq, "trade", res.ID)
	return res, nil
}

// reinvested reports whether a BUY reinvesting div is recorded at version.
func (e *Engine) reinvested(ctx context.Context, portfolio string, div CashTransaction, version int64) (bool, error) {
	trades, _, err := e.store.ListTrades(ctx, TradeQuery{Portfolio: portfolio, Asset: div.Asset, AsOf: div.Date, AtVersion: version})
	if err != nil {
		return false, fmt.Errorf("listing trades: %w", err)
	}
	note := dripNote(div.ID)
	return slices.ContainsFunc(trades, func(t Trade) bool { return t.Note == note }), nil
}
