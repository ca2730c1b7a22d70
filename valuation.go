package portfolio

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// priceLookups bounds the concurrent price and rate lookups of one valuation.
const priceLookups = 8

// Position is an open holding valued at a date.
//
// The pointer fields are nil when the price (or, for a foreign asset, the
// exchange rate) is not available at that date.
type Position struct {
	Asset     string   `json:"asset_id"`
	Symbol    string   `json:"symbol"`
	Currency  string   `json:"currency"`
	Shares    Quantity `json:"shares"`
	AvgCost   Money    `json:"avg_cost"`
	CostBasis Money    `json:"cost_basis"`
	Realized  Money    `json:"realized_pnl"`

	LastPrice       *Money           `json:"last_price"`
	MarketValue     *Money           `json:"market_value"`
	Unrealized      *Money           `json:"unrealized_pnl"`
	FXRate          *decimal.Decimal `json:"fx_rate"`
	MarketValueBase *Money           `json:"market_value_base"`
	UnrealizedBase  *Money           `json:"unrealized_pnl_base"`
}

// Valued reports whether the position has a base currency market value.
func (p Position) Valued() bool { return p.MarketValueBase != nil }

// Valuation is the value of every open position of a portfolio at a date.
// Totals are in the base currency and only include valued positions.
type Valuation struct {
	AsOf        Date       `json:"as_of"`
	Version     int64      `json:"version"`
	Currency    string     `json:"currency"`
	Positions   []Position `json:"positions"`
	MarketValue Money      `json:"market_value"`
	CostBasis   Money      `json:"cost_basis"`
	Unrealized  Money      `json:"unrealized_pnl"`
	Excluded    []string   `json:"excluded_assets"`
}

// rate returns the rate converting from into to at on. Identical
// currencies convert at 1.
func rate(ctx context.Context, fx FXSource, from, to string, on Date) (decimal.Decimal, bool, error) {
	if strings.EqualFold(from, to) {
		return decimal.NewFromInt(1), true, nil
	}
	r, ok, err := fx.Rate(ctx, from, to, on)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("reading %s/%s rate on %s: %w", from, to, on, err)
	}
	return r, ok, nil
}

// valuate joins open holdings with the prices and rates at asOf.
func valuate(ctx context.Context, holdings map[string]Holding, assets map[string]Asset, base string, asOf Date, prices PriceSource, fx FXSource) (Valuation, error) {
	var open []Holding
	for _, h := range holdings {
		if h.Shares.IsPositive() {
			open = append(open, h)
		}
	}
	slices.SortFunc(open, func(a, b Holding) int { return strings.Compare(a.Asset, b.Asset) })

	positions := make([]Position, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(priceLookups)
	for i, h := range open {
		g.Go(func() error {
			p, err := value(gctx, h, assets[h.Asset], base, asOf, prices, fx)
			positions[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Valuation{}, err
	}

	v := Valuation{
		AsOf:        asOf,
		Currency:    base,
		Positions:   positions,
		MarketValue: M(0, base),
		CostBasis:   M(0, base),
		Unrealized:  M(0, base),
		Excluded:    []string{},
	}
	for _, p := range positions {
		if !p.Valued() {
			v.Excluded = append(v.Excluded, p.Asset)
			continue
		}
		v.MarketValue = v.MarketValue.Add(*p.MarketValueBase)
		v.Unrealized = v.Unrealized.Add(*p.UnrealizedBase)
		v.CostBasis = v.CostBasis.Add(p.CostBasis.Convert(*p.FXRate, base))
	}
	slices.SortFunc(v.Positions, func(a, b Position) int { return strings.Compare(a.Symbol, b.Symbol) })
	return v, nil
}

// value computes the derived fields of a single holding.
func value(ctx context.Context, h Holding, asset Asset, base string, asOf Date, prices PriceSource, fx FXSource) (Position, error) {
	p := Position{
		Asset:     h.Asset,
		Symbol:    asset.Ticker(),
		Currency:  h.Currency,
		Shares:    h.Shares,
		AvgCost:   h.AvgCost,
		CostBasis: h.CostBasis,
		Realized:  h.Realized,
	}
	price, ok, err := prices.Price(ctx, h.Asset, asOf)
	if err != nil {
		return p, fmt.Errorf("reading price of %s on %s: %w", p.Symbol, asOf, err)
	}
	if !ok {
		return p, nil
	}
	last := M(price, h.Currency)
	mv := last.Mul(h.Shares)
	unrealized := mv.Sub(h.CostBasis)
	p.LastPrice, p.MarketValue, p.Unrealized = &last, &mv, &unrealized

	r, ok, err := rate(ctx, fx, h.Currency, base, asOf)
	if err != nil || !ok {
		return p, err
	}
	mvBase := mv.Convert(r, base)
	unrealizedBase := mvBase.Sub(h.CostBasis.Convert(r, base))
	p.FXRate, p.MarketValueBase, p.UnrealizedBase = &r, &mvBase, &unrealizedBase
	return p, nil
}

// Valuation returns the valued open positions of a portfolio at asOf.
// A zero asOf means today.
func (e *Engine) Valuation(ctx context.Context, portfolio string, asOf Date) (Valuation, error) {
	if asOf.IsZero() {
		asOf = Today()
	}
	var res Valuation
	err := e.pinned(ctx, portfolio, func(ctx context.Context, p Portfolio, version int64) (err error) {
		res, err = e.valuationAt(ctx, p, version, asOf)
		return err
	})
	return res, err
}

// Positions returns the open positions of a portfolio at asOf.
func (e *Engine) Positions(ctx context.Context, portfolio string, asOf Date) ([]Position, error) {
	v, err := e.Valuation(ctx, portfolio, asOf)
	if err != nil {
		return nil, err
	}
	return v.Positions, nil
}

func (e *Engine) valuationAt(ctx context.Context, p Portfolio, version int64, asOf Date) (Valuation, error) {
	holdings, err := e.holdings(ctx, p, version, asOf)
	if err != nil {
		return Valuation{}, err
	}
	assets, err := e.assets(ctx)
	if err != nil {
		return Valuation{}, err
	}
	v, err := valuate(ctx, holdings, assets, p.BaseCurrency, asOf, e.store, e.store)
	if err != nil {
		return Valuation{}, err
	}
	v.Version = version
	return v, nil
}
