package portfolio

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// PnLSummary is the performance of a portfolio over a date range, in the
// base currency.
type PnLSummary struct {
	Portfolio string `json:"portfolio_id"`
	Currency  string `json:"currency"`
	From      Date   `json:"from"`
	To        Date   `json:"to"`
	AsOf      Date   `json:"as_of"`
	Version   int64  `json:"version"`

	Realized         Money              `json:"realized_pnl"`
	Income           Money              `json:"income_total"`
	IncomeByType     map[CashType]Money `json:"income_breakdown"`
	UnrealizedFrom   Money              `json:"unrealized_pnl_from"`
	UnrealizedTo     Money              `json:"unrealized_pnl_to"`
	PriceReturn      Money              `json:"price_return"`
	TotalReturn      Money              `json:"total_return"`
	InvestedCashflow Money              `json:"invested_cashflow"`
	Excluded         []string           `json:"excluded_assets"`
}

// Reconcile checks that the total return is the sum of its components,
// within one minor unit of the base currency.
func (s PnLSummary) Reconcile() error {
	sum := s.Realized.Add(s.Income).Add(s.UnrealizedTo.Sub(s.UnrealizedFrom))
	if !s.TotalReturn.WithinMinorUnit(sum) {
		return fmt.Errorf("%w: total return %s, components sum to %s", ErrNotReconciled, s.TotalReturn, sum)
	}
	return nil
}

// pnlInput is everything summarize needs, read at one ledger version.
type pnlInput struct {
	portfolio Portfolio
	rng       Range
	asOf      Date
	holdings  map[string]Holding // at rng.To
	cash      []CashTransaction  // dated in rng
	valueFrom Valuation
	valueTo   Valuation
}

// summarize builds the PnLSummary of in. Amounts in a foreign currency are
// converted with the rate of the day they happened.
func summarize(ctx context.Context, in pnlInput, fx FXSource) (PnLSummary, error) {
	base := in.portfolio.BaseCurrency
	s := PnLSummary{
		Portfolio:        in.portfolio.ID,
		Currency:         base,
		From:             in.rng.From,
		To:               in.rng.To,
		AsOf:             in.asOf,
		Realized:         M(0, base),
		Income:           M(0, base),
		IncomeByType:     make(map[CashType]Money, len(IncomeTypes)),
		InvestedCashflow: M(0, base),
		UnrealizedFrom:   in.valueFrom.Unrealized,
		UnrealizedTo:     in.valueTo.Unrealized,
	}
	for _, t := range IncomeTypes {
		s.IncomeByType[t] = M(0, base)
	}

	toBase := func(m Money, on Date) (Money, error) {
		r, ok, err := rate(ctx, fx, m.Currency(), base, on)
		if err != nil {
			return Money{}, err
		}
		if !ok {
			return Money{}, fmt.Errorf("converting %s to %s on %s: %w", m.Currency(), base, on, ErrFXUnavailable)
		}
		return m.Convert(r, base), nil
	}

	for _, h := range in.holdings {
		for _, r := range h.Realizations {
			if !in.rng.Contains(r.Date) {
				continue
			}
			var realized Money
			if r.FXRate != nil && !strings.EqualFold(r.Realized.Currency(), base) {
				realized = r.Realized.Convert(*r.FXRate, base)
			} else {
				var err error
				if realized, err = toBase(r.Realized, r.Date); err != nil {
					return PnLSummary{}, fmt.Errorf("realized pnl of trade %s: %w", r.TradeID, err)
				}
			}
			s.Realized = s.Realized.Add(realized)
		}
	}

	for _, c := range in.cash {
		if !in.rng.Contains(c.Date) {
			continue
		}
		switch {
		case c.Type.IsIncome():
			net, err := toBase(c.Net(), c.Date)
			if err != nil {
				return PnLSummary{}, fmt.Errorf("income %s: %w", c.ID, err)
			}
			s.Income = s.Income.Add(net)
			s.IncomeByType[c.Type] = s.IncomeByType[c.Type].Add(net)
		case c.Type.IsInvested():
			net, err := toBase(c.Net(), c.Date)
			if err != nil {
				return PnLSummary{}, fmt.Errorf("cashflow %s: %w", c.ID, err)
			}
			s.InvestedCashflow = s.InvestedCashflow.Add(net)
		}
	}

	s.PriceReturn = s.UnrealizedTo.Sub(s.UnrealizedFrom)
	s.TotalReturn = s.Realized.Add(s.Income).Add(s.PriceReturn)

	s.Excluded = append(slices.Clone(in.valueTo.Excluded), in.valueFrom.Excluded...)
	slices.Sort(s.Excluded)
	s.Excluded = slices.Compact(s.Excluded)
	if s.Excluded == nil {
		s.Excluded = []string{}
	}

	if err := s.Reconcile(); err != nil {
		return PnLSummary{}, err
	}
	return s, nil
}

// PnLSummary returns the performance of a portfolio between from and to,
// ignoring every record dated after asOf. A zero asOf means today.
//
// to is clamped to asOf. The unrealized pnl at from is the one of the
// positions held at the end of that day.
func (e *Engine) PnLSummary(ctx context.Context, portfolio string, from, to, asOf Date) (PnLSummary, error) {
	if asOf.IsZero() {
		asOf = Today()
	}
	var res PnLSummary
	err := e.pinned(ctx, portfolio, func(ctx context.Context, p Portfolio, version int64) (err error) {
		res, err = e.pnlAt(ctx, p, version, from, to, asOf)
		return err
	})
	return res, err
}

func (e *Engine) pnlAt(ctx context.Context, p Portfolio, version int64, from, to, asOf Date) (PnLSummary, error) {
	rng, err := reportRange(from, to, asOf)
	if err != nil {
		return PnLSummary{}, err
	}
	from, to = rng.From, rng.To
	in := pnlInput{portfolio: p, rng: rng, asOf: asOf}

	if in.holdings, err = e.holdings(ctx, p, version, to); err != nil {
		return PnLSummary{}, err
	}
	if in.valueTo, err = e.valuationAt(ctx, p, version, to); err != nil {
		return PnLSummary{}, err
	}
	if in.valueFrom, err = e.valuationAt(ctx, p, version, from); err != nil {
		return PnLSummary{}, err
	}
	if in.cash, err = e.cashAt(ctx, p.ID, version, from, to); err != nil {
		return PnLSummary{}, err
	}

	s, err := summarize(ctx, in, e.store)
	if err != nil {
		return PnLSummary{}, err
	}
	s.Version = version
	return s, nil
}
