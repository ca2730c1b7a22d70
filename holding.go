package portfolio

import "github.com/shopspring/decimal"

// Realization is the outcome of one SELL.
type Realization struct {
	TradeID  string           `json:"trade_id"`
	Date     Date             `json:"date"`
	Quantity Quantity         `json:"quantity"`
	Proceeds Money            `json:"proceeds"`  // quantity × price
	Cost     Money            `json:"cost"`      // cost basis of the shares sold
	Expenses Money            `json:"expenses"`  // fee + tax of the sell
	Realized Money            `json:"realized"`  // proceeds − cost − expenses
	FXRate   *decimal.Decimal `json:"fx_rate,omitempty"`
}

// Holding is the position in one asset after replaying its timeline.
type Holding struct {
	Asset        string
	Currency     string
	Method       CostMethod
	Shares       Quantity
	AvgCost      Money
	CostBasis    Money
	Lots         []Lot // FIFO only
	Realized     Money // cumulative
	Realizations []Realization
}

// replayFunc folds an asset timeline into a Holding. Implementations are pure.
type replayFunc func(asset, currency string, events []event) (Holding, error)

// Replay derives the holding in asset from the ledger, using only the
// records dated on or before asOf (all of them when asOf is zero).
func Replay(method CostMethod, asset Asset, trades []Trade, cash []CashTransaction, splits []Split, asOf Date) (Holding, error) {
	return method.replay()(asset.ID, asset.Currency, timeline(asset.ID, trades, cash, splits, asOf))
}

// replayAll derives the holding of every asset touched by the ledger.
func replayAll(method CostMethod, assets map[string]Asset, trades []Trade, cash []CashTransaction, splits []Split, asOf Date) (map[string]Holding, error) {
	res := make(map[string]Holding)
	for _, id := range heldAssets(trades, cash) {
		a, ok := assets[id]
		if !ok {
			a = Asset{ID: id}
		}
		h, err := Replay(method, a, trades, cash, splits, asOf)
		if err != nil {
			return nil, err
		}
		res[id] = h
	}
	return res, nil
}

func insufficient(asset string, t *Trade, available Quantity) error {
	return &InsufficientHoldingsError{Asset: asset, Date: t.Date, Requested: t.Quantity, Available: available}
}

// replayAverage implements the average cost method.
//
// The cost basis is tracked as a total so that it is conserved across sells;
// the average is only recomputed when shares are added.
func replayAverage(asset, currency string, events []event) (Holding, error) {
	h := Holding{Asset: asset, Currency: currency, Method: AverageCost}
	zero := M(0, currency)
	h.AvgCost, h.CostBasis, h.Realized = zero, zero, zero

	for _, e := range events {
		switch {
		case e.trade != nil && e.trade.Side == Buy:
			t := e.trade
			h.CostBasis = h.CostBasis.Add(t.Gross(currency)).Add(t.Costs(currency))
			h.Shares = h.Shares.Add(t.Quantity)
			h.AvgCost = h.CostBasis.Div(h.Shares)

		case e.trade != nil:
			t := e.trade
			if h.Shares.LessThan(t.Quantity) {
				return Holding{}, insufficient(asset, t, h.Shares)
			}
			price := M(t.Price, currency)
			r := Realization{
				TradeID:  t.ID,
				Date:     t.Date,
				Quantity: t.Quantity,
				Proceeds: t.Gross(currency),
				Cost:     h.AvgCost.Mul(t.Quantity),
				Expenses: t.Costs(currency),
				FXRate:   t.FXRate,
			}
			r.Realized = price.Sub(h.AvgCost).Mul(t.Quantity).Sub(r.Expenses)
			h.Realizations = append(h.Realizations, r)
			h.Realized = h.Realized.Add(r.Realized)

			h.Shares = h.Shares.Sub(t.Quantity)
			h.CostBasis = h.CostBasis.Sub(r.Cost)
			if h.Shares.IsZero() {
				h.AvgCost, h.CostBasis = zero, zero
			}

		case e.dividend != nil:
			h.Shares = h.Shares.Add(*e.dividend.Shares)
			h.AvgCost = h.CostBasis.Div(h.Shares)

		case e.split != nil:
			if h.Shares.IsZero() {
				continue
			}
			h.Shares = h.Shares.Mul(Q(e.split.Numerator)).Div(Q(e.split.Denominator))
			h.AvgCost = h.CostBasis.Div(h.Shares)
		}
	}
	return h, nil
}

// replayFIFO implements the first-in first-out cost method.
func replayFIFO(asset, currency string, events []event) (Holding, error) {
	h := Holding{Asset: asset, Currency: currency, Method: FIFO}
	h.Realized = M(0, currency)
	var open lots

	for _, e := range events {
		switch {
		case e.trade != nil && e.trade.Side == Buy:
			t := e.trade
			open = append(open, Lot{Date: t.Date, Quantity: t.Quantity, Cost: t.Gross(currency).Add(t.Costs(currency))})

		case e.trade != nil:
			t := e.trade
			if held, _ := open.total(); held.LessThan(t.Quantity) {
				return Holding{}, insufficient(asset, t, held)
			}
			price := M(t.Price, currency)
			expenses := t.Costs(currency)
			var consumed lots
			open, consumed = open.consume(t.Quantity)

			r := Realization{
				TradeID:  t.ID,
				Date:     t.Date,
				Quantity: t.Quantity,
				Proceeds: t.Gross(currency),
				Cost:     M(0, currency),
				Expenses: expenses,
				Realized: M(0, currency),
				FXRate:   t.FXRate,
			}
			for _, slice := range consumed {
				r.Cost = r.Cost.Add(slice.Cost)
				gain := price.Mul(slice.Quantity).Sub(slice.Cost).Sub(expenses.Mul(slice.Quantity).Div(t.Quantity))
				r.Realized = r.Realized.Add(gain)
			}
			h.Realizations = append(h.Realizations, r)
			h.Realized = h.Realized.Add(r.Realized)

		case e.dividend != nil:
			open = append(open, Lot{Date: e.dividend.Date, Quantity: *e.dividend.Shares, Cost: M(0, currency)})

		case e.split != nil:
			open = open.split(e.split.Numerator, e.split.Denominator)
		}
	}

	h.Lots = open
	h.Shares, h.CostBasis = open.total()
	h.CostBasis = M(0, currency).Add(h.CostBasis)
	h.AvgCost = M(0, currency)
	if h.Shares.IsPositive() {
		h.AvgCost = h.CostBasis.Div(h.Shares)
	}
	return h, nil
}
