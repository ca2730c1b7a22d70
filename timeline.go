package portfolio

import (
	"cmp"
	"slices"
)

// eventKind orders events sharing a date: corporate actions apply before
// the day's trades.
type eventKind int

const (
	splitEvent eventKind = iota
	stockDividendEvent
	tradeEvent
)

// event is one entry of an asset timeline. Exactly one of trade, dividend
// and split is set.
type event struct {
	date     Date
	kind     eventKind
	seq      int64
	id       string
	trade    *Trade
	dividend *CashTransaction
	split    *Split
}

func compareEvents(a, b event) int {
	if c := a.date.Compare(b.date); c != 0 {
		return c
	}
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.seq, b.seq); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// timeline returns the events changing the position in asset, dated on or
// before asOf (all of them when asOf is zero), in replay order.
func timeline(asset string, trades []Trade, cash []CashTransaction, splits []Split, asOf Date) []event {
	included := func(d Date) bool { return asOf.IsZero() || !d.After(asOf) }

	var events []event
	for i := range trades {
		t := &trades[i]
		if t.Asset == asset && included(t.Date) {
			events = append(events, event{date: t.Date, kind: tradeEvent, seq: t.Seq, id: t.ID, trade: t})
		}
	}
	for i := range cash {
		c := &cash[i]
		if c.Asset == asset && c.isStockDividend() && included(c.Date) {
			events = append(events, event{date: c.Date, kind: stockDividendEvent, seq: c.Seq, id: c.ID, dividend: c})
		}
	}
	for i := range splits {
		s := &splits[i]
		if s.Asset == asset && included(s.Date) {
			events = append(events, event{date: s.Date, kind: splitEvent, seq: s.Seq, id: s.ID, split: s})
		}
	}
	slices.SortStableFunc(events, compareEvents)
	return events
}

// heldAssets returns the ids of the assets touched by the ledger, sorted.
func heldAssets(trades []Trade, cash []CashTransaction) []string {
	var ids []string
	for _, t := range trades {
		ids = append(ids, t.Asset)
	}
	for _, c := range cash {
		if c.isStockDividend() {
			ids = append(ids, c.Asset)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
