package portfolio

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide parses "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch side := Side(strings.ToUpper(strings.TrimSpace(s))); side {
	case Buy, Sell:
		return side, nil
	default:
		return "", invalid("side", "must be BUY or SELL, got %q", s)
	}
}

// Trade is one executed buy or sell of an asset.
//
// Price, Fee and Tax are expressed in the asset currency. FXRate, when set,
// is the asset to base currency rate that applied at execution.
type Trade struct {
	ID        string           `json:"id"`
	Seq       int64            `json:"seq"`
	Portfolio string           `json:"portfolio_id"`
	Account   string           `json:"account_id"`
	Asset     string           `json:"asset_id"`
	Date      Date             `json:"date"`
	Side      Side             `json:"side"`
	Quantity  Quantity         `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	Fee       decimal.Decimal  `json:"fee"`
	Tax       decimal.Decimal  `json:"tax"`
	FXRate    *decimal.Decimal `json:"fx_rate,omitempty"`
	Note      string           `json:"note,omitempty"`
}

// Validate checks the trade fields that do not depend on the ledger.
func (t Trade) Validate() error {
	switch {
	case t.Portfolio == "":
		return invalid("portfolio_id", "is required")
	case t.Account == "":
		return invalid("account_id", "is required")
	case t.Asset == "":
		return invalid("asset_id", "is required")
	case t.Date.IsZero():
		return invalid("date", "is required")
	case t.Side != Buy && t.Side != Sell:
		return invalid("side", "must be BUY or SELL, got %q", t.Side)
	case !t.Quantity.IsPositive():
		return invalid("quantity", "must be positive, got %s", t.Quantity)
	case t.Price.IsNegative():
		return invalid("price", "must not be negative, got %s", t.Price)
	case t.Fee.IsNegative():
		return invalid("fee", "must not be negative, got %s", t.Fee)
	case t.Tax.IsNegative():
		return invalid("tax", "must not be negative, got %s", t.Tax)
	case t.FXRate != nil && !t.FXRate.IsPositive():
		return invalid("fx_rate", "must be positive, got %s", t.FXRate)
	}
	return nil
}

// Gross returns quantity × price, in currency.
func (t Trade) Gross(currency string) Money {
	return M(t.Price, currency).Mul(t.Quantity)
}

// Costs returns fee + tax, in currency.
func (t Trade) Costs(currency string) Money {
	return M(t.Fee.Add(t.Tax), currency)
}

// SettlementCash returns the cash transaction settling t in the given account
// currency: a TRADE_EXPENSE of the gross amount plus costs for a BUY, a
// TRADE_PROCEEDS of the gross amount minus costs for a SELL.
//
// rate converts the asset currency into the account currency.
// It returns nil when a SELL nets to zero or less.
func (t Trade) SettlementCash(assetCurrency, accountCurrency string, rate decimal.Decimal) *CashTransaction {
	c := &CashTransaction{
		Portfolio: t.Portfolio,
		Account:   t.Account,
		Asset:     t.Asset,
		Date:      t.Date,
		Currency:  accountCurrency,
		TradeID:   t.ID,
	}
	switch t.Side {
	case Buy:
		c.Type = TradeExpense
		c.Amount = t.Gross(assetCurrency).Add(t.Costs(assetCurrency)).Convert(rate, accountCurrency).Neg().Decimal()
		if c.Amount.IsZero() {
			return nil
		}
	default:
		c.Type = TradeProceeds
		c.Amount = t.Gross(assetCurrency).Sub(t.Costs(assetCurrency)).Convert(rate, accountCurrency).Decimal()
		if !c.Amount.IsPositive() {
			return nil
		}
	}
	return c
}
