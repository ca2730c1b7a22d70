package portfolio

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// CashType is the kind of a cash movement.
type CashType string

const (
	Deposit       CashType = "DEPOSIT"
	Withdraw      CashType = "WITHDRAW"
	DividendCash  CashType = "DIVIDEND_CASH"
	DividendStock CashType = "DIVIDEND_STOCK"
	Reward        CashType = "REWARD"
	Interest      CashType = "INTEREST"
	FeeRebate     CashType = "FEE_REBATE"
	TaxRefund     CashType = "TAX_REFUND"
	TradeExpense  CashType = "TRADE_EXPENSE"
	TradeProceeds CashType = "TRADE_PROCEEDS"
	Other         CashType = "OTHER"
)

// CashTypes lists every cash type.
var CashTypes = []CashType{Deposit, Withdraw, DividendCash, DividendStock, Reward, Interest, FeeRebate, TaxRefund, TradeExpense, TradeProceeds, Other}

// IncomeTypes lists the cash types counted as income, in reporting order.
var IncomeTypes = []CashType{DividendCash, DividendStock, Reward, Interest, FeeRebate, TaxRefund}

// ParseCashType parses a cash type name in any case.
func ParseCashType(s string) (CashType, error) {
	t := CashType(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(CashTypes, t) {
		return "", invalid("type", "unknown cash transaction type %q", s)
	}
	return t, nil
}

// IsIncome reports whether t counts toward income.
func (t CashType) IsIncome() bool { return slices.Contains(IncomeTypes, t) }

// IsInvested reports whether t counts toward invested cashflow.
func (t CashType) IsInvested() bool {
	return t == Deposit || t == Withdraw || t == TradeExpense
}

// checkSign validates the sign of amount against the direction of t.
func (t CashType) checkSign(amount decimal.Decimal) error {
	switch t {
	case Deposit, DividendCash, Reward, Interest, FeeRebate, TaxRefund, TradeProceeds:
		if !amount.IsPositive() {
			return invalid("amount", "%s must be positive, got %s", t, amount)
		}
	case Withdraw, TradeExpense:
		if !amount.IsNegative() {
			return invalid("amount", "%s must be negative, got %s", t, amount)
		}
	case DividendStock:
		if amount.IsNegative() {
			return invalid("amount", "%s must not be negative, got %s", t, amount)
		}
	case Other:
		if amount.IsZero() {
			return invalid("amount", "%s must not be zero", t)
		}
	default:
		return invalid("type", "unknown cash transaction type %q", t)
	}
	return nil
}

// CashTransaction is a movement of cash in an account.
//
// Amount is signed: inflows are positive and outflows negative.
// A DIVIDEND_STOCK with Shares adds those shares of Asset at zero cost.
type CashTransaction struct {
	ID             string          `json:"id"`
	Seq            int64           `json:"seq"`
	Portfolio      string          `json:"portfolio_id"`
	Account        string          `json:"account_id"`
	Asset          string          `json:"asset_id,omitempty"`
	TradeID        string          `json:"trade_id,omitempty"`
	Date           Date            `json:"date"`
	Type           CashType        `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	WithholdingTax decimal.Decimal `json:"withholding_tax"`
	Shares         *Quantity       `json:"shares,omitempty"`
	Currency       string          `json:"currency"`
	Note           string          `json:"note,omitempty"`
}

// Validate checks the transaction fields that do not depend on the ledger.
func (c CashTransaction) Validate() error {
	switch {
	case c.Portfolio == "":
		return invalid("portfolio_id", "is required")
	case c.Account == "":
		return invalid("account_id", "is required")
	case c.Date.IsZero():
		return invalid("date", "is required")
	case !ValidCurrency(c.Currency):
		return invalid("currency", "unknown currency %q", c.Currency)
	case c.WithholdingTax.IsNegative():
		return invalid("withholding_tax", "must not be negative, got %s", c.WithholdingTax)
	}
	if err := c.Type.checkSign(c.Amount); err != nil {
		return err
	}
	if c.Type.IsIncome() && c.WithholdingTax.GreaterThan(c.Amount) {
		return invalid("withholding_tax", "%s exceeds the amount %s", c.WithholdingTax, c.Amount)
	}
	if c.Shares != nil {
		if c.Type != DividendStock {
			return invalid("shares", "only allowed on %s", DividendStock)
		}
		if !c.Shares.IsPositive() {
			return invalid("shares", "must be positive, got %s", c.Shares)
		}
		if c.Asset == "" {
			return invalid("asset_id", "is required when shares are distributed")
		}
	}
	return nil
}

// Net returns the cash effect of the transaction: amount less withholding tax.
func (c CashTransaction) Net() Money {
	return M(c.Amount.Sub(c.WithholdingTax), c.Currency)
}

// isStockDividend reports whether c changes the share count of its asset.
func (c CashTransaction) isStockDividend() bool {
	return c.Type == DividendStock && c.Shares != nil && c.Asset != ""
}
