package renderer

import (
	"fmt"

	portfolio "github.com/etnz/portfolio-tracker"
)

// Trade renders a trade to a string.
func Trade(t portfolio.Trade, a portfolio.Asset) string {
	verb := "Bought"
	if t.Side == portfolio.Sell {
		verb = "Sold"
	}
	s := fmt.Sprintf("%s %s %s at %s", verb, t.Quantity, a.Ticker(), portfolio.M(t.Price, a.Currency))
	if costs := t.Costs(a.Currency); !costs.IsZero() {
		s += fmt.Sprintf(", costs %s", costs)
	}
	return s
}

// Cash renders a cash transaction to a string.
func Cash(c portfolio.CashTransaction) string {
	amount := portfolio.M(c.Amount, c.Currency)
	switch c.Type {
	case portfolio.Deposit:
		return fmt.Sprintf("Deposited %s", amount)
	case portfolio.Withdraw:
		return fmt.Sprintf("Withdrew %s", amount.Abs())
	case portfolio.TradeExpense:
		return fmt.Sprintf("Paid %s for a trade", amount.Abs())
	case portfolio.TradeProceeds:
		return fmt.Sprintf("Received %s from a trade", amount)
	case portfolio.DividendStock:
		if c.Shares != nil {
			return fmt.Sprintf("Stock dividend of %s shares", c.Shares)
		}
		return fmt.Sprintf("Stock dividend, %s in lieu", amount)
	case portfolio.DividendCash:
		if !c.WithholdingTax.IsZero() {
			return fmt.Sprintf("Dividend of %s, %s withheld", amount, portfolio.M(c.WithholdingTax, c.Currency))
		}
		return fmt.Sprintf("Dividend of %s", amount)
	default:
		return fmt.Sprintf("%s %s", c.Type, amount.SignedString())
	}
}
