package portfolio

import "strings"

// Portfolio groups accounts and the ledger of trades, cash transactions and
// splits recorded in them.
//
// Version is the sequence number of the last ledger append. Every record
// appended carries the version it created as its Seq.
type Portfolio struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	BaseCurrency string     `json:"base_currency"`
	CostMethod   CostMethod `json:"cost_method"`
	Version      int64      `json:"version"`
}

func (p Portfolio) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return invalid("name", "is required")
	case !ValidCurrency(p.BaseCurrency):
		return invalid("base_currency", "unknown currency %q", p.BaseCurrency)
	case p.CostMethod != AverageCost && p.CostMethod != FIFO:
		return invalid("cost_method", "unknown cost method %d", p.CostMethod)
	}
	return nil
}

// Account is a brokerage or cash account of a portfolio.
// Its currency is the settlement currency of linked trade cash.
type Account struct {
	ID        string `json:"id"`
	Portfolio string `json:"portfolio_id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
}

func (a Account) Validate() error {
	switch {
	case a.Portfolio == "":
		return invalid("portfolio_id", "is required")
	case strings.TrimSpace(a.Name) == "":
		return invalid("name", "is required")
	case !ValidCurrency(a.Currency):
		return invalid("currency", "unknown currency %q", a.Currency)
	}
	return nil
}
