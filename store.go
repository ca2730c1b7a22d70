package portfolio

import (
	"context"
	"math"

	"github.com/shopspring/decimal"
)

// Latest is the AtVersion reading every record.
const Latest int64 = math.MaxInt64

// TradeQuery selects trades of a portfolio.
type TradeQuery struct {
	Portfolio string
	Asset     string // optional
	AsOf      Date   // optional, inclusive
	AtVersion int64  // records with Seq > AtVersion are ignored
}

// CashQuery selects cash transactions of a portfolio.
type CashQuery struct {
	Portfolio string
	From, To  Date  // optional, inclusive
	AtVersion int64
}

// SplitQuery selects splits of a portfolio.
type SplitQuery struct {
	Portfolio string
	Asset     string // optional
	AsOf      Date   // optional, inclusive
	AtVersion int64
}

// Ledger is the append-only, versioned store of trades, cash transactions
// and splits.
//
// Every append takes the portfolio version the caller validated against and
// fails with ErrVersionConflict when the portfolio has moved since. A
// successful append assigns Seq = expectedVersion+1 to the records it writes.
//
// Every list returns its records ordered by date then Seq, and the
// watermark: the portfolio version the read observed. A watermark lower than
// AtVersion means the read was served by a lagging snapshot.
type Ledger interface {
	Version(ctx context.Context, portfolio string) (int64, error)

	// AppendTrade appends t, and linked when not nil, atomically.
	AppendTrade(ctx context.Context, t Trade, linked *CashTransaction, expectedVersion int64) (Trade, error)
	AppendCashTransaction(ctx context.Context, c CashTransaction, expectedVersion int64) (CashTransaction, error)
	AppendSplit(ctx context.Context, s Split, expectedVersion int64) (Split, error)

	ListTrades(ctx context.Context, q TradeQuery) (trades []Trade, watermark int64, err error)
	ListCashTransactions(ctx context.Context, q CashQuery) (cash []CashTransaction, watermark int64, err error)
	ListSplits(ctx context.Context, q SplitQuery) (splits []Split, watermark int64, err error)
}

// Catalog stores portfolios, accounts and assets.
type Catalog interface {
	CreatePortfolio(ctx context.Context, p Portfolio) (Portfolio, error)
	Portfolio(ctx context.Context, id string) (Portfolio, error)
	Portfolios(ctx context.Context) ([]Portfolio, error)

	CreateAccount(ctx context.Context, a Account) (Account, error)
	Account(ctx context.Context, id string) (Account, error)
	Accounts(ctx context.Context, portfolio string) ([]Account, error)

	// PutAsset creates a when its ID is empty and updates it otherwise.
	// The symbol of an asset referenced by a trade cannot change.
	PutAsset(ctx context.Context, a Asset) (Asset, error)
	Asset(ctx context.Context, id string) (Asset, error)
	AssetBySymbol(ctx context.Context, symbol, exchange string) (Asset, error)
	Assets(ctx context.Context) ([]Asset, error)
}

// PriceSource provides the last known price of an asset, in the asset
// currency, on or before a date. ok is false when no price is known.
type PriceSource interface {
	Price(ctx context.Context, asset string, on Date) (price decimal.Decimal, ok bool, err error)
}

// FXSource provides the exchange rate from one currency to another on or
// before a date: one unit of from is worth rate units of to.
type FXSource interface {
	Rate(ctx context.Context, from, to string, on Date) (rate decimal.Decimal, ok bool, err error)
}

// Quote is an external price observation.
type Quote struct {
	Asset string          `json:"asset_id"`
	Date  Date            `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// FXRate is an external exchange rate observation.
type FXRate struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Date Date            `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// MarketData records external prices and rates.
type MarketData interface {
	PutPrice(ctx context.Context, q Quote) error
	PutFXRate(ctx context.Context, r FXRate) error
}

// Store is everything the engine needs from persistence.
type Store interface {
	Ledger
	Catalog
	PriceSource
	FXSource
	MarketData
}
