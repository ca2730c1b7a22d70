package cmd

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/renderer"
)

// decimalFlag is a flag.Value holding an optional decimal.
type decimalFlag struct {
	value decimal.Decimal
	set   bool
}

func (d *decimalFlag) String() string {
	if d == nil || !d.set {
		return ""
	}
	return d.value.String()
}

func (d *decimalFlag) Set(s string) error {
	v, err := parseDecimal(s)
	if err != nil {
		return err
	}
	d.value, d.set = v, true
	return nil
}

// parseDecimal parses s, with a dot or a comma as decimal separator.
func parseDecimal(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return decimal.Zero, usagef("invalid number %q", s)
	}
	return v, nil
}

// ledgerDate returns the date flag, today when empty.
func ledgerDate(value string) (portfolio.Date, error) {
	d, err := parseDate("d", value)
	if err != nil || !d.IsZero() {
		return d, err
	}
	return portfolio.Today(), nil
}

type tradeCmd struct {
	side    portfolio.Side
	date    string
	account string
	fee     decimalFlag
	tax     decimalFlag
	fx      decimalFlag
	note    string
}

func (c *tradeCmd) Name() string { return strings.ToLower(string(c.side)) }
func (c *tradeCmd) Synopsis() string {
	if c.side == portfolio.Sell {
		return "record the sale of an asset"
	}
	return "record the purchase of an asset"
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf(`pcs [-p <portfolio>] %[1]s [-d <date>] [-a <account>] [-fee <fee>] [-tax <tax>] [-fx <rate>] <asset> <quantity> <price>

  Records a %[1]s trade in the ledger and prints it.

  The asset is its id or its ticker, e.g. AAPL.NASDAQ. Price, fee and tax are
  in the asset currency. The trade settles in the account, which can be
  omitted when the portfolio has a single account, as a linked cash
  transaction.

  A sale is rejected when it would sell more shares than held on its date,
  or at any later date of the ledger.

  Example:
    pcs %[1]s -d 2024-01-02 -fee 1 AAPL.NASDAQ 10 150
`, c.Name())
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Trade date. Defaults to today.")
	f.StringVar(&c.account, "a", "", "Settlement account, id or name. Defaults to the only account.")
	f.Var(&c.fee, "fee", "Fees, in the asset currency")
	f.Var(&c.tax, "tax", "Taxes, in the asset currency")
	f.Var(&c.fx, "fx", "Asset to base currency rate applied at execution. Defaults to the recorded rate of the day.")
	f.StringVar(&c.note, "note", "", "Free text note")
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 3 {
			return usagef("%s takes an asset, a quantity and a price", c.Name())
		}
		on, err := ledgerDate(c.date)
		if err != nil {
			return err
		}
		quantity, err := parseDecimal(f.Arg(1))
		if err != nil {
			return err
		}
		price, err := parseDecimal(f.Arg(2))
		if err != nil {
			return err
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		acc, err := a.account(ctx, p, c.account)
		if err != nil {
			return err
		}
		asset, err := a.asset(ctx, f.Arg(0))
		if err != nil {
			return err
		}

		t := portfolio.Trade{
			Portfolio: p.ID,
			Account:   acc.ID,
			Asset:     asset.ID,
			Date:      on,
			Side:      c.side,
			Quantity:  portfolio.Q(quantity),
			Price:     price,
			Fee:       c.fee.value,
			Tax:       c.tax.value,
			Note:      c.note,
		}
		if c.fx.set {
			t.FXRate = &c.fx.value
		}
		t, err = a.engine.AppendTrade(ctx, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d %s: %s\n", t.Seq, t.Date, renderer.Trade(t, asset))
		return nil
	})
}

type cashCmd struct {
	date     string
	account  string
	kind     string
	currency string
	asset    string
	shares   decimalFlag
	tax      decimalFlag
	note     string
}

func (*cashCmd) Name() string     { return "cash" }
func (*cashCmd) Synopsis() string { return "record a cash movement" }
func (*cashCmd) Usage() string {
	return `pcs [-p <portfolio>] cash [-d <date>] [-a <account>] [-type <type>] [-c <currency>] [-asset <asset>] [-shares <shares>] [-tax <tax>] <amount>

  Records a cash movement in an account and prints it.

  Types are DEPOSIT, WITHDRAW, DIVIDEND_CASH, DIVIDEND_STOCK, REWARD,
  INTEREST, FEE_REBATE, TAX_REFUND, TRADE_EXPENSE, TRADE_PROCEEDS and OTHER.
  Outflow types accept a positive amount, recorded as negative.

  A dividend names the asset that paid it. A stock dividend distributes
  -shares of the asset at zero cost.

  Examples:
    pcs cash -d 2024-01-01 10000
    pcs cash -type withdraw 500
    pcs cash -type dividend_cash -asset AAPL.NASDAQ -tax 3.75 25
`
}

func (c *cashCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Transaction date. Defaults to today.")
	f.StringVar(&c.account, "a", "", "Account, id or name. Defaults to the only account.")
	f.StringVar(&c.kind, "type", "deposit", "Type of the movement")
	f.StringVar(&c.currency, "c", "", "Currency, 3-letter code. Defaults to the account currency.")
	f.StringVar(&c.asset, "asset", "", "Asset paying a dividend, id or ticker")
	f.Var(&c.shares, "shares", "Shares distributed by a stock dividend")
	f.Var(&c.tax, "tax", "Tax withheld from the amount")
	f.StringVar(&c.note, "note", "", "Free text note")
}

func (c *cashCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 1 {
			return usagef("cash takes exactly one amount")
		}
		on, err := ledgerDate(c.date)
		if err != nil {
			return err
		}
		kind, err := portfolio.ParseCashType(c.kind)
		if err != nil {
			return err
		}
		amount, err := parseDecimal(f.Arg(0))
		if err != nil {
			return err
		}
		if (kind == portfolio.Withdraw || kind == portfolio.TradeExpense) && amount.IsPositive() {
			amount = amount.Neg()
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		acc, err := a.account(ctx, p, c.account)
		if err != nil {
			return err
		}

		tx := portfolio.CashTransaction{
			Portfolio:      p.ID,
			Account:        acc.ID,
			Date:           on,
			Type:           kind,
			Amount:         amount,
			WithholdingTax: c.tax.value,
			Currency:       acc.Currency,
			Note:           c.note,
		}
		if c.currency != "" {
			tx.Currency = strings.ToUpper(c.currency)
		}
		if c.asset != "" {
			asset, err := a.asset(ctx, c.asset)
			if err != nil {
				return err
			}
			tx.Asset = asset.ID
		}
		if c.shares.set {
			shares := portfolio.Q(c.shares.value)
			tx.Shares = &shares
		}
		tx, err = a.engine.AppendCashTransaction(ctx, tx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d %s: %s\n", tx.Seq, tx.Date, renderer.Cash(tx))
		return nil
	})
}

type splitCmd struct {
	date string
}

func (*splitCmd) Name() string     { return "split" }
func (*splitCmd) Synopsis() string { return "record a share split" }
func (*splitCmd) Usage() string {
	return `pcs [-p <portfolio>] split [-d <date>] <asset> <numerator> <denominator>

  Records a split: every share of the asset held on date becomes
  numerator/denominator shares, at an unchanged cost basis. A reverse split
  has a numerator smaller than its denominator.

  Example:
    pcs split -d 2024-06-10 NVDA.NASDAQ 10 1
`
}

func (c *splitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Split date. Defaults to today.")
}

func (c *splitCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 3 {
			return usagef("split takes an asset, a numerator and a denominator")
		}
		on, err := ledgerDate(c.date)
		if err != nil {
			return err
		}
		num, err := strconv.ParseInt(f.Arg(1), 10, 64)
		if err != nil {
			return usagef("invalid numerator %q", f.Arg(1))
		}
		den, err := strconv.ParseInt(f.Arg(2), 10, 64)
		if err != nil {
			return usagef("invalid denominator %q", f.Arg(2))
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		asset, err := a.asset(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		sp, err := a.engine.AppendSplit(ctx, portfolio.Split{
			Portfolio:   p.ID,
			Asset:       asset.ID,
			Date:        on,
			Numerator:   num,
			Denominator: den,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d %s: %s split %d for %d\n", sp.Seq, sp.Date, asset.Ticker(), sp.Numerator, sp.Denominator)
		return nil
	})
}

type dripCmd struct {
	date string
}

func (*dripCmd) Name() string     { return "drip" }
func (*dripCmd) Synopsis() string { return "reinvest the cash dividends of an asset" }
func (*dripCmd) Usage() string {
	return `pcs [-p <portfolio>] drip [-d <date>] <asset>

  Reinvests the cash dividends the asset paid on date into the asset, at its
  latest price on or before date, and prints the purchases.

  The net dividend buys shares down to 6 decimals and the remainder stays in
  cash. A dividend is reinvested once: running drip again does nothing. The
  account paid must hold the cost of the purchase on date.

  Example:
    pcs drip -d 2024-05-16 AAPL.NASDAQ
`
}

func (c *dripCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Payment date of the dividends. Defaults to today.")
}

func (c *dripCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 1 {
			return usagef("drip takes exactly one asset")
		}
		on, err := ledgerDate(c.date)
		if err != nil {
			return err
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		asset, err := a.asset(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		trades, err := a.engine.AppendDRIP(ctx, p.ID, asset.ID, on)
		for _, t := range trades {
			fmt.Fprintf(stdout, "%d %s: %s\n", t.Seq, t.Date, renderer.Trade(t, asset))
		}
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			fmt.Fprintf(stdout, "No dividend of %s to reinvest on %s\n", asset.Ticker(), on)
		}
		return nil
	})
}
