package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/renderer"
)

type tradesCmd struct {
	asset string
	from  string
	date  string
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "print the ledger" }
func (*tradesCmd) Usage() string {
	return `pcs [-p <portfolio>] trades [-asset <asset>] [-from <date>] [-d <date>]

  Prints the trades and the cash movements of the portfolio, in ledger order.

  With -asset, only the trades of that asset are printed. Dates accept
  relative forms such as -1m or -7d.
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "asset", "", "Only print the trades of this asset")
	f.StringVar(&c.from, "from", "", "Print cash movements from this date")
	f.StringVar(&c.date, "d", "", "Print the ledger up to this date. Defaults to today.")
}

func (c *tradesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		from, err := parseDate("from", c.from)
		if err != nil {
			return err
		}
		on, err := parseDate("d", c.date)
		if err != nil {
			return err
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		var asset string
		if c.asset != "" {
			found, err := a.asset(ctx, c.asset)
			if err != nil {
				return err
			}
			asset = found.ID
		}
		trades, err := a.engine.ListTrades(ctx, p.ID, asset, on)
		if err != nil {
			return err
		}
		var cash []portfolio.CashTransaction
		if asset == "" {
			if cash, err = a.engine.ListCashTransactions(ctx, p.ID, from, on); err != nil {
				return err
			}
		}
		assets, err := a.assets(ctx)
		if err != nil {
			return err
		}
		printMarkdown(renderer.LedgerMarkdown(trades, cash, assets))
		return nil
	})
}

type positionsCmd struct {
	date string
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "print the open positions" }
func (*positionsCmd) Usage() string {
	return `pcs [-p <portfolio>] positions [-d <date>]

  Prints the open positions on date, valued at the latest known prices and
  converted into the base currency.

  Assets without a price or an exchange rate are listed apart and left out
  of the totals.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Valuation date. Defaults to today.")
}

func (c *positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		on, err := parseDate("d", c.date)
		if err != nil {
			return err
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		v, err := a.engine.Valuation(ctx, p.ID, on)
		if err != nil {
			return err
		}
		printMarkdown(renderer.RenderPositions(v))
		return nil
	})
}

type pnlCmd struct {
	from string
	to   string
	date string
}

func (*pnlCmd) Name() string     { return "pnl" }
func (*pnlCmd) Synopsis() string { return "print the performance over a period" }
func (*pnlCmd) Usage() string {
	return `pcs [-p <portfolio>] pnl [-from <date>] [-to <date>] [-d <date>]

  Prints the realized gains, the income and the price return between two
  dates, computed on the ledger as known on -d.

  The period defaults to the whole history of the portfolio. Dates accept
  relative forms, so "pcs pnl -from -1y" reports the last year.
`
}

func (c *pnlCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "Start of the period. Defaults to the inception.")
	f.StringVar(&c.to, "to", "", "End of the period. Defaults to -d.")
	f.StringVar(&c.date, "d", "", "Date the ledger is read at. Defaults to today.")
}

func (c *pnlCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		from, err := parseDate("from", c.from)
		if err != nil {
			return err
		}
		to, err := parseDate("to", c.to)
		if err != nil {
			return err
		}
		on, err := parseDate("d", c.date)
		if err != nil {
			return err
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		s, err := a.engine.PnLSummary(ctx, p.ID, from, to, on)
		if err != nil {
			return err
		}
		printMarkdown(renderer.RenderPnL(s))
		return nil
	})
}

type dashboardCmd struct {
	date  string
	prior string
}

func (*dashboardCmd) Name() string     { return "dashboard" }
func (*dashboardCmd) Synopsis() string { return "print the net worth and its day change" }
func (*dashboardCmd) Usage() string {
	return `pcs [-p <portfolio>] dashboard [-d <date>] [-prior <date>]

  Prints the net worth of the portfolio on date, its cash balance, its total
  gain, and the change of its market value since the prior date.

  The prior date defaults to the day before date.
`
}

func (c *dashboardCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Date of the dashboard. Defaults to today.")
	f.StringVar(&c.prior, "prior", "", "Date the change is computed from. Defaults to the day before.")
}

func (c *dashboardCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		on, err := parseDate("d", c.date)
		if err != nil {
			return err
		}
		prior, err := parseDate("prior", c.prior)
		if err != nil {
			return err
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		var stats portfolio.DashboardStats
		if prior.IsZero() {
			stats, err = a.engine.DashboardStats(ctx, p.ID, on)
		} else {
			if on.IsZero() {
				on = portfolio.Today()
			}
			stats, err = a.engine.DashboardBetween(ctx, p.ID, prior, on)
		}
		if err != nil {
			return err
		}
		printMarkdown(renderer.RenderDashboard(p.Name, stats))
		return nil
	})
}

type balanceCmd struct {
	date    string
	account string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print the cash balance of the accounts" }
func (*balanceCmd) Usage() string {
	return `pcs [-p <portfolio>] balance [-d <date>] [-a <account>]

  Prints the cash balance of every account of the portfolio on date, in the
  account currency.
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Date of the balance. Defaults to today.")
	f.StringVar(&c.account, "a", "", "Only print this account, id or name")
}

func (c *balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		on, err := parseDate("d", c.date)
		if err != nil {
			return err
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		accounts, err := a.engine.Accounts(ctx, p.ID)
		if err != nil {
			return err
		}
		if c.account != "" {
			acc, err := a.account(ctx, p, c.account)
			if err != nil {
				return err
			}
			accounts = []portfolio.Account{acc}
		}
		for _, acc := range accounts {
			balance, err := a.engine.AccountCashBalance(ctx, acc.ID, on)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s: %s\n", acc.Name, balance)
		}
		return nil
	})
}
