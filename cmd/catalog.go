package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/renderer"
)

type newPortfolioCmd struct {
	currency string
	method   string
}

func (*newPortfolioCmd) Name() string     { return "new-portfolio" }
func (*newPortfolioCmd) Synopsis() string { return "create a portfolio" }
func (*newPortfolioCmd) Usage() string {
	return `pcs new-portfolio [-c <currency>] [-method <avg|fifo>] <name>

  Creates an empty portfolio and prints its id.

  Every report of the portfolio is expressed in its base currency. The cost
  method decides which lots a sale consumes: "avg" pools every lot at their
  average cost, "fifo" sells the oldest lots first.
`
}

func (c *newPortfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "EUR", "Base currency, 3-letter code")
	f.StringVar(&c.method, "method", "avg", "Cost method: avg or fifo")
}

func (c *newPortfolioCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 1 {
			return usagef("new-portfolio takes exactly one name")
		}
		method, err := portfolio.ParseCostMethod(c.method)
		if err != nil {
			return err
		}
		p, err := a.engine.CreatePortfolio(ctx, portfolio.Portfolio{
			Name:         f.Arg(0),
			BaseCurrency: strings.ToUpper(c.currency),
			CostMethod:   method,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, p.ID)
		return nil
	})
}

type newAccountCmd struct {
	currency string
}

func (*newAccountCmd) Name() string     { return "new-account" }
func (*newAccountCmd) Synopsis() string { return "open an account in a portfolio" }
func (*newAccountCmd) Usage() string {
	return `pcs [-p <portfolio>] new-account [-c <currency>] <name>

  Opens an account in the portfolio and prints its id.

  Trades settle in the account currency, which defaults to the portfolio base
  currency.
`
}

func (c *newAccountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currency, "c", "", "Account currency, 3-letter code. Defaults to the portfolio base currency.")
}

func (c *newAccountCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 1 {
			return usagef("new-account takes exactly one name")
		}
		p, err := a.portfolio(ctx)
		if err != nil {
			return err
		}
		currency := p.BaseCurrency
		if c.currency != "" {
			currency = strings.ToUpper(c.currency)
		}
		acc, err := a.engine.CreateAccount(ctx, portfolio.Account{Portfolio: p.ID, Name: f.Arg(0), Currency: currency})
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, acc.ID)
		return nil
	})
}

type portfoliosCmd struct{}

func (*portfoliosCmd) Name() string     { return "portfolios" }
func (*portfoliosCmd) Synopsis() string { return "list portfolios and their accounts" }
func (*portfoliosCmd) Usage() string {
	return `pcs portfolios

  Lists every portfolio with its accounts.
`
}

func (c *portfoliosCmd) SetFlags(f *flag.FlagSet) {}

func (c *portfoliosCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		list, err := a.engine.Portfolios(ctx)
		if err != nil {
			return err
		}
		var md strings.Builder
		if len(list) == 0 {
			md.WriteString("No portfolio.\n")
		}
		for _, p := range list {
			fmt.Fprintf(&md, "## %s\n\n", p.Name)
			fmt.Fprintf(&md, "`%s`, in %s, %s, ledger version %d.\n\n", p.ID, p.BaseCurrency, p.CostMethod, p.Version)
			accounts, err := a.engine.Accounts(ctx, p.ID)
			if err != nil {
				return err
			}
			for _, acc := range accounts {
				fmt.Fprintf(&md, "- %s (%s) `%s`\n", acc.Name, acc.Currency, acc.ID)
			}
			md.WriteString("\n")
		}
		printMarkdown(md.String())
		return nil
	})
}

type declareCmd struct {
	exchange string
	name     string
	kind     string
	currency string
}

func (*declareCmd) Name() string     { return "declare" }
func (*declareCmd) Synopsis() string { return "declare an asset" }
func (*declareCmd) Usage() string {
	return `pcs declare [-x <exchange>] [-name <name>] [-type <type>] -c <currency> <symbol>

  Declares a tradable asset and prints its id.

  An asset is identified by its symbol and exchange: declaring it again
  updates its name, type and currency. Types are STOCK, ETF, REIT and OTHER.

  Example:
    pcs declare -x NASDAQ -type stock -c USD -name "Apple Inc." AAPL
`
}

func (c *declareCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.exchange, "x", "", "Exchange of the asset, e.g. NASDAQ")
	f.StringVar(&c.name, "name", "", "Display name")
	f.StringVar(&c.kind, "type", "stock", "Asset type: stock, etf, reit or other")
	f.StringVar(&c.currency, "c", "", "Currency the asset is priced in, 3-letter code (required)")
}

func (c *declareCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 1 {
			return usagef("declare takes exactly one symbol")
		}
		kind, err := portfolio.ParseAssetType(c.kind)
		if err != nil {
			return err
		}
		asset, err := a.engine.PutAsset(ctx, portfolio.Asset{
			Symbol:   f.Arg(0),
			Exchange: c.exchange,
			Name:     c.name,
			Type:     kind,
			Currency: strings.ToUpper(c.currency),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, asset.ID)
		return nil
	})
}

type assetsCmd struct {
	date string
}

func (*assetsCmd) Name() string     { return "assets" }
func (*assetsCmd) Synopsis() string { return "list declared assets" }
func (*assetsCmd) Usage() string {
	return `pcs [-p <portfolio>] assets [-d <date>]

  Lists every declared asset, marking the ones the portfolio holds on date.
`
}

func (c *assetsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Date of the holdings. Defaults to today.")
}

func (c *assetsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		on, err := parseDate("d", c.date)
		if err != nil {
			return err
		}
		assets, err := a.engine.Assets(ctx)
		if err != nil {
			return err
		}
		var v portfolio.Valuation
		if list, err := a.engine.Portfolios(ctx); err != nil {
			return err
		} else if len(list) > 0 {
			p, err := a.portfolio(ctx)
			if err != nil {
				return err
			}
			if v, err = a.engine.Valuation(ctx, p.ID, on); err != nil {
				return err
			}
		}
		printMarkdown(renderer.AssetsMarkdown(assets, v))
		return nil
	})
}
