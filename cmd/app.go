// Package cmd implements the CLI application to manage portfolios.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/config"
	"github.com/etnz/portfolio-tracker/renderer"
	"github.com/etnz/portfolio-tracker/sqlstore"
)

// Commands lists every subcommand by group.
var Commands = map[string][]subcommands.Command{
	"server": {
		&serveCmd{},
	},
	"catalog": {
		&newPortfolioCmd{},
		&newAccountCmd{},
		&portfoliosCmd{},
		&declareCmd{},
		&assetsCmd{},
	},
	"ledger": {
		&tradeCmd{side: portfolio.Buy},
		&tradeCmd{side: portfolio.Sell},
		&cashCmd{},
		&splitCmd{},
		&dripCmd{},
	},
	"market data": {
		&priceCmd{},
		&fxCmd{},
		&importPricesCmd{},
	},
	"reports": {
		&tradesCmd{},
		&positionsCmd{},
		&pnlCmd{},
		&dashboardCmd{},
		&balanceCmd{},
	},
}

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	for group, cmds := range Commands {
		for _, cmd := range cmds {
			c.Register(cmd, group)
		}
	}
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var dbPath = flag.String("db", "", "Path to the SQLite database. Defaults to $PCS_DB or portfolio.db.")
var portfolioFlag = flag.String("p", "", "Portfolio to work on. Defaults to $PCS_PORTFOLIO, or the only portfolio if there is one.")
var rawFlag = flag.Bool("raw", false, "Print reports as raw markdown instead of rendering them for the terminal.")

// stdout receives the command output.
var stdout io.Writer = os.Stdout

// app is an open engine over the configured database.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  *sqlstore.Store
	engine *portfolio.Engine
}

// openApp loads the configuration and opens the database.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if *dbPath != "" {
		cfg.DB = *dbPath
	}
	if *portfolioFlag != "" {
		cfg.Portfolio = *portfolioFlag
	}
	log := cfg.Logger()
	store, err := sqlstore.Open(sqlstore.Config{Path: cfg.DB, Logger: log})
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		engine: portfolio.NewEngine(store, cfg.EngineOptions(log)),
	}, nil
}

func (a *app) Close() error { return a.store.Close() }

// run opens the app, runs fn and reports its error on stderr.
func run(fn func(a *app) error) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if err := fn(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// usageError reports invalid command line arguments.
type usageError string

func (e usageError) Error() string { return string(e) }

func usagef(format string, args ...any) error { return usageError(fmt.Sprintf(format, args...)) }

// portfolio returns the selected portfolio, by id or name, or the only one.
func (a *app) portfolio(ctx context.Context) (portfolio.Portfolio, error) {
	list, err := a.engine.Portfolios(ctx)
	if err != nil {
		return portfolio.Portfolio{}, err
	}
	if ref := a.cfg.Portfolio; ref != "" {
		for _, p := range list {
			if p.ID == ref || strings.EqualFold(p.Name, ref) {
				return p, nil
			}
		}
		return portfolio.Portfolio{}, fmt.Errorf("portfolio %q: %w", ref, portfolio.ErrNotFound)
	}
	switch len(list) {
	case 0:
		return portfolio.Portfolio{}, usagef("no portfolio, create one with new-portfolio")
	case 1:
		return list[0], nil
	default:
		return portfolio.Portfolio{}, usagef("%d portfolios, select one with -p", len(list))
	}
}

// account returns the account id of p, or its only account when id is empty.
func (a *app) account(ctx context.Context, p portfolio.Portfolio, id string) (portfolio.Account, error) {
	list, err := a.engine.Accounts(ctx, p.ID)
	if err != nil {
		return portfolio.Account{}, err
	}
	if id == "" {
		if len(list) != 1 {
			return portfolio.Account{}, usagef("portfolio %q has %d accounts, select one with -a", p.Name, len(list))
		}
		return list[0], nil
	}
	for _, acc := range list {
		if acc.ID == id || strings.EqualFold(acc.Name, id) {
			return acc, nil
		}
	}
	return portfolio.Account{}, fmt.Errorf("account %q: %w", id, portfolio.ErrNotFound)
}

// asset resolves ref, an asset id or a ticker SYMBOL[.EXCHANGE].
func (a *app) asset(ctx context.Context, ref string) (portfolio.Asset, error) {
	if ref == "" {
		return portfolio.Asset{}, usagef("missing asset")
	}
	if asset, err := a.engine.Asset(ctx, ref); err == nil {
		return asset, nil
	} else if !errors.Is(err, portfolio.ErrNotFound) {
		return portfolio.Asset{}, err
	}
	symbol, exchange, _ := strings.Cut(strings.ToUpper(ref), ".")
	return a.store.AssetBySymbol(ctx, symbol, exchange)
}

// assets returns every asset by id.
func (a *app) assets(ctx context.Context) (map[string]portfolio.Asset, error) {
	list, err := a.engine.Assets(ctx)
	if err != nil {
		return nil, err
	}
	res := make(map[string]portfolio.Asset, len(list))
	for _, asset := range list {
		res[asset.ID] = asset
	}
	return res, nil
}

// parseDate parses an optional date flag, zero when empty.
func parseDate(name, value string) (portfolio.Date, error) {
	if value == "" {
		return portfolio.Date{}, nil
	}
	d, err := portfolio.ParseDate(value)
	if err != nil {
		return portfolio.Date{}, usagef("invalid -%s: %v", name, err)
	}
	return d, nil
}

// printMarkdown prints md rendered for the terminal, or raw with -raw.
func printMarkdown(md string) {
	if !*rawFlag {
		if out, err := renderer.Terminal(md, 100); err == nil {
			md = out
		}
	}
	fmt.Fprint(stdout, md)
}
