package cmd

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/pricefeed"
)

type priceCmd struct {
	date string
}

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "record the closing price of an asset" }
func (*priceCmd) Usage() string {
	return `pcs price [-d <date>] <asset> <price>

  Records the closing price of an asset, in its currency. A price recorded
  again for the same day replaces the previous one.

  Positions are valued at the latest price on or before the valuation date.
`
}

func (c *priceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Price date. Defaults to today.")
}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 2 {
			return usagef("price takes an asset and a price")
		}
		on, err := ledgerDate(c.date)
		if err != nil {
			return err
		}
		price, err := parseDecimal(f.Arg(1))
		if err != nil {
			return err
		}
		asset, err := a.asset(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		return a.engine.PutPrice(ctx, portfolio.Quote{Asset: asset.ID, Date: on, Price: price})
	})
}

type fxCmd struct {
	date string
}

func (*fxCmd) Name() string     { return "fx" }
func (*fxCmd) Synopsis() string { return "record an exchange rate" }
func (*fxCmd) Usage() string {
	return `pcs fx [-d <date>] <from> <to> <rate>

  Records the rate converting one unit of from into to.

  Example:
    pcs fx -d 2024-01-02 EUR USD 1.0945
`
}

func (c *fxCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Rate date. Defaults to today.")
}

func (c *fxCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 3 {
			return usagef("fx takes two currencies and a rate")
		}
		on, err := ledgerDate(c.date)
		if err != nil {
			return err
		}
		rate, err := parseDecimal(f.Arg(2))
		if err != nil {
			return err
		}
		return a.engine.PutFXRate(ctx, portfolio.FXRate{
			From: strings.ToUpper(f.Arg(0)),
			To:   strings.ToUpper(f.Arg(1)),
			Date: on,
			Rate: rate,
		})
	})
}

type importPricesCmd struct {
	asset   string
	pair    string
	mapping pricefeed.Mapping
}

func (*importPricesCmd) Name() string     { return "import-prices" }
func (*importPricesCmd) Synopsis() string { return "import prices or rates from a JSON file" }
func (*importPricesCmd) Usage() string {
	return `pcs import-prices (-asset <asset> | -fx <FROM/TO>) [-rows <path>] [-date <path>] [-value <path>] <file.json>

  Imports a series of dated values from a JSON document, as the prices of an
  asset or as the rates of a currency pair.

  JSONPath expressions locate the values: -rows selects every row of the
  document, -date and -value are evaluated on each row. Dates are ISO dates,
  RFC 3339 timestamps or unix timestamps.

  Examples:
    pcs import-prices -asset AAPL.NASDAQ aapl.json
    pcs import-prices -fx EUR/USD -rows '$.data[*]' -date '$[0]' -value '$[1]' eurusd.json
`
}

func (c *importPricesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asset, "asset", "", "Asset of the prices, id or ticker")
	f.StringVar(&c.pair, "fx", "", "Currency pair of the rates, e.g. EUR/USD")
	f.StringVar(&c.mapping.Rows, "rows", pricefeed.DefaultMapping.Rows, "JSONPath of the rows")
	f.StringVar(&c.mapping.Date, "date", pricefeed.DefaultMapping.Date, "JSONPath of the date in a row")
	f.StringVar(&c.mapping.Value, "value", pricefeed.DefaultMapping.Value, "JSONPath of the value in a row")
}

func (c *importPricesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(func(a *app) error {
		if f.NArg() != 1 {
			return usagef("import-prices takes exactly one file")
		}
		if (c.asset == "") == (c.pair == "") {
			return usagef("either -asset or -fx is required")
		}
		points, err := pricefeed.DecodeFile(f.Arg(0), c.mapping)
		if err != nil {
			return err
		}

		var n int
		if c.asset != "" {
			asset, err := a.asset(ctx, c.asset)
			if err != nil {
				return err
			}
			n, err = pricefeed.ImportPrices(ctx, a.engine, pricefeed.Quotes(asset.ID, points))
			if err != nil {
				return fmt.Errorf("after %d prices: %w", n, err)
			}
			fmt.Fprintf(stdout, "%d prices of %s imported\n", n, asset.Ticker())
			return nil
		}

		from, to, ok := strings.Cut(strings.ToUpper(c.pair), "/")
		if !ok {
			return usagef("invalid -fx %q, want FROM/TO", c.pair)
		}
		n, err = pricefeed.ImportRates(ctx, a.engine, pricefeed.Rates(from, to, points))
		if err != nil {
			return fmt.Errorf("after %d rates: %w", n, err)
		}
		fmt.Fprintf(stdout, "%d %s/%s rates imported\n", n, from, to)
		return nil
	})
}
