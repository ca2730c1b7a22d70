package portfolio_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/sqlstore"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var databases atomic.Int64

func openStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	path := fmt.Sprintf("file:engine%d?mode=memory&cache=shared", databases.Add(1))
	s, err := sqlstore.Open(sqlstore.Config{Path: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// env is a portfolio with one USD account and one USD stock.
type env struct {
	t         *testing.T
	ctx       context.Context
	engine    *portfolio.Engine
	portfolio portfolio.Portfolio
	account   portfolio.Account
	asset     portfolio.Asset
}

func newEnv(t *testing.T, store portfolio.Store, method portfolio.CostMethod) *env {
	t.Helper()
	ctx := context.Background()
	e := portfolio.NewEngine(store, portfolio.DefaultOptions())
	p, err := e.CreatePortfolio(ctx, portfolio.Portfolio{Name: "main", BaseCurrency: "usd", CostMethod: method})
	require.NoError(t, err)
	a, err := e.CreateAccount(ctx, portfolio.Account{Portfolio: p.ID, Name: "broker", Currency: "USD"})
	require.NoError(t, err)
	asset, err := e.PutAsset(ctx, portfolio.Asset{Symbol: "aapl", Exchange: "nasdaq", Type: "stock", Currency: "USD"})
	require.NoError(t, err)
	return &env{t: t, ctx: ctx, engine: e, portfolio: p, account: a, asset: asset}
}

func (e *env) trade(date string, side portfolio.Side, qty, price float64) (portfolio.Trade, error) {
	return e.engine.AppendTrade(e.ctx, portfolio.Trade{
		Portfolio: e.portfolio.ID,
		Account:   e.account.ID,
		Asset:     e.asset.ID,
		Date:      portfolio.MustParseDate(date),
		Side:      side,
		Quantity:  portfolio.Q(qty),
		Price:     decimal.NewFromFloat(price),
	})
}

func (e *env) mustTrade(date string, side portfolio.Side, qty, price float64) portfolio.Trade {
	e.t.Helper()
	tr, err := e.trade(date, side, qty, price)
	require.NoError(e.t, err)
	return tr
}

func (e *env) deposit(date string, amount float64) {
	e.t.Helper()
	_, err := e.engine.AppendCashTransaction(e.ctx, portfolio.CashTransaction{
		Portfolio: e.portfolio.ID,
		Account:   e.account.ID,
		Date:      portfolio.MustParseDate(date),
		Type:      "deposit",
		Amount:    decimal.NewFromFloat(amount),
		Currency:  "usd",
	})
	require.NoError(e.t, err)
}

func (e *env) cash(date string, typ portfolio.CashType, amount, tax float64) (portfolio.CashTransaction, error) {
	return e.engine.AppendCashTransaction(e.ctx, portfolio.CashTransaction{
		Portfolio:      e.portfolio.ID,
		Account:        e.account.ID,
		Asset:          e.asset.ID,
		Date:           portfolio.MustParseDate(date),
		Type:           typ,
		Amount:         decimal.NewFromFloat(amount),
		WithholdingTax: decimal.NewFromFloat(tax),
		Currency:       "USD",
	})
}

func (e *env) price(date string, price float64) {
	e.t.Helper()
	require.NoError(e.t, e.engine.PutPrice(e.ctx, portfolio.Quote{Asset: e.asset.ID, Date: portfolio.MustParseDate(date), Price: decimal.NewFromFloat(price)}))
}

func rounded(t *testing.T, want float64, got portfolio.Money, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, decimal.NewFromFloat(want).StringFixed(2), got.Decimal().StringFixed(2), msgAndArgs...)
}

func TestEngineNormalizes(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	assert.Equal(t, "USD", e.portfolio.BaseCurrency)
	assert.Equal(t, "AAPL", e.asset.Symbol)
	assert.Equal(t, portfolio.Stock, e.asset.Type)

	tr := e.mustTrade("2024-01-02", "buy", 1, 1)
	assert.Equal(t, portfolio.Buy, tr.Side)
}

func TestInsufficientHoldings(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 100)

	_, err := e.trade("2024-01-03", portfolio.Sell, 15, 100)
	require.ErrorIs(t, err, portfolio.ErrInsufficientHoldings)
	var ih *portfolio.InsufficientHoldingsError
	require.True(t, errors.As(err, &ih))
	assert.True(t, ih.Available.Equal(portfolio.Q(10)))

	trades, err := e.engine.ListTrades(e.ctx, e.portfolio.ID, "", portfolio.Date{})
	require.NoError(t, err)
	assert.Len(t, trades, 1, "the ledger is unchanged")

	v, err := e.engine.Store().Version(e.ctx, e.portfolio.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestBackdatedSellBreakingLaterSell(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.FIFO)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 100)
	e.mustTrade("2024-01-10", portfolio.Sell, 10, 120)

	// 10 shares are held on the 5th, but the sell of the 10th would fail.
	_, err := e.trade("2024-01-05", portfolio.Sell, 5, 110)
	assert.ErrorIs(t, err, portfolio.ErrInsufficientHoldings)
}

func TestReverseSplitBreakingLaterSell(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 100)
	e.mustTrade("2024-01-10", portfolio.Sell, 8, 120)

	split := portfolio.Split{Portfolio: e.portfolio.ID, Asset: e.asset.ID, Date: portfolio.MustParseDate("2024-01-05"), Numerator: 1, Denominator: 2}
	_, err := e.engine.AppendSplit(e.ctx, split)
	assert.ErrorIs(t, err, portfolio.ErrInsufficientHoldings)

	split.Numerator, split.Denominator = 2, 1
	_, err = e.engine.AppendSplit(e.ctx, split)
	assert.NoError(t, err)
}

func TestValidation(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)

	_, err := e.trade("2024-01-02", portfolio.Buy, 0, 100)
	assert.ErrorIs(t, err, portfolio.ErrValidation)
	_, err = e.trade("2024-01-02", portfolio.Buy, 1, -1)
	assert.ErrorIs(t, err, portfolio.ErrValidation)
	_, err = e.trade("2024-01-02", "hold", 1, 1)
	assert.ErrorIs(t, err, portfolio.ErrValidation)

	_, err = e.engine.AppendCashTransaction(e.ctx, portfolio.CashTransaction{
		Portfolio: e.portfolio.ID, Account: e.account.ID, Date: portfolio.MustParseDate("2024-01-02"),
		Type: portfolio.Withdraw, Amount: decimal.NewFromInt(100), Currency: "USD",
	})
	assert.ErrorIs(t, err, portfolio.ErrValidation, "withdrawals are negative")

	_, err = e.engine.AppendTrade(e.ctx, portfolio.Trade{
		Portfolio: e.portfolio.ID, Account: "nope", Asset: e.asset.ID, Date: portfolio.MustParseDate("2024-01-02"),
		Side: portfolio.Buy, Quantity: portfolio.Q(1), Price: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, portfolio.ErrNotFound)

	_, err = e.engine.PnLSummary(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-02-01"), portfolio.MustParseDate("2024-01-01"), portfolio.MustParseDate("2024-03-01"))
	assert.ErrorIs(t, err, portfolio.ErrValidation)
}

func TestAutoTradeCash(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.deposit("2024-01-01", 20000)
	e.mustTrade("2024-01-02", portfolio.Buy, 100, 150)
	e.mustTrade("2024-01-03", portfolio.Sell, 30, 160)

	cash, err := e.engine.ListCashTransactions(e.ctx, e.portfolio.ID, portfolio.Date{}, portfolio.Date{})
	require.NoError(t, err)
	require.Len(t, cash, 3)
	assert.Equal(t, portfolio.TradeExpense, cash[1].Type)
	assert.Equal(t, portfolio.TradeProceeds, cash[2].Type)
	assert.NotEmpty(t, cash[1].TradeID)

	balance, err := e.engine.CashBalance(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-03"))
	require.NoError(t, err)
	rounded(t, 20000-15000+4800, balance)

	balance, err = e.engine.CashBalance(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-02"))
	require.NoError(t, err)
	rounded(t, 5000, balance)
}

func TestPositionsAndPnL(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.mustTrade("2024-01-02", portfolio.Buy, 100, 150)
	e.mustTrade("2024-01-03", portfolio.Buy, 50, 155)
	e.mustTrade("2024-01-04", portfolio.Sell, 30, 160)
	e.price("2024-01-01", 140)
	e.price("2024-01-05", 170)

	positions, err := e.engine.Positions(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-05"))
	require.NoError(t, err)
	require.Len(t, positions, 1)
	p := positions[0]
	assert.Equal(t, "AAPL.NASDAQ", p.Symbol)
	assert.True(t, p.Shares.Equal(portfolio.Q(120)))
	assert.Equal(t, "151.6667", p.AvgCost.Decimal().StringFixed(4))
	rounded(t, 250, p.Realized)
	require.True(t, p.Valued())
	rounded(t, 20400, *p.MarketValue)
	rounded(t, 2200, *p.Unrealized)

	s, err := e.engine.PnLSummary(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-01"), portfolio.MustParseDate("2024-01-05"), portfolio.MustParseDate("2024-01-05"))
	require.NoError(t, err)
	rounded(t, 250, s.Realized)
	assert.True(t, s.UnrealizedFrom.IsZero(), "nothing held on the 1st")
	rounded(t, 2200, s.UnrealizedTo)
	rounded(t, 2450, s.TotalReturn)
	assert.NoError(t, s.Reconcile())
	assert.Equal(t, int64(3), s.Version)
	assert.Empty(t, s.Excluded)
}

func TestPnLAsOf(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 100)
	e.mustTrade("2024-02-02", portfolio.Sell, 10, 150)
	e.price("2024-01-02", 100)

	// the sell is after asOf: ignored, and to is clamped.
	s, err := e.engine.PnLSummary(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-01"), portfolio.MustParseDate("2024-12-31"), portfolio.MustParseDate("2024-01-31"))
	require.NoError(t, err)
	assert.Equal(t, portfolio.MustParseDate("2024-01-31"), s.To)
	assert.True(t, s.Realized.IsZero())

	s, err = e.engine.PnLSummary(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-01"), portfolio.MustParseDate("2024-12-31"), portfolio.MustParseDate("2024-12-31"))
	require.NoError(t, err)
	rounded(t, 500, s.Realized)
}

func TestDashboard(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.deposit("2024-01-01", 60000)
	e.mustTrade("2024-01-02", portfolio.Buy, 100, 500)
	e.price("2024-02-29", 505)
	e.price("2024-03-01", 510)

	s, err := e.engine.DashboardStats(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, portfolio.MustParseDate("2024-02-29"), s.PriorAsOf)
	rounded(t, 51000, s.MarketValue)
	rounded(t, 50500, s.PriorMarketValue)
	rounded(t, 500, s.DayChangeAmount)
	assert.True(t, s.DayChangePercent.Equal(portfolio.P(decimal.RequireFromString("0.9901"))), "got %s", s.DayChangePercent)
	rounded(t, 10000, s.CashBalance)
	rounded(t, 61000, s.TotalNetWorth)
	rounded(t, 1000, s.TotalPnL)
	assert.Equal(t, int64(2), s.Version)

	s, err = e.engine.DashboardStats(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-02"))
	require.NoError(t, err)
	assert.True(t, s.DayChangePercent.IsZero(), "no market value the day before")
	assert.Equal(t, []string{e.asset.ID}, s.Excluded, "no price yet")
}

func TestBackdatedAppendInvalidatesCache(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.mustTrade("2024-01-10", portfolio.Buy, 10, 100)
	e.price("2024-01-01", 100)

	on := portfolio.MustParseDate("2024-01-20")
	positions, err := e.engine.Positions(e.ctx, e.portfolio.ID, on)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Shares.Equal(portfolio.Q(10)))

	e.mustTrade("2024-01-05", portfolio.Buy, 5, 100)
	positions, err = e.engine.Positions(e.ctx, e.portfolio.ID, on)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Shares.Equal(portfolio.Q(15)))

	e.mustTrade("2024-02-05", portfolio.Buy, 1, 100)
	positions, err = e.engine.Positions(e.ctx, e.portfolio.ID, on)
	require.NoError(t, err)
	assert.True(t, positions[0].Shares.Equal(portfolio.Q(15)), "later trades do not change the past")
}

// laggingStore serves trade lists from a snapshot one version behind, lag times.
type laggingStore struct {
	*sqlstore.Store
	lag atomic.Int64
}

func (s *laggingStore) ListTrades(ctx context.Context, q portfolio.TradeQuery) ([]portfolio.Trade, int64, error) {
	trades, wm, err := s.Store.ListTrades(ctx, q)
	if s.lag.Add(-1) >= 0 {
		wm--
	}
	return trades, wm, err
}

func TestLaggingSnapshot(t *testing.T) {
	store := &laggingStore{Store: openStore(t)}
	e := newEnv(t, store, portfolio.AverageCost)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 100)
	e.price("2024-01-02", 100)

	store.lag.Store(1)
	s, err := e.engine.DashboardStats(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-03"))
	require.NoError(t, err, "a single lagging read is retried")
	rounded(t, 1000, s.MarketValue)

	store.lag.Store(1 << 40)
	_, err = e.engine.DashboardStats(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-04"))
	require.Error(t, err)
	assert.True(t, portfolio.IsRetryable(err))
	assert.ErrorIs(t, err, portfolio.ErrInconsistentSnapshot)
	var r *portfolio.RetryableError
	require.True(t, errors.As(err, &r))
	assert.Equal(t, portfolio.DefaultOptions().SnapshotAttempts, r.Attempts)
}

// racingStore appends a concurrent deposit right before the next append.
type racingStore struct {
	*sqlstore.Store
	race func()
}

func (s *racingStore) AppendCashTransaction(ctx context.Context, c portfolio.CashTransaction, expected int64) (portfolio.CashTransaction, error) {
	if race := s.race; race != nil {
		s.race = nil
		race()
	}
	return s.Store.AppendCashTransaction(ctx, c, expected)
}

func TestVersionConflictRetried(t *testing.T) {
	store := &racingStore{Store: openStore(t)}
	e := newEnv(t, store, portfolio.AverageCost)

	store.race = func() {
		v, err := store.Store.Version(e.ctx, e.portfolio.ID)
		require.NoError(t, err)
		_, err = store.Store.AppendCashTransaction(e.ctx, portfolio.CashTransaction{
			Portfolio: e.portfolio.ID, Account: e.account.ID, Date: portfolio.MustParseDate("2024-01-01"),
			Type: portfolio.Deposit, Amount: decimal.NewFromInt(1), Currency: "USD",
		}, v)
		require.NoError(t, err)
	}
	e.deposit("2024-01-02", 100)

	cash, err := e.engine.ListCashTransactions(e.ctx, e.portfolio.ID, portfolio.Date{}, portfolio.Date{})
	require.NoError(t, err)
	require.Len(t, cash, 2)
	assert.Equal(t, int64(1), cash[0].Seq)
	assert.Equal(t, int64(2), cash[1].Seq)
}

func TestFXRateOnBaseCurrencyAsset(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.deposit("2024-01-01", 1000)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 100)

	rate := decimal.RequireFromString("1.5")
	sell := portfolio.Trade{
		Portfolio: e.portfolio.ID,
		Account:   e.account.ID,
		Asset:     e.asset.ID,
		Date:      portfolio.MustParseDate("2024-01-03"),
		Side:      portfolio.Sell,
		Quantity:  portfolio.Q(10),
		Price:     decimal.NewFromInt(110),
		FXRate:    &rate,
	}
	_, err := e.engine.AppendTrade(e.ctx, sell)
	var invalid *portfolio.ValidationError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, "fx_rate", invalid.Field)

	one := decimal.NewFromInt(1)
	sell.FXRate = &one
	_, err = e.engine.AppendTrade(e.ctx, sell)
	require.NoError(t, err)

	on := portfolio.MustParseDate("2024-01-03")
	s, err := e.engine.PnLSummary(e.ctx, e.portfolio.ID, portfolio.Date{}, on, on)
	require.NoError(t, err)
	rounded(t, 100, s.Realized)
	balance, err := e.engine.CashBalance(e.ctx, e.portfolio.ID, on)
	require.NoError(t, err)
	rounded(t, 1100, balance, "the realized gain is the cash gained")
}

func TestWithholdingTaxAboveAmount(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	_, err := e.cash("2024-01-02", portfolio.DividendCash, 10, 12)
	assert.ErrorIs(t, err, portfolio.ErrValidation)
	_, err = e.cash("2024-01-02", portfolio.DividendCash, 10, 10)
	assert.NoError(t, err, "a dividend can be withheld entirely")
}

func TestIdempotentReads(t *testing.T) {
	store := openStore(t)
	e := newEnv(t, store, portfolio.FIFO)
	e.deposit("2024-01-01", 10000)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 100)
	e.mustTrade("2024-01-03", portfolio.Buy, 5, 130)
	e.mustTrade("2024-01-04", portfolio.Sell, 12, 120)
	_, err := e.cash("2024-01-05", portfolio.DividendCash, 3, 0.45)
	require.NoError(t, err)
	e.price("2024-01-04", 125)
	e.price("2024-01-05", 127.5)

	opts := portfolio.DefaultOptions()
	opts.CacheTTL = 0
	uncached := portfolio.NewEngine(store, opts)

	on := portfolio.MustParseDate("2024-01-05")
	read := func(engine *portfolio.Engine) string {
		t.Helper()
		v, err := engine.Valuation(e.ctx, e.portfolio.ID, on)
		require.NoError(t, err)
		s, err := engine.PnLSummary(e.ctx, e.portfolio.ID, portfolio.Date{}, on, on)
		require.NoError(t, err)
		d, err := engine.DashboardStats(e.ctx, e.portfolio.ID, on)
		require.NoError(t, err)
		b, err := json.Marshal([]any{v, s, d})
		require.NoError(t, err)
		return string(b)
	}
	first := read(e.engine)
	assert.Equal(t, first, read(e.engine), "cached")
	assert.Equal(t, first, read(uncached), "recomputed")
}

func TestEmptyPortfolioDashboard(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	s, err := e.engine.DashboardStats(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-03-01"))
	require.NoError(t, err)

	assert.Equal(t, int64(0), s.Version)
	assert.Equal(t, "USD", s.Currency)
	for name, m := range map[string]portfolio.Money{
		"market value":       s.MarketValue,
		"prior market value": s.PriorMarketValue,
		"cash balance":       s.CashBalance,
		"net worth":          s.TotalNetWorth,
		"day change":         s.DayChangeAmount,
		"total pnl":          s.TotalPnL,
	} {
		assert.True(t, m.IsZero(), "%s is %s", name, m)
	}
	assert.True(t, s.DayChangePercent.IsZero())
	assert.Empty(t, s.Excluded)
}

func TestDashboardDuringAppends(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	on := portfolio.MustParseDate("2024-01-31")
	const n = 20

	var g errgroup.Group
	g.Go(func() error {
		for range n {
			_, err := e.engine.AppendCashTransaction(e.ctx, portfolio.CashTransaction{
				Portfolio: e.portfolio.ID, Account: e.account.ID, Date: portfolio.MustParseDate("2024-01-01"),
				Type: portfolio.Deposit, Amount: decimal.NewFromInt(100), Currency: "USD",
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	stats := make([]portfolio.DashboardStats, n)
	for i := range stats {
		g.Go(func() (err error) {
			stats[i], err = e.engine.DashboardStats(e.ctx, e.portfolio.ID, on)
			return err
		})
	}
	require.NoError(t, g.Wait())

	// every deposit is one version: a consistent read holds 100 per version.
	for _, s := range stats {
		rounded(t, 100*float64(s.Version), s.CashBalance, "at version %d", s.Version)
		rounded(t, 100*float64(s.Version), s.TotalNetWorth, "at version %d", s.Version)
	}
}

func TestReport(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.deposit("2024-01-01", 5000)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 100)
	e.price("2024-01-02", 110)

	r, err := e.engine.Report(e.ctx, e.portfolio.ID, portfolio.MustParseDate("2024-01-03"))
	require.NoError(t, err)
	assert.Equal(t, "main", r.Portfolio.Name)
	assert.Equal(t, int64(2), r.Portfolio.Version)
	assert.Equal(t, r.Portfolio.Version, r.Dashboard.Version)
	assert.Equal(t, r.Portfolio.Version, r.Valuation.Version)
	assert.Equal(t, r.Portfolio.Version, r.PnL.Version)
	assert.True(t, r.Dashboard.MarketValue.Equal(r.Valuation.MarketValue))
	assert.True(t, r.Dashboard.TotalPnL.Equal(r.PnL.TotalReturn))
	rounded(t, 1100, r.Valuation.MarketValue)
	rounded(t, 100, r.PnL.TotalReturn)
}

func TestAccountCashBalance(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	savings, err := e.engine.CreateAccount(e.ctx, portfolio.Account{Portfolio: e.portfolio.ID, Name: "savings", Currency: "EUR"})
	require.NoError(t, err)
	require.NoError(t, e.engine.PutFXRate(e.ctx, portfolio.FXRate{From: "EUR", To: "USD", Date: portfolio.MustParseDate("2024-01-01"), Rate: decimal.RequireFromString("1.1")}))

	e.deposit("2024-01-01", 1000)
	e.mustTrade("2024-01-02", portfolio.Buy, 2, 100)
	_, err = e.engine.AppendCashTransaction(e.ctx, portfolio.CashTransaction{
		Portfolio: e.portfolio.ID, Account: savings.ID, Date: portfolio.MustParseDate("2024-01-03"),
		Type: portfolio.Deposit, Amount: decimal.NewFromInt(500), Currency: "EUR",
	})
	require.NoError(t, err)

	on := portfolio.MustParseDate("2024-01-03")
	broker, err := e.engine.AccountCashBalance(e.ctx, e.account.ID, on)
	require.NoError(t, err)
	assert.Equal(t, "USD", broker.Currency())
	rounded(t, 800, broker)

	eur, err := e.engine.AccountCashBalance(e.ctx, savings.ID, on)
	require.NoError(t, err)
	assert.Equal(t, "EUR", eur.Currency())
	rounded(t, 500, eur)

	total, err := e.engine.CashBalance(e.ctx, e.portfolio.ID, on)
	require.NoError(t, err)
	rounded(t, 800+550, total)

	_, err = e.engine.AccountCashBalance(e.ctx, "nope", on)
	assert.ErrorIs(t, err, portfolio.ErrNotFound)
}

func TestDRIP(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.FIFO)
	e.deposit("2024-01-01", 150)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 15)
	e.price("2024-02-28", 17)
	_, err := e.cash("2024-03-01", portfolio.DividendCash, 100, 15)
	require.NoError(t, err)
	on := portfolio.MustParseDate("2024-03-01")

	trades, err := e.engine.AppendDRIP(e.ctx, e.portfolio.ID, e.asset.ID, on)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, portfolio.Buy, tr.Side)
	assert.True(t, tr.Quantity.Equal(portfolio.Q(5)), "85 / 17, got %s", tr.Quantity)
	assert.True(t, tr.Price.Equal(decimal.NewFromInt(17)))
	assert.Equal(t, on, tr.Date)

	cash, err := e.engine.ListCashTransactions(e.ctx, e.portfolio.ID, on, on)
	require.NoError(t, err)
	require.Len(t, cash, 2)
	assert.Equal(t, portfolio.TradeExpense, cash[1].Type)
	assert.Equal(t, tr.ID, cash[1].TradeID)
	assert.Equal(t, tr.Seq, cash[1].Seq, "the expense is appended with the trade")

	balance, err := e.engine.AccountCashBalance(e.ctx, e.account.ID, on)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "the dividend was spent, got %s", balance)

	positions, err := e.engine.Positions(e.ctx, e.portfolio.ID, on)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Shares.Equal(portfolio.Q(15)))
	rounded(t, 150+85, positions[0].CostBasis)

	trades, err = e.engine.AppendDRIP(e.ctx, e.portfolio.ID, e.asset.ID, on)
	require.NoError(t, err)
	assert.Empty(t, trades, "a dividend is reinvested once")
}

func TestDRIPFractionalShares(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.deposit("2024-01-01", 1000)
	e.price("2024-03-01", 3)
	_, err := e.cash("2024-03-01", portfolio.DividendCash, 10, 0)
	require.NoError(t, err)

	trades, err := e.engine.AppendDRIP(e.ctx, e.portfolio.ID, e.asset.ID, portfolio.MustParseDate("2024-03-01"))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "3.333333", trades[0].Quantity.String())
}

func TestDRIPInsufficientCash(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.mustTrade("2024-01-02", portfolio.Buy, 10, 15)
	e.price("2024-03-01", 20)
	on := portfolio.MustParseDate("2024-03-01")

	// the buy of the 2nd left the account at -150.
	_, err := e.cash("2024-03-01", portfolio.DividendCash, 100, 0)
	require.NoError(t, err)
	version, err := e.engine.Store().Version(e.ctx, e.portfolio.ID)
	require.NoError(t, err)

	_, err = e.engine.AppendDRIP(e.ctx, e.portfolio.ID, e.asset.ID, on)
	require.ErrorIs(t, err, portfolio.ErrInsufficientCash)
	var short *portfolio.InsufficientCashError
	require.True(t, errors.As(err, &short))
	rounded(t, 100, short.Requested)
	rounded(t, -50, short.Available)

	after, err := e.engine.Store().Version(e.ctx, e.portfolio.ID)
	require.NoError(t, err)
	assert.Equal(t, version, after, "the ledger is unchanged")
}

func TestDRIPWithoutPrice(t *testing.T) {
	e := newEnv(t, openStore(t), portfolio.AverageCost)
	e.deposit("2024-01-01", 1000)
	_, err := e.cash("2024-03-01", portfolio.DividendCash, 10, 0)
	require.NoError(t, err)
	e.price("2024-03-02", 10)

	_, err = e.engine.AppendDRIP(e.ctx, e.portfolio.ID, e.asset.ID, portfolio.MustParseDate("2024-03-01"))
	assert.ErrorIs(t, err, portfolio.ErrPriceUnavailable)
}
