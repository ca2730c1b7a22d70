package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/portfolio-tracker/cache"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Options configures an Engine.
type Options struct {
	// SnapshotAttempts bounds the reads of a snapshot that observed an
	// inconsistent ledger.
	SnapshotAttempts int
	// AppendAttempts bounds the appends rejected by a version conflict.
	AppendAttempts int
	// AutoTradeCash appends the settlement cash transaction of every trade.
	AutoTradeCash bool
	// CacheTTL is the lifetime of cached holdings. Zero disables the cache.
	CacheTTL     time.Duration
	CacheCleanup time.Duration
	Logger       zerolog.Logger
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		SnapshotAttempts: 3,
		AppendAttempts:   5,
		AutoTradeCash:    true,
		CacheTTL:         10 * time.Minute,
		CacheCleanup:     20 * time.Minute,
		Logger:           zerolog.Nop(),
	}
}

// Engine is the ingestion and presentation boundary of the ledger.
//
// Appends are validated against a replay of the ledger and committed with a
// versioned append. Reads pin a ledger version and only observe the records
// up to that version.
type Engine struct {
	store    Store
	opts     Options
	log      zerolog.Logger
	holdingz *cache.Versioned[map[string]Holding]
}

// NewEngine creates an Engine over store.
func NewEngine(store Store, opts Options) *Engine {
	if opts.SnapshotAttempts < 1 {
		opts.SnapshotAttempts = 1
	}
	if opts.AppendAttempts < 1 {
		opts.AppendAttempts = 1
	}
	e := &Engine{
		store: store,
		opts:  opts,
		log:   opts.Logger.With().Str("component", "engine").Logger(),
	}
	if opts.CacheTTL > 0 {
		e.holdingz = cache.New[map[string]Holding](opts.CacheTTL, opts.CacheCleanup)
	}
	return e
}

// Store returns the underlying store.
func (e *Engine) Store() Store { return e.store }

// pinned runs read at the current version of portfolio. When read observes
// an older ledger it is run again at the new current version, up to
// SnapshotAttempts times.
func (e *Engine) pinned(ctx context.Context, portfolio string, read func(ctx context.Context, p Portfolio, version int64) error) error {
	p, err := e.store.Portfolio(ctx, portfolio)
	if err != nil {
		return fmt.Errorf("reading portfolio %q: %w", portfolio, err)
	}
	var last error
	for attempt := 1; attempt <= e.opts.SnapshotAttempts; attempt++ {
		version, err := e.store.Version(ctx, portfolio)
		if err != nil {
			return fmt.Errorf("reading version of %q: %w", portfolio, err)
		}
		last = read(ctx, p, version)
		if !errors.Is(last, ErrInconsistentSnapshot) {
			return last
		}
		e.log.Warn().Err(last).Str("portfolio", portfolio).Int64("version", version).Int("attempt", attempt).Msg("retrying inconsistent snapshot")
	}
	return &RetryableError{Attempts: e.opts.SnapshotAttempts, Err: last}
}

// checkWatermark fails when a read observed a ledger older than version.
func checkWatermark(what string, version, watermark int64) error {
	if watermark < version {
		return fmt.Errorf("%s observed version %d, pinned %d: %w", what, watermark, version, ErrInconsistentSnapshot)
	}
	return nil
}

// ledgerAt reads the records of portfolio dated on or before asOf at version.
func (e *Engine) ledgerAt(ctx context.Context, portfolio string, version int64, asOf Date) (trades []Trade, cash []CashTransaction, splits []Split, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var wm int64
		var err error
		trades, wm, err = e.store.ListTrades(gctx, TradeQuery{Portfolio: portfolio, AsOf: asOf, AtVersion: version})
		if err != nil {
			return fmt.Errorf("listing trades: %w", err)
		}
		return checkWatermark("trades", version, wm)
	})
	g.Go(func() error {
		var wm int64
		var err error
		cash, wm, err = e.store.ListCashTransactions(gctx, CashQuery{Portfolio: portfolio, To: asOf, AtVersion: version})
		if err != nil {
			return fmt.Errorf("listing cash transactions: %w", err)
		}
		return checkWatermark("cash transactions", version, wm)
	})
	g.Go(func() error {
		var wm int64
		var err error
		splits, wm, err = e.store.ListSplits(gctx, SplitQuery{Portfolio: portfolio, AsOf: asOf, AtVersion: version})
		if err != nil {
			return fmt.Errorf("listing splits: %w", err)
		}
		return checkWatermark("splits", version, wm)
	})
	err = g.Wait()
	return trades, cash, splits, err
}

// cashAt reads the cash transactions of portfolio dated in [from, to] at version.
func (e *Engine) cashAt(ctx context.Context, portfolio string, version int64, from, to Date) ([]CashTransaction, error) {
	cash, wm, err := e.store.ListCashTransactions(ctx, CashQuery{Portfolio: portfolio, From: from, To: to, AtVersion: version})
	if err != nil {
		return nil, fmt.Errorf("listing cash transactions: %w", err)
	}
	return cash, checkWatermark("cash transactions", version, wm)
}

func (e *Engine) assets(ctx context.Context) (map[string]Asset, error) {
	list, err := e.store.Assets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	res := make(map[string]Asset, len(list))
	for _, a := range list {
		res[a.ID] = a
	}
	return res, nil
}

// holdings returns the holdings of p at asOf, as recorded at version.
func (e *Engine) holdings(ctx context.Context, p Portfolio, version int64, asOf Date) (map[string]Holding, error) {
	if e.holdingz != nil {
		if h, ok := e.holdingz.Get(p.ID, asOf.String(), version); ok {
			return h, nil
		}
	}
	trades, cash, splits, err := e.ledgerAt(ctx, p.ID, version, asOf)
	if err != nil {
		return nil, err
	}
	assets, err := e.assets(ctx)
	if err != nil {
		return nil, err
	}
	h, err := replayAll(p.CostMethod, assets, trades, cash, splits, asOf)
	if err != nil {
		return nil, fmt.Errorf("replaying %s at version %d: %w", p.ID, version, err)
	}
	if e.holdingz != nil {
		e.holdingz.Put(p.ID, asOf.String(), version, h)
	}
	return h, nil
}

// appended records a successful append in the cache and the log.
func (e *Engine) appended(portfolio string, date Date, version int64, what, id string) {
	if e.holdingz != nil {
		e.holdingz.Append(portfolio, date.String(), version)
	}
	e.log.Debug().Str("portfolio", portfolio).Str(what, id).Str("date", date.String()).Int64("version", version).Msg("appended")
}

// retryAppend runs try until it does not fail with a version conflict,
// up to AppendAttempts times.
func (e *Engine) retryAppend(ctx context.Context, portfolio string, try func(version int64) error) error {
	var err error
	for attempt := 1; attempt <= e.opts.AppendAttempts; attempt++ {
		var version int64
		version, err = e.store.Version(ctx, portfolio)
		if err != nil {
			return fmt.Errorf("reading version of %q: %w", portfolio, err)
		}
		err = try(version)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		e.log.Warn().Str("portfolio", portfolio).Int64("version", version).Int("attempt", attempt).Msg("retrying conflicting append")
	}
	return &RetryableError{Attempts: e.opts.AppendAttempts, Err: err}
}

// account returns the account id, which must belong to portfolio.
func (e *Engine) account(ctx context.Context, portfolio, id string) (Account, error) {
	a, err := e.store.Account(ctx, id)
	if err != nil {
		return Account{}, fmt.Errorf("account %q: %w", id, err)
	}
	if a.Portfolio != portfolio {
		return Account{}, fmt.Errorf("account %q in portfolio %q: %w", id, portfolio, ErrNotFound)
	}
	return a, nil
}

// AppendTrade validates and appends t, and its settlement cash transaction
// when AutoTradeCash is set.
//
// A SELL is validated by replaying the asset with t in place: it fails with
// an *InsufficientHoldingsError when it, or any later SELL, would sell more
// shares than held.
func (e *Engine) AppendTrade(ctx context.Context, t Trade) (Trade, error) {
	if side, err := ParseSide(string(t.Side)); err == nil {
		t.Side = side
	}
	if err := t.Validate(); err != nil {
		return Trade{}, err
	}
	p, err := e.store.Portfolio(ctx, t.Portfolio)
	if err != nil {
		return Trade{}, fmt.Errorf("portfolio %q: %w", t.Portfolio, err)
	}
	acc, err := e.account(ctx, p.ID, t.Account)
	if err != nil {
		return Trade{}, err
	}
	asset, err := e.store.Asset(ctx, t.Asset)
	if err != nil {
		return Trade{}, fmt.Errorf("asset %q: %w", t.Asset, err)
	}
	if t.FXRate != nil && strings.EqualFold(asset.Currency, p.BaseCurrency) && !t.FXRate.Equal(decimal.NewFromInt(1)) {
		return Trade{}, invalid("fx_rate", "must be 1 for an asset in the base currency %s, got %s", p.BaseCurrency, t.FXRate)
	}

	var linked *CashTransaction
	if e.opts.AutoTradeCash {
		r, err := e.settlementRate(ctx, t, asset.Currency, acc.Currency, p.BaseCurrency)
		if err != nil {
			return Trade{}, err
		}
		linked = t.SettlementCash(asset.Currency, acc.Currency, r)
	}

	var res Trade
	err = e.retryAppend(ctx, p.ID, func(version int64) error {
		if t.Side == Sell {
			if err := e.checkReplay(ctx, p, asset, version, &t, nil); err != nil {
				return err
			}
		}
		var err error
		res, err = e.store.AppendTrade(ctx, t, linked, version)
		return err
	})
	if err != nil {
		return Trade{}, err
	}
	e.appended(p.ID, res.Date, res.Seq, "trade", res.ID)
	return res, nil
}

// settlementRate converts the asset currency into the account currency.
func (e *Engine) settlementRate(ctx context.Context, t Trade, assetCurrency, accountCurrency, base string) (decimal.Decimal, error) {
	if t.FXRate != nil && strings.EqualFold(accountCurrency, base) && !strings.EqualFold(assetCurrency, base) {
		return *t.FXRate, nil
	}
	r, ok, err := rate(ctx, e.store, assetCurrency, accountCurrency, t.Date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("settling trade in %s: %s/%s on %s: %w", accountCurrency, assetCurrency, accountCurrency, t.Date, ErrFXUnavailable)
	}
	return r, nil
}

// checkReplay replays asset as recorded at version, with the candidate
// trade or split inserted.
func (e *Engine) checkReplay(ctx context.Context, p Portfolio, asset Asset, version int64, t *Trade, sp *Split) error {
	trades, _, err := e.store.ListTrades(ctx, TradeQuery{Portfolio: p.ID, Asset: asset.ID, AtVersion: version})
	if err != nil {
		return fmt.Errorf("listing trades: %w", err)
	}
	cash, _, err := e.store.ListCashTransactions(ctx, CashQuery{Portfolio: p.ID, AtVersion: version})
	if err != nil {
		return fmt.Errorf("listing cash transactions: %w", err)
	}
	splits, _, err := e.store.ListSplits(ctx, SplitQuery{Portfolio: p.ID, Asset: asset.ID, AtVersion: version})
	if err != nil {
		return fmt.Errorf("listing splits: %w", err)
	}
	if t != nil {
		c := *t
		c.Seq = version + 1
		trades = append(trades, c)
	}
	if sp != nil {
		c := *sp
		c.Seq = version + 1
		splits = append(splits, c)
	}
	_, err = Replay(p.CostMethod, asset, trades, cash, splits, Date{})
	return err
}

// AppendCashTransaction validates and appends c.
func (e *Engine) AppendCashTransaction(ctx context.Context, c CashTransaction) (CashTransaction, error) {
	if typ, err := ParseCashType(string(c.Type)); err == nil {
		c.Type = typ
	}
	c.Currency = strings.ToUpper(c.Currency)
	if err := c.Validate(); err != nil {
		return CashTransaction{}, err
	}
	if _, err := e.store.Portfolio(ctx, c.Portfolio); err != nil {
		return CashTransaction{}, fmt.Errorf("portfolio %q: %w", c.Portfolio, err)
	}
	if _, err := e.account(ctx, c.Portfolio, c.Account); err != nil {
		return CashTransaction{}, err
	}
	if c.Asset != "" {
		if _, err := e.store.Asset(ctx, c.Asset); err != nil {
			return CashTransaction{}, fmt.Errorf("asset %q: %w", c.Asset, err)
		}
	}
	var res CashTransaction
	err := e.retryAppend(ctx, c.Portfolio, func(version int64) (err error) {
		res, err = e.store.AppendCashTransaction(ctx, c, version)
		return err
	})
	if err != nil {
		return CashTransaction{}, err
	}
	e.appended(res.Portfolio, res.Date, res.Seq, "cash", res.ID)
	return res, nil
}

// AppendSplit validates and appends s. A reverse split is rejected when it
// leaves a later SELL selling more shares than held.
func (e *Engine) AppendSplit(ctx context.Context, s Split) (Split, error) {
	if err := s.Validate(); err != nil {
		return Split{}, err
	}
	p, err := e.store.Portfolio(ctx, s.Portfolio)
	if err != nil {
		return Split{}, fmt.Errorf("portfolio %q: %w", s.Portfolio, err)
	}
	asset, err := e.store.Asset(ctx, s.Asset)
	if err != nil {
		return Split{}, fmt.Errorf("asset %q: %w", s.Asset, err)
	}
	var res Split
	err = e.retryAppend(ctx, s.Portfolio, func(version int64) error {
		// a reverse split can leave later sells uncovered
		if s.Numerator < s.Denominator {
			if err := e.checkReplay(ctx, p, asset, version, nil, &s); err != nil {
				return err
			}
		}
		var err error
		res, err = e.store.AppendSplit(ctx, s, version)
		return err
	})
	if err != nil {
		return Split{}, err
	}
	e.appended(res.Portfolio, res.Date, res.Seq, "split", res.ID)
	return res, nil
}

// ListTrades returns the trades of portfolio, optionally of one asset and
// dated on or before asOf, ordered by date then insertion.
func (e *Engine) ListTrades(ctx context.Context, portfolio, asset string, asOf Date) ([]Trade, error) {
	if _, err := e.store.Portfolio(ctx, portfolio); err != nil {
		return nil, fmt.Errorf("portfolio %q: %w", portfolio, err)
	}
	trades, _, err := e.store.ListTrades(ctx, TradeQuery{Portfolio: portfolio, Asset: asset, AsOf: asOf, AtVersion: Latest})
	return trades, err
}

// ListCashTransactions returns the cash transactions of portfolio dated in
// [from, to], either bound being optional.
func (e *Engine) ListCashTransactions(ctx context.Context, portfolio string, from, to Date) ([]CashTransaction, error) {
	if _, err := e.store.Portfolio(ctx, portfolio); err != nil {
		return nil, fmt.Errorf("portfolio %q: %w", portfolio, err)
	}
	cash, _, err := e.store.ListCashTransactions(ctx, CashQuery{Portfolio: portfolio, From: from, To: to, AtVersion: Latest})
	return cash, err
}

// CreatePortfolio validates and creates p.
func (e *Engine) CreatePortfolio(ctx context.Context, p Portfolio) (Portfolio, error) {
	p.BaseCurrency = strings.ToUpper(p.BaseCurrency)
	if err := p.Validate(); err != nil {
		return Portfolio{}, err
	}
	p.Version = 0
	return e.store.CreatePortfolio(ctx, p)
}

// CreateAccount validates and creates a.
func (e *Engine) CreateAccount(ctx context.Context, a Account) (Account, error) {
	a.Currency = strings.ToUpper(a.Currency)
	if err := a.Validate(); err != nil {
		return Account{}, err
	}
	if _, err := e.store.Portfolio(ctx, a.Portfolio); err != nil {
		return Account{}, fmt.Errorf("portfolio %q: %w", a.Portfolio, err)
	}
	return e.store.CreateAccount(ctx, a)
}

// PutAsset validates and declares or updates a.
func (e *Engine) PutAsset(ctx context.Context, a Asset) (Asset, error) {
	a.Currency = strings.ToUpper(a.Currency)
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	a.Exchange = strings.ToUpper(strings.TrimSpace(a.Exchange))
	typ, err := ParseAssetType(string(a.Type))
	if err != nil {
		return Asset{}, err
	}
	a.Type = typ
	if err := a.Validate(); err != nil {
		return Asset{}, err
	}
	res, err := e.store.PutAsset(ctx, a)
	if err != nil {
		return Asset{}, err
	}
	if e.holdingz != nil && a.ID != "" {
		// Positions carry the asset currency and symbol.
		e.holdingz.Flush()
	}
	return res, nil
}

// PutPrice records an external price.
func (e *Engine) PutPrice(ctx context.Context, q Quote) error {
	switch {
	case q.Asset == "":
		return invalid("asset_id", "is required")
	case q.Date.IsZero():
		return invalid("date", "is required")
	case q.Price.IsNegative():
		return invalid("price", "must not be negative, got %s", q.Price)
	}
	if _, err := e.store.Asset(ctx, q.Asset); err != nil {
		return fmt.Errorf("asset %q: %w", q.Asset, err)
	}
	return e.store.PutPrice(ctx, q)
}

// PutFXRate records an external exchange rate.
func (e *Engine) PutFXRate(ctx context.Context, r FXRate) error {
	r.From, r.To = strings.ToUpper(r.From), strings.ToUpper(r.To)
	switch {
	case !ValidCurrency(r.From):
		return invalid("from", "unknown currency %q", r.From)
	case !ValidCurrency(r.To):
		return invalid("to", "unknown currency %q", r.To)
	case r.From == r.To:
		return invalid("to", "must differ from %s", r.From)
	case r.Date.IsZero():
		return invalid("date", "is required")
	case !r.Rate.IsPositive():
		return invalid("rate", "must be positive, got %s", r.Rate)
	}
	return e.store.PutFXRate(ctx, r)
}

// Portfolio returns the portfolio id, with its current version.
func (e *Engine) Portfolio(ctx context.Context, id string) (Portfolio, error) {
	p, err := e.store.Portfolio(ctx, id)
	if err != nil {
		return Portfolio{}, fmt.Errorf("portfolio %q: %w", id, err)
	}
	return p, nil
}

// Portfolios lists every portfolio.
func (e *Engine) Portfolios(ctx context.Context) ([]Portfolio, error) {
	return e.store.Portfolios(ctx)
}

// Accounts lists the accounts of portfolio.
func (e *Engine) Accounts(ctx context.Context, portfolio string) ([]Account, error) {
	if _, err := e.Portfolio(ctx, portfolio); err != nil {
		return nil, err
	}
	return e.store.Accounts(ctx, portfolio)
}

// Asset returns the asset id.
func (e *Engine) Asset(ctx context.Context, id string) (Asset, error) {
	a, err := e.store.Asset(ctx, id)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q: %w", id, err)
	}
	return a, nil
}

// Assets lists every declared asset.
func (e *Engine) Assets(ctx context.Context) ([]Asset, error) {
	return e.store.Assets(ctx)
}
