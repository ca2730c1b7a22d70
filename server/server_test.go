package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/sqlstore"
)

var databases atomic.Int64

func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := fmt.Sprintf("file:server%d?mode=memory&cache=shared", databases.Add(1))
	store, err := sqlstore.Open(sqlstore.Config{Path: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(Config{
		Port:   0,
		Log:    zerolog.Nop(),
		Engine: portfolio.NewEngine(store, portfolio.DefaultOptions()),
	})
}

// do serves one request; body is encoded as JSON unless it is a string.
func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// expect checks the status of rec and decodes its body into v.
func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, v any) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var got map[string]any
	expect(t, do(t, s, http.MethodGet, "/health", nil), http.StatusOK, &got)
	assert.Equal(t, "healthy", got["status"])
}

func TestPortfolioFlow(t *testing.T) {
	s := newTestServer(t)

	var p portfolio.Portfolio
	expect(t, do(t, s, http.MethodPost, "/api/portfolios", map[string]any{
		"name": "Main", "base_currency": "usd", "cost_method": "FIFO",
	}), http.StatusCreated, &p)
	require.NotEmpty(t, p.ID)
	assert.Equal(t, "USD", p.BaseCurrency)
	assert.Equal(t, portfolio.FIFO, p.CostMethod)
	base := "/api/portfolios/" + p.ID

	var acc portfolio.Account
	expect(t, do(t, s, http.MethodPost, base+"/accounts", map[string]any{
		"name": "broker", "currency": "USD",
	}), http.StatusCreated, &acc)
	assert.Equal(t, p.ID, acc.Portfolio)

	var asset portfolio.Asset
	expect(t, do(t, s, http.MethodPost, "/api/assets", map[string]any{
		"symbol": "aapl", "exchange": "nasdaq", "type": "stock", "currency": "USD",
	}), http.StatusCreated, &asset)
	require.NotEmpty(t, asset.ID)
	assert.Equal(t, "AAPL.NASDAQ", asset.Ticker())

	expect(t, do(t, s, http.MethodPost, base+"/cash-transactions", map[string]any{
		"account_id": acc.ID, "date": "2024-01-01", "type": "deposit", "amount": "10000", "currency": "USD",
	}), http.StatusCreated, nil)

	var trade portfolio.Trade
	expect(t, do(t, s, http.MethodPost, base+"/trades", map[string]any{
		"account_id": acc.ID, "asset_id": asset.ID, "date": "2024-01-02", "side": "buy", "quantity": "10", "price": "150",
	}), http.StatusCreated, &trade)
	assert.Equal(t, int64(2), trade.Seq)
	assert.Equal(t, portfolio.Buy, trade.Side)

	rec := do(t, s, http.MethodPost, base+"/trades", map[string]any{
		"account_id": acc.ID, "asset_id": asset.ID, "date": "2024-01-03", "side": "sell", "quantity": "20", "price": "150",
	})
	expect(t, rec, http.StatusUnprocessableEntity, nil)
	assert.Contains(t, rec.Body.String(), "insufficient holdings")

	expect(t, do(t, s, http.MethodPost, "/api/prices", map[string]any{
		"asset_id": asset.ID, "date": "2024-01-03", "price": "160",
	}), http.StatusCreated, nil)

	var trades []portfolio.Trade
	expect(t, do(t, s, http.MethodGet, base+"/trades?asset_id="+asset.ID, nil), http.StatusOK, &trades)
	assert.Len(t, trades, 1, "the rejected sell is not in the ledger")

	var cash []portfolio.CashTransaction
	expect(t, do(t, s, http.MethodGet, base+"/cash-transactions?from=2024-01-02", nil), http.StatusOK, &cash)
	require.Len(t, cash, 1)
	assert.Equal(t, portfolio.TradeExpense, cash[0].Type)
	assert.Equal(t, trade.ID, cash[0].TradeID)

	var positions []portfolio.Position
	expect(t, do(t, s, http.MethodGet, base+"/positions?as_of=2024-01-03", nil), http.StatusOK, &positions)
	require.Len(t, positions, 1)
	require.NotNil(t, positions[0].MarketValue)
	assert.Equal(t, "1600.00", positions[0].MarketValue.Decimal().StringFixed(2))
	assert.Equal(t, "100.00", positions[0].Unrealized.Decimal().StringFixed(2))

	var pnl portfolio.PnLSummary
	expect(t, do(t, s, http.MethodGet, base+"/pnl?from=2024-01-01&as_of=2024-01-03", nil), http.StatusOK, &pnl)
	assert.Equal(t, "100.00", pnl.TotalReturn.Decimal().StringFixed(2))
	assert.Equal(t, portfolio.NewDate(2024, 1, 3), pnl.To)
	assert.Equal(t, int64(2), pnl.Version)

	var stats portfolio.DashboardStats
	expect(t, do(t, s, http.MethodGet, base+"/dashboard?as_of=2024-01-03", nil), http.StatusOK, &stats)
	assert.Equal(t, "10100.00", stats.TotalNetWorth.Decimal().StringFixed(2))
	assert.Equal(t, "8500.00", stats.CashBalance.Decimal().StringFixed(2))
	assert.Equal(t, portfolio.NewDate(2024, 1, 2), stats.PriorAsOf)

	rec = do(t, s, http.MethodGet, base+"/report?as_of=2024-01-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, rec.Body.String(), "<h1>Main on 2024-01-03</h1>")
	assert.Contains(t, rec.Body.String(), "AAPL.NASDAQ")

	var list []portfolio.Portfolio
	expect(t, do(t, s, http.MethodGet, "/api/portfolios", nil), http.StatusOK, &list)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].Version)
}

func TestSplitRoute(t *testing.T) {
	s := newTestServer(t)
	var p portfolio.Portfolio
	expect(t, do(t, s, http.MethodPost, "/api/portfolios", map[string]any{"name": "Main", "base_currency": "EUR"}), http.StatusCreated, &p)
	var asset portfolio.Asset
	expect(t, do(t, s, http.MethodPost, "/api/assets", map[string]any{"symbol": "sap", "currency": "EUR"}), http.StatusCreated, &asset)

	var sp portfolio.Split
	expect(t, do(t, s, http.MethodPost, "/api/portfolios/"+p.ID+"/splits", map[string]any{
		"asset_id": asset.ID, "date": "2024-05-01", "numerator": 2, "denominator": 1,
	}), http.StatusCreated, &sp)
	assert.Equal(t, int64(1), sp.Seq)

	expect(t, do(t, s, http.MethodPost, "/api/portfolios/"+p.ID+"/splits", map[string]any{
		"asset_id": asset.ID, "date": "2024-05-01", "numerator": 0, "denominator": 1,
	}), http.StatusBadRequest, nil)
}

func TestDRIPRoute(t *testing.T) {
	s := newTestServer(t)
	var p portfolio.Portfolio
	expect(t, do(t, s, http.MethodPost, "/api/portfolios", map[string]any{"name": "Main", "base_currency": "USD"}), http.StatusCreated, &p)
	base := "/api/portfolios/" + p.ID
	var acc portfolio.Account
	expect(t, do(t, s, http.MethodPost, base+"/accounts", map[string]any{"name": "broker", "currency": "USD"}), http.StatusCreated, &acc)
	var asset portfolio.Asset
	expect(t, do(t, s, http.MethodPost, "/api/assets", map[string]any{"symbol": "ko", "exchange": "nyse", "currency": "USD"}), http.StatusCreated, &asset)

	expect(t, do(t, s, http.MethodPost, "/api/prices", map[string]any{
		"asset_id": asset.ID, "date": "2024-04-01", "price": "60",
	}), http.StatusCreated, nil)
	expect(t, do(t, s, http.MethodPost, base+"/cash-transactions", map[string]any{
		"account_id": acc.ID, "asset_id": asset.ID, "date": "2024-04-01", "type": "dividend_cash",
		"amount": "150", "withholding_tax": "30", "currency": "USD",
	}), http.StatusCreated, nil)

	var trades []portfolio.Trade
	expect(t, do(t, s, http.MethodPost, base+"/drip", map[string]any{"asset_id": asset.ID, "date": "2024-04-01"}), http.StatusCreated, &trades)
	require.Len(t, trades, 1)
	assert.Equal(t, "2", trades[0].Quantity.String())
	expect(t, do(t, s, http.MethodPost, base+"/drip", map[string]any{"asset_id": asset.ID, "date": "2024-04-01"}), http.StatusCreated, &trades)
	assert.Empty(t, trades)

	var balance struct {
		Balance portfolio.Money `json:"balance"`
	}
	expect(t, do(t, s, http.MethodGet, "/api/accounts/"+acc.ID+"/balance?as_of=2024-04-01", nil), http.StatusOK, &balance)
	assert.True(t, balance.Balance.IsZero(), "got %s", balance.Balance)

	expect(t, do(t, s, http.MethodPost, base+"/drip", map[string]any{"asset_id": asset.ID, "date": "2024-03-01"}), http.StatusUnprocessableEntity, nil)
	expect(t, do(t, s, http.MethodGet, "/api/accounts/nope/balance", nil), http.StatusNotFound, nil)
}

func TestErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown portfolio", http.MethodGet, "/api/portfolios/nope", nil, http.StatusNotFound},
		{"unknown asset", http.MethodGet, "/api/assets/nope", nil, http.StatusNotFound},
		{"positions of unknown portfolio", http.MethodGet, "/api/portfolios/nope/positions", nil, http.StatusNotFound},
		{"malformed body", http.MethodPost, "/api/portfolios", "{", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/portfolios", `{"title":"x"}`, http.StatusBadRequest},
		{"invalid currency", http.MethodPost, "/api/portfolios", `{"name":"x","base_currency":"XYZ"}`, http.StatusBadRequest},
		{"malformed date", http.MethodGet, "/api/portfolios/nope/pnl?from=yesterday", nil, http.StatusBadRequest},
		{"invalid rate", http.MethodPost, "/api/fx-rates", `{"from":"EUR","to":"USD","date":"2024-01-01","rate":"0"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]string
			expect(t, do(t, s, tt.method, tt.path, tt.body), tt.status, &got)
			assert.NotEmpty(t, got["error"])
		})
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&portfolio.ValidationError{Field: "x", Reason: "y"}, http.StatusBadRequest},
		{fmt.Errorf("appending: %w", &portfolio.InsufficientHoldingsError{}), http.StatusUnprocessableEntity},
		{fmt.Errorf("portfolio %q: %w", "p", portfolio.ErrNotFound), http.StatusNotFound},
		{&portfolio.RetryableError{Attempts: 5, Err: portfolio.ErrVersionConflict}, http.StatusConflict},
		{&portfolio.RetryableError{Attempts: 3, Err: portfolio.ErrInconsistentSnapshot}, http.StatusServiceUnavailable},
		{fmt.Errorf("reinvesting: %w", &portfolio.InsufficientCashError{}), http.StatusUnprocessableEntity},
		{portfolio.ErrPriceUnavailable, http.StatusUnprocessableEntity},
		{portfolio.ErrFXUnavailable, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestRetryAfter(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), &portfolio.RetryableError{Attempts: 3, Err: portfolio.ErrInconsistentSnapshot})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, retryAfter, rec.Header().Get("Retry-After"))
}
