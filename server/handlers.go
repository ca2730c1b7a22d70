package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	portfolio "github.com/etnz/portfolio-tracker"
	"github.com/etnz/portfolio-tracker/renderer"
)

// retryAfter is the Retry-After, in seconds, of retryable failures.
const retryAfter = "1"

// handleHealth returns the service status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "pcs",
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps err to its status code and writes it as {"error": ...}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	switch status {
	case http.StatusServiceUnavailable, http.StatusConflict:
		w.Header().Set("Retry-After", retryAfter)
	case http.StatusInternalServerError:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errorStatus returns the HTTP status of an engine error.
func errorStatus(err error) int {
	var retry *portfolio.RetryableError
	switch {
	case errors.Is(err, portfolio.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, portfolio.ErrInsufficientHoldings), errors.Is(err, portfolio.ErrInsufficientCash), errors.Is(err, portfolio.ErrPriceUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, portfolio.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, portfolio.ErrInconsistentSnapshot), errors.As(err, &retry):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads the JSON body of r into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &portfolio.ValidationError{Reason: fmt.Sprintf("malformed body: %v", err)}
	}
	return nil
}

// queryDate parses the optional date query parameter key. It accepts every
// format of portfolio.ParseDate.
func queryDate(r *http.Request, key string) (portfolio.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return portfolio.Date{}, nil
	}
	d, err := portfolio.ParseDate(v)
	if err != nil {
		return portfolio.Date{}, &portfolio.ValidationError{Field: key, Reason: err.Error()}
	}
	return d, nil
}

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Portfolios(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []portfolio.Portfolio{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var p portfolio.Portfolio
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.engine.CreatePortfolio(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Portfolio(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Accounts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []portfolio.Account{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var a portfolio.Account
	if err := decode(r, &a); err != nil {
		s.writeError(w, r, err)
		return
	}
	a.Portfolio = chi.URLParam(r, "id")
	a, err := s.engine.CreateAccount(r.Context(), a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	trades, err := s.engine.ListTrades(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("asset_id"), asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if trades == nil {
		trades = []portfolio.Trade{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleAppendTrade(w http.ResponseWriter, r *http.Request) {
	var t portfolio.Trade
	if err := decode(r, &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	t.Portfolio = chi.URLParam(r, "id")
	t, err := s.engine.AppendTrade(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListCash(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cash, err := s.engine.ListCashTransactions(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cash == nil {
		cash = []portfolio.CashTransaction{}
	}
	s.writeJSON(w, http.StatusOK, cash)
}

func (s *Server) handleAppendCash(w http.ResponseWriter, r *http.Request) {
	var c portfolio.CashTransaction
	if err := decode(r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	c.Portfolio = chi.URLParam(r, "id")
	c, err := s.engine.AppendCashTransaction(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleAppendSplit(w http.ResponseWriter, r *http.Request) {
	var sp portfolio.Split
	if err := decode(r, &sp); err != nil {
		s.writeError(w, r, err)
		return
	}
	sp.Portfolio = chi.URLParam(r, "id")
	sp, err := s.engine.AppendSplit(r.Context(), sp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	positions, err := s.engine.Positions(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if positions == nil {
		positions = []portfolio.Position{}
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	var dates [3]portfolio.Date
	for i, key := range []string{"from", "to", "as_of"} {
		d, err := queryDate(r, key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		dates[i] = d
	}
	summary, err := s.engine.PnLSummary(r.Context(), chi.URLParam(r, "id"), dates[0], dates[1], dates[2])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.engine.DashboardStats(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// dripRequest selects the cash dividends to reinvest.
type dripRequest struct {
	Asset string         `json:"asset_id"`
	Date  portfolio.Date `json:"date"`
}

func (s *Server) handleDRIP(w http.ResponseWriter, r *http.Request) {
	var req dripRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	trades, err := s.engine.AppendDRIP(r.Context(), chi.URLParam(r, "id"), req.Asset, req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if trades == nil {
		trades = []portfolio.Trade{}
	}
	s.writeJSON(w, http.StatusCreated, trades)
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if asOf.IsZero() {
		asOf = portfolio.Today()
	}
	id := chi.URLParam(r, "id")
	balance, err := s.engine.AccountCashBalance(r.Context(), id, asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"as_of":      asOf,
		"balance":    balance,
	})
}

// handleReport renders the dashboard, positions and performance since
// inception as an HTML page.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.engine.Report(ctx, id, asOf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := report.Portfolio
	md := renderer.RenderDashboard(p.Name, report.Dashboard) + "\n" +
		renderer.RenderPositions(report.Valuation) + "\n" +
		renderer.RenderPnL(report.PnL)
	page, err := renderer.Page(p.Name, md)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, page)
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Assets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []portfolio.Asset{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePutAsset(w http.ResponseWriter, r *http.Request) {
	var a portfolio.Asset
	if err := decode(r, &a); err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if a.ID == "" {
		status = http.StatusCreated
	}
	a, err := s.engine.PutAsset(r.Context(), a)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, status, a)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Asset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) handlePutPrice(w http.ResponseWriter, r *http.Request) {
	var q portfolio.Quote
	if err := decode(r, &q); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.PutPrice(r.Context(), q); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handlePutFXRate(w http.ResponseWriter, r *http.Request) {
	var rate portfolio.FXRate
	if err := decode(r, &rate); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.PutFXRate(r.Context(), rate); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rate)
}
