package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex5/internal/backtest"
	"cortex5/internal/collector"
	"cortex5/internal/fund"
	"cortex5/internal/model"
	"cortex5/internal/recorder"
)

func newTestServer(t *testing.T, fetcher collector.Fetcher) http.Handler {
	t.Helper()
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	col := collector.NewCollector(fetcher, nil)
	col.MaxRetries = 0
	svc := &backtest.Service{Bars: col, Options: backtest.DefaultOptions()}
	defaults := model.BacktestConfig{Symbols: []string{"SPY"}, Interval: "1d", InitialCapital: 100000}
	return NewServer(":0", nil, NewHandler(svc, rec, defaults)).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(t, &collector.MockFetcher{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRunBacktestAndHistory(t *testing.T) {
	h := newTestServer(t, &collector.MockFetcher{Price: 100})

	w := do(t, h, http.MethodPost, "/api/v1/backtests",
		`{"symbols":["aapl","msft"],"start":"2023-01-01","end":"2023-12-31","initial_capital":50000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BacktestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Reports, 2)
	assert.Equal(t, "AAPL", resp.Reports[0].Symbol)
	assert.Equal(t, "COMPLETED", resp.Reports[0].Status)
	assert.Equal(t, 50000.0, resp.Reports[1].InitialCapital)
	require.NotNil(t, resp.Portfolio)
	assert.Equal(t, backtest.AggregateSymbol, resp.Portfolio.Symbol)
	require.Len(t, resp.RunIDs, 2)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	first := raw["reports"].([]any)[0].(map[string]any)
	for _, key := range []string{"total_return", "sharpe_ratio", "max_drawdown", "profit_factor", "equity_curve", "matched_trades", "rejections", "portfolio_summary"} {
		assert.Contains(t, first, key)
	}

	w = do(t, h, http.MethodGet, "/api/v1/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []recorder.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Runs, 2)

	w = do(t, h, http.MethodGet, "/api/v1/runs/"+jsonNumber(resp.RunIDs[0]), "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail recorder.RunDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "AAPL", detail.Symbol)
	assert.Equal(t, recorder.SourceAPI, detail.Source)
	assert.Len(t, detail.EquityCurve, len(resp.Reports[0].EquityCurve))
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestRunBacktestOverrides(t *testing.T) {
	h := newTestServer(t, &collector.MockFetcher{Price: 100})

	w := do(t, h, http.MethodPost, "/api/v1/backtests", `{"symbols":["AAPL"],"start":"2023-01-01","end":"2023-12-31","sentiment":0.2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp BacktestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Reports, 1)
	assert.Nil(t, resp.Portfolio)
	assert.Empty(t, resp.Reports[0].Fills)
	for _, d := range resp.Reports[0].Rejections {
		if d.Order.Side == model.SideBuy {
			assert.Equal(t, model.ReasonSentiment, d.Reason)
		}
	}

	w = do(t, h, http.MethodPost, "/api/v1/backtests",
		`{"symbols":["AAPL"],"start":"2023-01-01","end":"2023-12-31","sizing":{"policy":"fixed_shares","shares":5}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	for _, f := range resp.Reports[0].Fills {
		if f.Side == model.SideBuy {
			assert.Equal(t, int64(5), f.Quantity)
		}
	}
}

func TestServiceRiskOverrideSizer(t *testing.T) {
	pct := 0.2
	req := BacktestRequest{Risk: &RiskOverride{MaxPositionPct: &pct}}

	tests := []struct {
		name string
		base fund.Sizer
		want fund.Sizer
	}{
		{"unset", nil, nil},
		{"fixed fraction follows limit", fund.FixedFraction{Fraction: 0.1}, fund.FixedFraction{Fraction: 0.2}},
		{"fixed shares kept", fund.FixedShares{Shares: 7}, fund.FixedShares{Shares: 7}},
		{"kelly kept", fund.Kelly{WinRate: 0.6, WinLossRatio: 1.5, Cap: 0.25}, fund.Kelly{WinRate: 0.6, WinLossRatio: 1.5, Cap: 0.25}},
		{"equal weight kept", fund.EqualWeight{MaxPositions: 4}, fund.EqualWeight{MaxPositions: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := backtest.DefaultOptions()
			opts.Sizer = tt.base
			h := NewHandler(&backtest.Service{Options: opts}, nil, model.BacktestConfig{})

			svc, err := h.service(req)
			require.NoError(t, err)
			assert.Equal(t, 0.2, svc.Options.Risk.MaxPositionPct)
			assert.Equal(t, tt.want, svc.Options.Sizer)
			assert.Equal(t, tt.base, h.Service.Options.Sizer)
		})
	}
}

func TestRunBacktestErrors(t *testing.T) {
	ok := newTestServer(t, &collector.MockFetcher{Price: 100})
	tests := []struct {
		name    string
		handler http.Handler
		body    string
		status  int
		code    string
	}{
		{"malformed json", ok, `{"symbols":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad date", ok, `{"start":"2023/01/01"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"end before start", ok, `{"start":"2023-06-01","end":"2023-01-01"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad interval", ok, `{"interval":"5m"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad risk", ok, `{"risk":{"max_position_pct":2}}`, http.StatusBadRequest, "INVALID_CONFIG"},
		{"bad sizing", ok, `{"sizing":{"policy":"martingale"}}`, http.StatusBadRequest, "INVALID_CONFIG"},
		{"bad sentiment", ok, `{"sentiment":1.5}`, http.StatusBadRequest, "INVALID_CONFIG"},
		{"source down", newTestServer(t, &collector.MockFetcher{Err: assert.AnError}), `{"start":"2023-01-01"}`, http.StatusBadGateway, "DATA_SOURCE_ERROR"},
		{"no bars", newTestServer(t, &collector.MockFetcher{Bars: []model.OHLCV{}}), `{"start":"2023-01-01"}`, http.StatusBadRequest, "INVALID_BARS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, tt.handler, http.MethodPost, "/api/v1/backtests", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestRunLookupErrors(t *testing.T) {
	h := newTestServer(t, &collector.MockFetcher{})

	w := do(t, h, http.MethodGet, "/api/v1/runs/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/runs/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RUN_NOT_FOUND", decodeError(t, w).Code)

	w = do(t, h, http.MethodGet, "/api/v1/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/runs", "")
	assert.JSONEq(t, `{"runs":[]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Code)
}

func TestGetBars(t *testing.T) {
	h := newTestServer(t, &collector.MockFetcher{Price: 100})

	w := do(t, h, http.MethodGet, "/api/v1/bars/aapl?start=2024-01-01&end=2024-01-31", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Symbol string        `json:"symbol"`
		Bars   []model.OHLCV `json:"bars"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Symbol)
	assert.Len(t, resp.Bars, 23)

	w = do(t, h, http.MethodGet, "/api/v1/bars/AAPL?interval=2h", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, &collector.MockFetcher{})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/backtests", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost))
}
