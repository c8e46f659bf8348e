package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cortex5/internal/backtest"
	"cortex5/internal/collector"
	"cortex5/internal/config"
	"cortex5/internal/fund"
	"cortex5/internal/model"
	"cortex5/internal/recorder"
	"cortex5/internal/report"
	"cortex5/internal/sentiment"
)

const dateLayout = "2006-01-02"

// Handler serves the backtest endpoints.
type Handler struct {
	Service  *backtest.Service
	Recorder recorder.Recorder
	// Defaults fill fields a request leaves out.
	Defaults model.BacktestConfig
	// Timeout bounds one backtest request; zero means none.
	Timeout time.Duration
}

// NewHandler creates a handler. rec may be nil.
func NewHandler(svc *backtest.Service, rec recorder.Recorder, defaults model.BacktestConfig) *Handler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Handler{Service: svc, Recorder: rec, Defaults: defaults}
}

// RunBacktest handles POST /api/v1/backtests
func (h *Handler) RunBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	cfg, err := h.requestConfig(req)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	svc, err := h.service(req)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
		return
	}

	ctx := c.Request.Context()
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	results, agg, err := svc.Run(ctx, cfg)
	if err != nil {
		if _, rerr := h.Recorder.RecordFailure(recorder.SourceAPI, strings.Join(cfg.Symbols, ","), cfg, err); rerr != nil {
			log.Printf("[ERROR] record failure: %v", rerr)
		}
		abortWithRunError(c, err)
		return
	}

	resp := BacktestResponse{Reports: make([]model.Report, len(results)), RunIDs: []int64{}}
	for i, res := range results {
		resp.Reports[i] = report.Build(res)
		id, err := h.Recorder.RecordRun(recorder.SourceAPI, &resp.Reports[i])
		if err != nil {
			log.Printf("[ERROR] record run %s: %v", res.Symbol, err)
			continue
		}
		resp.RunIDs = append(resp.RunIDs, id)
	}
	if agg != nil {
		rep := report.Build(agg)
		resp.Portfolio = &rep
	}
	c.JSON(http.StatusOK, resp)
}

func parseDate(field, s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: want YYYY-MM-DD, got %q", field, s)
	}
	return t, nil
}

// requestConfig merges the request with the defaults.
func (h *Handler) requestConfig(req BacktestRequest) (model.BacktestConfig, error) {
	cfg := h.Defaults
	if len(req.Symbols) > 0 {
		cfg.Symbols = config.SplitSymbols(strings.Join(req.Symbols, ","))
	}
	var err error
	if cfg.Start, err = parseDate("start", req.Start, cfg.Start); err != nil {
		return cfg, err
	}
	if cfg.End, err = parseDate("end", req.End, cfg.End); err != nil {
		return cfg, err
	}
	if req.Interval != "" {
		cfg.Interval = req.Interval
	}
	if req.InitialCapital != 0 {
		cfg.InitialCapital = req.InitialCapital
	}
	return cfg, config.ValidateBacktest(cfg)
}

// service applies request overrides to a copy of the base service.
func (h *Handler) service(req BacktestRequest) (*backtest.Service, error) {
	svc := *h.Service
	opts := svc.Options

	if r := req.Risk; r != nil {
		if r.MaxPositionPct != nil {
			opts.Risk.MaxPositionPct = *r.MaxPositionPct
		}
		if r.MaxVolatility != nil {
			opts.Risk.MaxVolatility = *r.MaxVolatility
		}
		if r.MinSentimentScore != nil {
			opts.Risk.MinSentimentScore = *r.MinSentimentScore
		}
		if err := opts.Risk.Validate(); err != nil {
			return nil, fmt.Errorf("risk: %w", err)
		}
		// A fixed fraction sizer follows the position limit; other
		// configured policies are kept.
		if req.Sizing == nil && r.MaxPositionPct != nil && opts.Sizer != nil && opts.Sizer.Name() == "fixed_fraction" {
			opts.Sizer = fund.FixedFraction{Fraction: opts.Risk.MaxPositionPct}
		}
	}
	if s := req.Sizing; s != nil {
		sizer, err := fund.NewSizer(s.Policy, s.SizerParams)
		if err != nil {
			return nil, fmt.Errorf("sizing: %w", err)
		}
		opts.Sizer = sizer
	}
	if req.Sentiment != nil {
		src, err := sentiment.NewConstant(*req.Sentiment)
		if err != nil {
			return nil, err
		}
		svc.Sentiment = src
	}
	svc.Options = opts
	return &svc, nil
}

// ListRuns handles GET /api/v1/runs
func (h *Handler) ListRuns(c *gin.Context) {
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}
	runs, err := h.Recorder.ListRuns(limit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "RECORDER_ERROR", err.Error(), nil)
		return
	}
	if runs == nil {
		runs = []recorder.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun handles GET /api/v1/runs/:id
func (h *Handler) GetRun(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", "run id must be an integer", nil)
		return
	}
	run, err := h.Recorder.GetRun(id)
	if errors.Is(err, recorder.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, "RUN_NOT_FOUND", err.Error(), map[string]any{"id": id})
		return
	}
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "RECORDER_ERROR", err.Error(), nil)
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetBars handles GET /api/v1/bars/:symbol
func (h *Handler) GetBars(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	start, err := parseDate("start", c.Query("start"), time.Time{})
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	end, err := parseDate("end", c.Query("end"), time.Time{})
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	interval := c.DefaultQuery("interval", h.Defaults.Interval)
	if err := collector.ValidateInterval(interval); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	bars, err := h.Service.Bars.Load(c.Request.Context(), symbol, start, end, interval)
	if err != nil {
		abortWithRunError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "bars": bars})
}

// abortWithRunError maps the failure taxonomy onto HTTP statuses.
func abortWithRunError(c *gin.Context, err error) {
	var (
		ve  *collector.ValidationError
		se  *collector.SourceError
		sse *sentiment.SourceError
		fe  *fund.FillError
	)
	switch {
	case errors.As(err, &ve):
		abortWithError(c, http.StatusBadRequest, "INVALID_BARS", err.Error(), map[string]any{
			"symbol": ve.Symbol, "index": ve.Index, "reason": ve.Reason,
		})
	case errors.As(err, &se):
		abortWithError(c, http.StatusBadGateway, "DATA_SOURCE_ERROR", err.Error(), map[string]any{
			"source": se.Source, "symbol": se.Symbol,
		})
	case errors.As(err, &sse):
		abortWithError(c, http.StatusBadGateway, "DATA_SOURCE_ERROR", err.Error(), map[string]any{
			"source": "sentiment:" + sse.Source, "symbol": sse.Symbol,
		})
	case errors.Is(err, context.DeadlineExceeded):
		abortWithError(c, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), nil)
	case errors.As(err, &fe):
		abortWithError(c, http.StatusInternalServerError, "LEDGER_ERROR", err.Error(), nil)
	default:
		abortWithError(c, http.StatusInternalServerError, "BACKTEST_FAILED", err.Error(), nil)
	}
}
