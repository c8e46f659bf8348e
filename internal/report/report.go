// Package report serialises backtest results with stable field names.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cortex5/internal/backtest"
	"cortex5/internal/model"
)

// Build converts a run result into its serialisable report.
func Build(res *backtest.Result) model.Report {
	r := model.Report{
		Symbol:           res.Symbol,
		Status:           string(res.State),
		Start:            res.Config.Start,
		End:              res.Config.End,
		Interval:         res.Config.Interval,
		InitialCapital:   res.Config.InitialCapital,
		Bars:             res.Bars,
		Metrics:          res.Metrics,
		EquityCurve:      res.EquityCurve,
		MatchedTrades:    res.Trades,
		Fills:            res.Fills,
		Rejections:       res.Rejections(),
		PortfolioSummary: res.Portfolio,
	}
	if len(res.EquityCurve) > 0 {
		if r.Start.IsZero() {
			r.Start = res.EquityCurve[0].Time
		}
		if r.End.IsZero() {
			r.End = res.EquityCurve[len(res.EquityCurve)-1].Time
		}
	}
	// Empty lists serialise as [] rather than null.
	if r.EquityCurve == nil {
		r.EquityCurve = []model.EquityPoint{}
	}
	if r.MatchedTrades == nil {
		r.MatchedTrades = []model.Trade{}
	}
	if r.Fills == nil {
		r.Fills = []model.Fill{}
	}
	if r.Rejections == nil {
		r.Rejections = []model.Decision{}
	}
	return r
}

// Encode writes reports as indented JSON.
func Encode(w io.Writer, reports []model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// WriteJSON writes reports to path, creating parent directories.
func WriteJSON(path string, reports []model.Report) error {
	return writeFile(path, func(w io.Writer) error { return Encode(w, reports) })
}

// WriteEquityCSV writes the equity curve as timestamp,equity,cash,position_value.
func WriteEquityCSV(path string, curve []model.EquityPoint) error {
	return writeFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"timestamp", "equity", "cash", "position_value"}); err != nil {
			return err
		}
		for _, p := range curve {
			if err := cw.Write([]string{
				p.Time.Format(time.RFC3339), num(p.Equity), num(p.Cash), num(p.PositionValue),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteTradesCSV writes closed trades, one row each.
func WriteTradesCSV(path string, trades []model.Trade) error {
	return writeFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		header := []string{"symbol", "side", "entry_date", "exit_date", "entry_price", "exit_price", "quantity", "pnl", "pnl_pct"}
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, t := range trades {
			if err := cw.Write([]string{
				t.Symbol,
				t.Side,
				t.EntryDate.Format(time.RFC3339),
				t.ExitDate.Format(time.RFC3339),
				num(t.EntryPrice),
				num(t.ExitPrice),
				strconv.FormatInt(t.Quantity, 10),
				num(t.PnL),
				num(t.PnLPct),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
