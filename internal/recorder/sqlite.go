package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"cortex5/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while runs are written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at      INTEGER NOT NULL,
			source          TEXT NOT NULL,
			symbol          TEXT NOT NULL,
			status          TEXT NOT NULL,
			start_ts        INTEGER,
			end_ts          INTEGER,
			interval        TEXT,
			initial_capital REAL,
			final_equity    REAL,
			total_return    REAL,
			cagr            REAL,
			sharpe_ratio    REAL,
			sortino_ratio   REAL,
			max_drawdown    REAL,
			win_rate        REAL,
			total_trades    INTEGER,
			rejections      INTEGER,
			error           TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			symbol      TEXT,
			side        TEXT,
			entry_ts    INTEGER,
			exit_ts     INTEGER,
			entry_price REAL,
			exit_price  REAL,
			quantity    INTEGER,
			pnl         REAL,
			pnl_pct     REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,

		`CREATE TABLE IF NOT EXISTS equity_points (
			run_id         INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			timestamp      INTEGER NOT NULL,
			equity         REAL,
			cash           REAL,
			position_value REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_run ON equity_points(run_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			timestamp INTEGER,
			symbol    TEXT,
			side      TEXT,
			quantity  INTEGER,
			price     REAL,
			reason    TEXT,
			detail    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func unix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

// RecordRun stores a completed run with its trades, equity curve and
// rejected orders in one transaction.
func (r *SQLiteRecorder) RecordRun(source string, rep *model.Report) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	m := rep.Metrics
	res, err := tx.Exec(`INSERT INTO runs
		(created_at, source, symbol, status, start_ts, end_ts, interval, initial_capital,
		 final_equity, total_return, cagr, sharpe_ratio, sortino_ratio, max_drawdown,
		 win_rate, total_trades, rejections)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), source, rep.Symbol, rep.Status, unix(rep.Start), unix(rep.End),
		rep.Interval, rep.InitialCapital,
		m.FinalEquity, m.TotalReturn, m.CAGR, m.SharpeRatio, m.SortinoRatio, m.MaxDrawdown,
		m.WinRate, m.TotalTrades, len(rep.Rejections),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	for _, t := range rep.MatchedTrades {
		if _, err := tx.Exec(`INSERT INTO trades
			(run_id, symbol, side, entry_ts, exit_ts, entry_price, exit_price, quantity, pnl, pnl_pct)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			id, t.Symbol, t.Side, unix(t.EntryDate), unix(t.ExitDate),
			t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL, t.PnLPct,
		); err != nil {
			return 0, fmt.Errorf("insert trade: %w", err)
		}
	}
	for _, p := range rep.EquityCurve {
		if _, err := tx.Exec(`INSERT INTO equity_points
			(run_id, timestamp, equity, cash, position_value) VALUES (?,?,?,?,?)`,
			id, p.Time.Unix(), p.Equity, p.Cash, p.PositionValue,
		); err != nil {
			return 0, fmt.Errorf("insert equity point: %w", err)
		}
	}
	for _, d := range rep.Rejections {
		o := d.Order
		if _, err := tx.Exec(`INSERT INTO decisions
			(run_id, timestamp, symbol, side, quantity, price, reason, detail)
			VALUES (?,?,?,?,?,?,?,?)`,
			id, unix(o.Time), o.Symbol, string(o.Side), o.Quantity, o.Price, string(d.Reason), d.Detail,
		); err != nil {
			return 0, fmt.Errorf("insert decision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// RecordFailure stores a run that never completed.
func (r *SQLiteRecorder) RecordFailure(source, symbol string, cfg model.BacktestConfig, cause error) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := r.db.Exec(`INSERT INTO runs
		(created_at, source, symbol, status, start_ts, end_ts, interval, initial_capital, error)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), source, symbol, "FAILED", unix(cfg.Start), unix(cfg.End),
		cfg.Interval, cfg.InitialCapital, msg,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

const summaryColumns = `id, created_at, source, symbol, status, start_ts, end_ts, interval,
	initial_capital, final_equity, total_return, sharpe_ratio, max_drawdown,
	total_trades, rejections, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(s scanner) (RunSummary, error) {
	var (
		rs                   RunSummary
		created              int64
		start, end           sql.NullInt64
		interval, errMsg     sql.NullString
		capital, equity, ret sql.NullFloat64
		sharpe, mdd          sql.NullFloat64
		trades, rejections   sql.NullInt64
	)
	err := s.Scan(&rs.ID, &created, &rs.Source, &rs.Symbol, &rs.Status, &start, &end, &interval,
		&capital, &equity, &ret, &sharpe, &mdd, &trades, &rejections, &errMsg)
	if err != nil {
		return rs, err
	}
	rs.CreatedAt = time.Unix(created, 0).UTC()
	rs.Start, rs.End = fromUnix(start), fromUnix(end)
	rs.Interval = interval.String
	rs.InitialCapital = capital.Float64
	rs.FinalEquity = equity.Float64
	rs.TotalReturn = ret.Float64
	rs.SharpeRatio = sharpe.Float64
	rs.MaxDrawdown = mdd.Float64
	rs.TotalTrades = int(trades.Int64)
	rs.RejectedOrders = int(rejections.Int64)
	rs.Error = errMsg.String
	return rs, nil
}

// ListRuns returns the most recent runs first.
func (r *SQLiteRecorder) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT `+summaryColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		rs, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// GetRun loads one run with its trades, equity curve and rejections.
func (r *SQLiteRecorder) GetRun(id int64) (*RunDetail, error) {
	rs, err := scanSummary(r.db.QueryRow(`SELECT `+summaryColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run %d: %w", id, err)
	}
	d := &RunDetail{
		RunSummary:  rs,
		Trades:      []model.Trade{},
		Rejections:  []model.Decision{},
		EquityCurve: []model.EquityPoint{},
	}

	if err := r.loadTrades(d); err != nil {
		return nil, err
	}
	if err := r.loadEquity(d); err != nil {
		return nil, err
	}
	if err := r.loadDecisions(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *SQLiteRecorder) loadTrades(d *RunDetail) error {
	rows, err := r.db.Query(`SELECT symbol, side, entry_ts, exit_ts, entry_price, exit_price, quantity, pnl, pnl_pct
		FROM trades WHERE run_id = ? ORDER BY id`, d.ID)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t model.Trade
		var entry, exit sql.NullInt64
		if err := rows.Scan(&t.Symbol, &t.Side, &entry, &exit, &t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.PnL, &t.PnLPct); err != nil {
			return fmt.Errorf("scan trade: %w", err)
		}
		t.EntryDate, t.ExitDate = fromUnix(entry), fromUnix(exit)
		d.Trades = append(d.Trades, t)
	}
	return rows.Err()
}

func (r *SQLiteRecorder) loadEquity(d *RunDetail) error {
	rows, err := r.db.Query(`SELECT timestamp, equity, cash, position_value
		FROM equity_points WHERE run_id = ? ORDER BY timestamp`, d.ID)
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.EquityPoint
		var ts int64
		if err := rows.Scan(&ts, &p.Equity, &p.Cash, &p.PositionValue); err != nil {
			return fmt.Errorf("scan equity point: %w", err)
		}
		p.Time = time.Unix(ts, 0).UTC()
		d.EquityCurve = append(d.EquityCurve, p)
	}
	return rows.Err()
}

func (r *SQLiteRecorder) loadDecisions(d *RunDetail) error {
	rows, err := r.db.Query(`SELECT timestamp, symbol, side, quantity, price, reason, detail
		FROM decisions WHERE run_id = ? ORDER BY id`, d.ID)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dec model.Decision
		var ts sql.NullInt64
		var side, reason string
		if err := rows.Scan(&ts, &dec.Order.Symbol, &side, &dec.Order.Quantity, &dec.Order.Price, &reason, &dec.Detail); err != nil {
			return fmt.Errorf("scan decision: %w", err)
		}
		dec.Order.Time = fromUnix(ts)
		dec.Order.Side = model.Side(side)
		dec.Reason = model.RejectReason(reason)
		d.Rejections = append(d.Rejections, dec)
	}
	return rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
