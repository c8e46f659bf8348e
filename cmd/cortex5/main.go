package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cortex5/internal/api"
	"cortex5/internal/backtest"
	"cortex5/internal/config"
	"cortex5/internal/fund"
	"cortex5/internal/model"
	"cortex5/internal/notifier"
	"cortex5/internal/recorder"
	"cortex5/internal/report"
	"cortex5/internal/scheduler"
)

const usage = `cortex5 - rule based equity backtester

Usage:
  cortex5 <command> [flags]

Commands:
  backtest   run a backtest and write reports
  fetch      download bars into the local store
  symbols    list symbols held by the local store
  serve      start the HTTP API, scheduler and Telegram bot
  help       show this message

Every command accepts -config (default configs/config.yaml, or $CONFIG_PATH).
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "backtest":
		err = cmdBacktest(os.Args[2:])
	case "fetch":
		err = cmdFetch(os.Args[2:])
	case "symbols":
		err = cmdSymbols(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("[FATAL] %s: %v", os.Args[1], err)
	}
}

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

// overrides are the run flags shared by backtest and fetch.
type overrides struct {
	symbols  string
	start    string
	end      string
	interval string
}

func (o *overrides) register(fs *flag.FlagSet) {
	fs.StringVar(&o.symbols, "symbols", "", "comma separated symbols (overrides backtest.symbols)")
	fs.StringVar(&o.start, "start", "", "first day, YYYY-MM-DD")
	fs.StringVar(&o.end, "end", "", "last day, YYYY-MM-DD")
	fs.StringVar(&o.interval, "interval", "", "bar interval: 1d, 1wk or 1h")
}

func (o *overrides) apply(cfg *config.Config) {
	if o.symbols != "" {
		cfg.Backtest.Symbols = config.SplitSymbols(o.symbols)
	}
	if o.start != "" {
		cfg.Backtest.Start = o.start
	}
	if o.end != "" {
		cfg.Backtest.End = o.end
	}
	if o.interval != "" {
		cfg.Backtest.Interval = o.interval
	}
}

func cmdBacktest(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	capital := fs.Float64("capital", 0, "initial capital (overrides backtest.initial_capital)")
	outDir := fs.String("out", "", "report directory (overrides backtest.output_dir)")
	verbose := fs.Bool("verbose", false, "log every signal, decision and fill")
	var ov overrides
	ov.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	ov.apply(cfg)
	if *capital > 0 {
		cfg.Backtest.InitialCapital = *capital
	}
	if *outDir != "" {
		cfg.Backtest.OutputDir = *outDir
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if *verbose {
		a.service.Options.Observer = backtest.LogObserver{}
	}

	bc, err := cfg.BacktestConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("[INFO] backtesting %s (%s)", strings.Join(bc.Symbols, ","), bc.Interval)
	results, portfolio, err := a.service.Run(ctx, bc)
	if err != nil {
		if _, recErr := a.recorder.RecordFailure(recorder.SourceCLI, strings.Join(bc.Symbols, ","), bc, err); recErr != nil {
			log.Printf("[WARN] record failure: %v", recErr)
		}
		return err
	}

	reports := make([]model.Report, 0, len(results)+1)
	for _, res := range results {
		reports = append(reports, report.Build(res))
	}
	if portfolio != nil {
		reports = append(reports, report.Build(portfolio))
	}
	for i := range reports {
		if _, err := a.recorder.RecordRun(recorder.SourceCLI, &reports[i]); err != nil {
			log.Printf("[WARN] record run %s: %v", reports[i].Symbol, err)
		}
	}

	if err := writeReports(cfg.Backtest.OutputDir, reports); err != nil {
		return err
	}
	printSummary(os.Stdout, reports)
	return nil
}

// writeReports writes report.json plus per-report equity, trades and
// final portfolio files.
func writeReports(dir string, reports []model.Report) error {
	if err := report.WriteJSON(filepath.Join(dir, "report.json"), reports); err != nil {
		return err
	}
	for _, r := range reports {
		name := strings.ToLower(r.Symbol)
		if err := report.WriteEquityCSV(filepath.Join(dir, name+"_equity.csv"), r.EquityCurve); err != nil {
			return err
		}
		if err := report.WriteTradesCSV(filepath.Join(dir, name+"_trades.csv"), r.MatchedTrades); err != nil {
			return err
		}
		if err := fund.SaveSnapshot(filepath.Join(dir, name+"_portfolio.json"), r.PortfolioSummary); err != nil {
			return fmt.Errorf("save portfolio %s: %w", r.Symbol, err)
		}
	}
	log.Printf("[INFO] reports written to %s", dir)
	return nil
}

func printSummary(w io.Writer, reports []model.Report) {
	fmt.Fprintf(w, "%-10s %14s %14s %9s %8s %9s %7s %9s\n",
		"SYMBOL", "INITIAL", "FINAL", "RETURN", "SHARPE", "MAX DD", "TRADES", "REJECTED")
	for _, r := range reports {
		fmt.Fprintf(w, "%-10s %14.2f %14.2f %8.2f%% %8.2f %8.2f%% %7d %9d\n",
			r.Symbol, r.InitialCapital, r.FinalEquity, r.TotalReturn*100,
			r.SharpeRatio, r.MaxDrawdown*100, r.TotalTrades, len(r.Rejections))
	}
}

func cmdFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	var ov overrides
	ov.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	ov.apply(cfg)
	if cfg.Store.Driver == "none" {
		return errors.New("fetch needs store.driver parquet or postgres")
	}
	if cfg.DataSource.Provider == "store" {
		return errors.New("fetch needs a remote data_source.provider")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	bc, err := cfg.BacktestConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := cfg.WarmupStart(bc.Start)
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Backtest.Parallelism > 0 {
		g.SetLimit(cfg.Backtest.Parallelism)
	}
	for _, sym := range bc.Symbols {
		g.Go(func() error {
			bars, err := a.collector.Load(gctx, sym, start, bc.End, bc.Interval)
			if err != nil {
				return err
			}
			log.Printf("[INFO] %s: %d bars from %s to %s", sym, len(bars),
				bars[0].Time.Format(time.DateOnly), bars[len(bars)-1].Time.Format(time.DateOnly))
			return nil
		})
	}
	return g.Wait()
}

func cmdSymbols(args []string) error {
	fs := flag.NewFlagSet("symbols", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	st, err := buildStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("no bar store configured")
	}
	defer closeStore(st)

	symbols, err := st.ListSymbols(context.Background())
	if err != nil {
		return err
	}
	for _, s := range symbols {
		fmt.Println(s)
	}
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file")
	addr := fs.String("addr", "", "listen address (overrides api.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}
	log.Println("[INFO] cortex5 starting...")

	stopProfiler, err := startProfiler(cfg)
	if err != nil {
		log.Printf("[WARN] %v", err)
	}
	defer stopProfiler()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Requests without dates fall back to the configured range.
	defaults, err := cfg.BacktestConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(cfg.API.Addr, cfg.API.AllowedOrigins, api.NewHandler(a.service, a.recorder, defaults))
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			srvErr <- err
		}
	}()

	var tn *notifier.TelegramNotifier
	var sender scheduler.Sender
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	} else {
		log.Println("[INFO] telegram not configured, notifications go to the log")
	}

	sched := scheduler.NewScheduler(ctx, a.service, sender, a.recorder, defaults, cfg.Schedule.LookbackDays)
	if err := sched.Register(cfg.Schedule.BacktestCron); err != nil {
		return fmt.Errorf("register cron task: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	if cfg.Schedule.RunOnStart {
		log.Println("[INFO] run_on_start enabled, executing scheduled backtest now")
		go sched.RunNow()
	}

	log.Println("[INFO] cortex5 is running. Press Ctrl+C to stop.")
	select {
	case <-ctx.Done():
		log.Println("[INFO] shutdown signal received, stopping...")
	case err := <-srvErr:
		log.Printf("[ERROR] api server: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] api shutdown: %v", err)
	}
	log.Println("[INFO] cortex5 stopped")
	return nil
}
