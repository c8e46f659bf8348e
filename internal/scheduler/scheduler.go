package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"cortex5/internal/backtest"
	"cortex5/internal/model"
	"cortex5/internal/notifier"
	"cortex5/internal/recorder"
	"cortex5/internal/report"
)

// Sender delivers notification messages.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages the cron-driven backtests and chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Service  *backtest.Service
	Notifier Sender
	Recorder recorder.Recorder
	Ctx      context.Context

	// Base supplies symbols, interval and capital of scheduled runs.
	Base model.BacktestConfig
	// LookbackDays sizes the window, ending today.
	LookbackDays int

	now func() time.Time
}

// NewScheduler creates a new Scheduler. tn may be nil.
func NewScheduler(ctx context.Context, svc *backtest.Service, tn Sender, rec recorder.Recorder, base model.BacktestConfig, lookbackDays int) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:         cron.New(cron.WithSeconds()),
		Service:      svc,
		Notifier:     tn,
		Recorder:     rec,
		Ctx:          ctx,
		Base:         base,
		LookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// Register adds the backtest task on spec (cron with a seconds field).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.backtestTask); err != nil {
		return fmt.Errorf("register backtest task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for a running task.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes the scheduled backtest immediately (for RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.backtestTask()
}

func (s *Scheduler) backtestTask() {
	log.Println("[INFO] running scheduled backtest")
	s.trySend(s.RunBacktest(s.Ctx, recorder.SourceSchedule, s.Base.Symbols))
}

// window returns the run request for symbols over the lookback window.
func (s *Scheduler) window(symbols []string) model.BacktestConfig {
	cfg := s.Base
	cfg.Symbols = symbols
	end := model.DayOf(s.now())
	cfg.End = end
	cfg.Start = end.AddDate(0, 0, -s.LookbackDays)
	return cfg
}

// RunBacktest runs and records a backtest of symbols and returns the
// message describing the outcome.
func (s *Scheduler) RunBacktest(ctx context.Context, source string, symbols []string) string {
	cfg := s.window(symbols)
	results, agg, err := s.Service.Run(ctx, cfg)
	if err != nil {
		log.Printf("[ERROR] backtest %s: %v", strings.Join(symbols, ","), err)
		if _, rerr := s.Recorder.RecordFailure(source, strings.Join(symbols, ","), cfg, err); rerr != nil {
			log.Printf("[ERROR] record failure: %v", rerr)
		}
		return notifier.FormatFailure(symbols, err)
	}

	reports := make([]model.Report, len(results))
	for i, res := range results {
		reports[i] = report.Build(res)
		if _, err := s.Recorder.RecordRun(source, &reports[i]); err != nil {
			log.Printf("[ERROR] record run %s: %v", res.Symbol, err)
		}
	}
	var portfolio *model.Report
	if agg != nil {
		rep := report.Build(agg)
		portfolio = &rep
	}
	return notifier.FormatSummary(reports, portfolio)
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.HelpText
	}
	// Commands may carry a bot suffix, as in /runs@cortex5_bot.
	name, _, _ := strings.Cut(fields[0], "@")
	switch name {
	case "/backtest":
		symbols := s.Base.Symbols
		if len(fields) > 1 {
			symbols = nil
			for _, f := range fields[1:] {
				for _, sym := range strings.Split(f, ",") {
					if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
						symbols = append(symbols, sym)
					}
				}
			}
		}
		return s.RunBacktest(ctx, recorder.SourceTelegram, symbols)
	case "/runs":
		runs, err := s.Recorder.ListRuns(10)
		if err != nil {
			return fmt.Sprintf("❌ list runs: %v", err)
		}
		return notifier.FormatRuns(runs)
	default:
		return notifier.HelpText
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		log.Printf("[INFO] notification:\n%s", text)
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
