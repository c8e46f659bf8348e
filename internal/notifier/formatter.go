package notifier

import (
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"cortex5/internal/model"
	"cortex5/internal/recorder"
)

var printer = message.NewPrinter(language.English)

// HelpText lists the bot commands.
const HelpText = "Available commands:\n" +
	"• /backtest SYMBOL [SYMBOL...] runs the configured backtest\n" +
	"• /runs shows the latest recorded runs\n" +
	"• /help shows this message"

func money(v float64) string { return printer.Sprintf("$%.2f", v) }

func pct(v float64) string { return fmt.Sprintf("%+.2f%%", v*100) }

func dateRange(rep *model.Report) string {
	if rep.Start.IsZero() {
		return "full history"
	}
	return fmt.Sprintf("%s → %s", rep.Start.Format("2006-01-02"), rep.End.Format("2006-01-02"))
}

// FormatReport formats one run result as a Telegram message.
func FormatReport(rep *model.Report) string {
	var b strings.Builder
	m := rep.Metrics

	b.WriteString(fmt.Sprintf("📊 <b>Backtest %s</b> | %s (%s)\n", html.EscapeString(rep.Symbol), dateRange(rep), rep.Interval))
	b.WriteString(fmt.Sprintf("Status: %s | Bars: %d\n\n", rep.Status, rep.Bars))

	b.WriteString(fmt.Sprintf("Capital: %s → %s\n", money(rep.InitialCapital), money(m.FinalEquity)))
	b.WriteString(fmt.Sprintf("Return: %s | CAGR: %s\n", pct(m.TotalReturn), pct(m.CAGR)))
	b.WriteString(fmt.Sprintf("Sharpe: %.2f | Sortino: %.2f\n", m.SharpeRatio, m.SortinoRatio))
	b.WriteString(fmt.Sprintf("Max drawdown: %.2f%% (%d bars)\n", m.MaxDrawdown*100, m.MaxDrawdownDuration))
	b.WriteString(fmt.Sprintf("VaR95: %.2f%% | CVaR95: %.2f%%\n", m.VaR95*100, m.CVaR95*100))

	pf := "n/a"
	if m.ProfitFactor != nil {
		pf = fmt.Sprintf("%.2f", *m.ProfitFactor)
	}
	b.WriteString(fmt.Sprintf("\nTrades: %d (win rate %.1f%%) | Profit factor: %s\n", m.TotalTrades, m.WinRate*100, pf))
	if m.TotalTrades > 0 {
		b.WriteString(fmt.Sprintf("Best: %s | Worst: %s\n", money(m.BestTrade), money(m.WorstTrade)))
	}

	if n := len(rep.Rejections); n > 0 {
		b.WriteString(fmt.Sprintf("Rejected orders: %d (%s)\n", n, rejectionBreakdown(rep.Rejections)))
	}
	return b.String()
}

// rejectionBreakdown counts rejections per reason in check order.
func rejectionBreakdown(ds []model.Decision) string {
	counts := make(map[model.RejectReason]int)
	for _, d := range ds {
		counts[d.Reason]++
	}
	var parts []string
	for _, r := range []model.RejectReason{model.ReasonPositionSize, model.ReasonVolatility, model.ReasonSentiment, model.ReasonCapital} {
		if counts[r] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", r, counts[r]))
		}
	}
	return strings.Join(parts, ", ")
}

// FormatSummary joins per-symbol reports and the combined portfolio line.
func FormatSummary(reports []model.Report, portfolio *model.Report) string {
	parts := make([]string, 0, len(reports)+1)
	for i := range reports {
		parts = append(parts, FormatReport(&reports[i]))
	}
	if portfolio != nil {
		m := portfolio.Metrics
		parts = append(parts, fmt.Sprintf("💼 <b>Portfolio</b>: %s → %s (%s), max drawdown %.2f%%",
			money(portfolio.InitialCapital), money(m.FinalEquity), pct(m.TotalReturn), m.MaxDrawdown*100))
	}
	return strings.Join(parts, "\n")
}

// FormatFailure reports a run that did not complete.
func FormatFailure(symbols []string, err error) string {
	return fmt.Sprintf("❌ <b>Backtest failed</b> | %s\n\n%s",
		html.EscapeString(strings.Join(symbols, ", ")), html.EscapeString(err.Error()))
}

// FormatRuns lists recorded runs, newest first.
func FormatRuns(runs []recorder.RunSummary) string {
	if len(runs) == 0 {
		return "No runs recorded yet."
	}
	var b strings.Builder
	b.WriteString("🗂 <b>Recent runs</b>\n\n")
	for _, r := range runs {
		if r.Status == "FAILED" {
			b.WriteString(fmt.Sprintf("#%d %s %s FAILED (%s)\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), html.EscapeString(r.Symbol), r.Source))
			continue
		}
		b.WriteString(fmt.Sprintf("#%d %s %s %s | Sharpe %.2f | MDD %.2f%% | %d trades (%s)\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), html.EscapeString(r.Symbol),
			pct(r.TotalReturn), r.SharpeRatio, r.MaxDrawdown*100, r.TotalTrades, r.Source))
	}
	return b.String()
}
