package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cortex5/internal/backtest"
	"cortex5/internal/calculator"
	"cortex5/internal/collector"
	"cortex5/internal/fund"
	"cortex5/internal/metrics"
	"cortex5/internal/model"
	"cortex5/internal/risk"
)

const dateLayout = "2006-01-02"

// Config holds all application configuration.
type Config struct {
	Backtest struct {
		Symbols        []string `yaml:"symbols"`
		Start          string   `yaml:"start"`
		End            string   `yaml:"end"`
		Interval       string   `yaml:"interval"`
		InitialCapital float64  `yaml:"initial_capital"`
		// WarmupDays of history before Start are loaded to prime indicators.
		WarmupDays   int     `yaml:"warmup_days"`
		Parallelism  int     `yaml:"parallelism"`
		RiskFreeRate float64 `yaml:"risk_free_rate"`
		OutputDir    string  `yaml:"output_dir"`
	} `yaml:"backtest"`
	Indicators struct {
		RSIPeriod        int     `yaml:"rsi_period"`
		RSIMethod        string  `yaml:"rsi_method"`
		MACDFast         int     `yaml:"macd_fast"`
		MACDSlow         int     `yaml:"macd_slow"`
		MACDSignal       int     `yaml:"macd_signal"`
		BollingerPeriod  int     `yaml:"bollinger_period"`
		BollingerK       float64 `yaml:"bollinger_k"`
		SMAFast          int     `yaml:"sma_fast"`
		SMASlow          int     `yaml:"sma_slow"`
		EMAFast          int     `yaml:"ema_fast"`
		EMASlow          int     `yaml:"ema_slow"`
		VolatilityWindow int     `yaml:"volatility_window"`
		ATRPeriod        int     `yaml:"atr_period"`
	} `yaml:"indicators"`
	Risk struct {
		MaxPositionPct    float64 `yaml:"max_position_pct"`
		MaxVolatility     float64 `yaml:"max_volatility"`
		MinSentimentScore float64 `yaml:"min_sentiment_score"`
		NeutralSentiment  float64 `yaml:"neutral_sentiment"`
	} `yaml:"risk"`
	Sizing struct {
		Policy           string `yaml:"policy"`
		fund.SizerParams `yaml:",inline"`
	} `yaml:"sizing"`
	Costs      fund.Costs `yaml:"costs"`
	DataSource struct {
		Provider   string  `yaml:"provider"` // yahoo, alpaca, store or mock
		MaxRetries int     `yaml:"max_retries"`
		MaxGap     float64 `yaml:"max_gap"`
		Alpaca     struct {
			APIKey    string `yaml:"api_key"`
			APISecret string `yaml:"api_secret"`
			BaseURL   string `yaml:"base_url"`
			Feed      string `yaml:"feed"`
		} `yaml:"alpaca"`
	} `yaml:"data_source"`
	Store struct {
		Driver   string `yaml:"driver"` // parquet, postgres or none
		DataDir  string `yaml:"data_dir"`
		Market   string `yaml:"market"`
		Postgres struct {
			DSN      string `yaml:"dsn"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Database string `yaml:"database"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"postgres"`
	} `yaml:"store"`
	Sentiment struct {
		Provider      string  `yaml:"provider"` // neutral, constant, csv or ollama
		Constant      float64 `yaml:"constant"`
		File          string  `yaml:"file"`
		HeadlinesFile string  `yaml:"headlines_file"`
		Ollama        struct {
			BaseURL        string `yaml:"base_url"`
			Model          string `yaml:"model"`
			TimeoutSeconds int    `yaml:"timeout_seconds"`
		} `yaml:"ollama"`
	} `yaml:"sentiment"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	API struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"api"`
	Schedule struct {
		BacktestCron string `yaml:"backtest_cron"`
		// LookbackDays sizes the window of scheduled runs, ending today.
		LookbackDays int  `yaml:"lookback_days"`
		RunOnStart   bool `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Profiling struct {
		Enabled       bool   `yaml:"enabled"`
		ServerAddress string `yaml:"server_address"`
		AppName       string `yaml:"app_name"`
	} `yaml:"profiling"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func envFloat(name string, dst *float64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("env %s: %w", name, err)
	}
	*dst = f
	return nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() error {
	for name, dst := range map[string]*float64{
		"MAX_POSITION_PCT":    &c.Risk.MaxPositionPct,
		"MAX_VOLATILITY":      &c.Risk.MaxVolatility,
		"MIN_SENTIMENT_SCORE": &c.Risk.MinSentimentScore,
		"INITIAL_CAPITAL":     &c.Backtest.InitialCapital,
	} {
		if err := envFloat(name, dst); err != nil {
			return err
		}
	}
	envString("SQLITE_PATH", &c.Database.SQLitePath)
	envString("POSTGRES_DSN", &c.Store.Postgres.DSN)
	envString("ALPACA_API_KEY", &c.DataSource.Alpaca.APIKey)
	envString("ALPACA_API_SECRET", &c.DataSource.Alpaca.APISecret)
	envString("OLLAMA_BASE_URL", &c.Sentiment.Ollama.BaseURL)
	envString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	envString("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	envString("HTTPS_PROXY", &c.Proxy)
	envString("API_ADDR", &c.API.Addr)
	envString("CRON_BACKTEST", &c.Schedule.BacktestCron)
	envString("PYROSCOPE_SERVER_ADDRESS", &c.Profiling.ServerAddress)
	if v := os.Getenv("RUN_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env RUN_ON_START: %w", err)
		}
		c.Schedule.RunOnStart = b
	}
	return nil
}

// applyDefaults fills every unset field.
func (c *Config) applyDefaults() {
	if len(c.Backtest.Symbols) == 0 {
		c.Backtest.Symbols = []string{"SPY"}
	}
	if c.Backtest.Interval == "" {
		c.Backtest.Interval = collector.IntervalDaily
	}
	if c.Backtest.InitialCapital == 0 {
		c.Backtest.InitialCapital = 100000
	}
	if c.Backtest.WarmupDays == 0 {
		c.Backtest.WarmupDays = 120
	}
	if c.Backtest.OutputDir == "" {
		c.Backtest.OutputDir = "out"
	}

	p := calculator.DefaultParams()
	ind := &c.Indicators
	setInt(&ind.RSIPeriod, p.RSIPeriod)
	setInt(&ind.MACDFast, p.MACDFast)
	setInt(&ind.MACDSlow, p.MACDSlow)
	setInt(&ind.MACDSignal, p.MACDSignal)
	setInt(&ind.BollingerPeriod, p.BollingerPeriod)
	setInt(&ind.SMAFast, p.SMAFast)
	setInt(&ind.SMASlow, p.SMASlow)
	setInt(&ind.EMAFast, p.EMAFast)
	setInt(&ind.EMASlow, p.EMASlow)
	setInt(&ind.VolatilityWindow, p.VolatilityWindow)
	setInt(&ind.ATRPeriod, p.ATRPeriod)
	if ind.BollingerK == 0 {
		ind.BollingerK = p.BollingerK
	}
	if ind.RSIMethod == "" {
		ind.RSIMethod = string(p.RSIMethod)
	}

	if c.Risk.MaxPositionPct == 0 {
		c.Risk.MaxPositionPct = risk.DefaultMaxPositionPct
	}
	if c.Risk.MaxVolatility == 0 {
		c.Risk.MaxVolatility = risk.DefaultMaxVolatility
	}
	if c.Risk.MinSentimentScore == 0 {
		c.Risk.MinSentimentScore = risk.DefaultMinSentimentScore
	}
	if c.Risk.NeutralSentiment == 0 {
		c.Risk.NeutralSentiment = risk.NeutralSentiment
	}

	if c.Sizing.Policy == "" {
		c.Sizing.Policy = "fixed_fraction"
	}
	if c.Sizing.Fraction == 0 {
		c.Sizing.Fraction = c.Risk.MaxPositionPct
	}

	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "yahoo"
	}
	if c.DataSource.MaxRetries == 0 {
		c.DataSource.MaxRetries = 2
	}
	if c.DataSource.MaxGap == 0 {
		c.DataSource.MaxGap = collector.DefaultMaxGap
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "parquet"
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "data/bars"
	}
	if c.Sentiment.Provider == "" {
		c.Sentiment.Provider = "neutral"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/cortex5.db"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.Schedule.BacktestCron == "" {
		c.Schedule.BacktestCron = "0 0 22 * * 1-5"
	}
	if c.Schedule.LookbackDays == 0 {
		c.Schedule.LookbackDays = 365
	}
	if c.Profiling.AppName == "" {
		c.Profiling.AppName = "cortex5"
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if _, err := c.BacktestConfig(); err != nil {
		return err
	}
	if c.Backtest.WarmupDays < 0 {
		return fmt.Errorf("backtest.warmup_days must not be negative")
	}
	if _, err := c.Options(); err != nil {
		return err
	}
	switch c.DataSource.Provider {
	case "yahoo", "store", "mock":
	case "alpaca":
		if c.DataSource.Alpaca.APIKey == "" || c.DataSource.Alpaca.APISecret == "" {
			return fmt.Errorf("data_source.alpaca.api_key and api_secret are required")
		}
	default:
		return fmt.Errorf("data_source.provider %q: want yahoo, alpaca, store or mock", c.DataSource.Provider)
	}
	switch c.Store.Driver {
	case "parquet", "none":
	case "postgres":
		if c.Store.Postgres.DSN == "" && c.Store.Postgres.Database == "" {
			return fmt.Errorf("store.postgres.dsn or store.postgres.database is required")
		}
	default:
		return fmt.Errorf("store.driver %q: want parquet, postgres or none", c.Store.Driver)
	}
	if c.DataSource.Provider == "store" && c.Store.Driver == "none" {
		return fmt.Errorf("data_source.provider store needs a store.driver")
	}
	switch c.Sentiment.Provider {
	case "neutral":
	case "constant":
		if c.Sentiment.Constant < 0 || c.Sentiment.Constant > 1 {
			return fmt.Errorf("sentiment.constant must be in [0, 1]")
		}
	case "csv":
		if c.Sentiment.File == "" {
			return fmt.Errorf("sentiment.file is required for the csv provider")
		}
	case "ollama":
		if c.Sentiment.HeadlinesFile == "" {
			return fmt.Errorf("sentiment.headlines_file is required for the ollama provider")
		}
	default:
		return fmt.Errorf("sentiment.provider %q: want neutral, constant, csv or ollama", c.Sentiment.Provider)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}
	return nil
}

// TelegramEnabled reports whether both bot token and chat id are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: want YYYY-MM-DD, got %q", field, s)
	}
	return t, nil
}

// BacktestConfig converts the backtest section into a run request.
func (c *Config) BacktestConfig() (model.BacktestConfig, error) {
	start, err := parseDate("backtest.start", c.Backtest.Start)
	if err != nil {
		return model.BacktestConfig{}, err
	}
	end, err := parseDate("backtest.end", c.Backtest.End)
	if err != nil {
		return model.BacktestConfig{}, err
	}
	bc := model.BacktestConfig{
		Symbols:        normalizeSymbols(c.Backtest.Symbols),
		Start:          start,
		End:            end,
		Interval:       c.Backtest.Interval,
		InitialCapital: c.Backtest.InitialCapital,
	}
	if err := ValidateBacktest(bc); err != nil {
		return model.BacktestConfig{}, err
	}
	return bc, nil
}

// ValidateBacktest checks a run request.
func ValidateBacktest(bc model.BacktestConfig) error {
	if len(bc.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if bc.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive")
	}
	if !bc.Start.IsZero() && !bc.End.IsZero() && bc.End.Before(bc.Start) {
		return fmt.Errorf("end %s is before start %s", bc.End.Format(dateLayout), bc.Start.Format(dateLayout))
	}
	return collector.ValidateInterval(bc.Interval)
}

func normalizeSymbols(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// SplitSymbols parses a comma separated symbol list.
func SplitSymbols(s string) []string {
	return normalizeSymbols(strings.Split(s, ","))
}

// WarmupStart is the first day of history to load for a run starting at start.
func (c *Config) WarmupStart(start time.Time) time.Time {
	if start.IsZero() || c.Backtest.WarmupDays <= 0 {
		return start
	}
	return start.AddDate(0, 0, -c.Backtest.WarmupDays)
}

// IndicatorParams converts the indicators section.
func (c *Config) IndicatorParams() calculator.Params {
	ind := c.Indicators
	return calculator.Params{
		RSIPeriod:        ind.RSIPeriod,
		RSIMethod:        calculator.RSIMethod(ind.RSIMethod),
		MACDFast:         ind.MACDFast,
		MACDSlow:         ind.MACDSlow,
		MACDSignal:       ind.MACDSignal,
		BollingerPeriod:  ind.BollingerPeriod,
		BollingerK:       ind.BollingerK,
		SMAFast:          ind.SMAFast,
		SMASlow:          ind.SMASlow,
		EMAFast:          ind.EMAFast,
		EMASlow:          ind.EMASlow,
		VolatilityWindow: ind.VolatilityWindow,
		ATRPeriod:        ind.ATRPeriod,
	}
}

// RiskConfig converts the risk section.
func (c *Config) RiskConfig() risk.Config {
	return risk.Config{
		MaxPositionPct:    c.Risk.MaxPositionPct,
		MaxVolatility:     c.Risk.MaxVolatility,
		MinSentimentScore: c.Risk.MinSentimentScore,
		NeutralSentiment:  c.Risk.NeutralSentiment,
		CommissionPct:     c.Costs.CommissionPct,
	}
}

// Options assembles and validates the runner settings.
func (c *Config) Options() (backtest.Options, error) {
	p := c.IndicatorParams()
	if err := p.Validate(); err != nil {
		return backtest.Options{}, fmt.Errorf("indicators: %w", err)
	}
	rc := c.RiskConfig()
	if err := rc.Validate(); err != nil {
		return backtest.Options{}, fmt.Errorf("risk: %w", err)
	}
	if err := c.Costs.Validate(); err != nil {
		return backtest.Options{}, fmt.Errorf("costs: %w", err)
	}
	sizer, err := fund.NewSizer(c.Sizing.Policy, c.Sizing.SizerParams)
	if err != nil {
		return backtest.Options{}, fmt.Errorf("sizing: %w", err)
	}
	return backtest.Options{
		Indicators:  p,
		Risk:        rc,
		Sizer:       sizer,
		Costs:       c.Costs,
		Metrics:     metrics.Options{RiskFreeRate: c.Backtest.RiskFreeRate},
		Parallelism: c.Backtest.Parallelism,
	}, nil
}
