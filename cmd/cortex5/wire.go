package main

import (
	"fmt"
	"log"
	"time"

	"github.com/grafana/pyroscope-go"

	"cortex5/internal/backtest"
	"cortex5/internal/collector"
	"cortex5/internal/config"
	"cortex5/internal/recorder"
	"cortex5/internal/sentiment"
	"cortex5/internal/store"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg       *config.Config
	store     store.BarStore
	collector *collector.Collector
	service   *backtest.Service
	recorder  recorder.Recorder
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}

	st, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	fetcher, err := buildFetcher(cfg, st)
	if err != nil {
		closeStore(st)
		return nil, err
	}
	log.Printf("[INFO] data source: %s", fetcher.Name())

	col := collector.NewCollector(fetcher, st)
	col.MaxRetries = cfg.DataSource.MaxRetries
	col.MaxGap = cfg.DataSource.MaxGap
	// Bars served from the store need no second cache.
	if cfg.DataSource.Provider == "store" {
		col.Cache = nil
	}

	src, err := buildSentiment(cfg)
	if err != nil {
		closeStore(st)
		return nil, err
	}

	return &app{
		cfg:       cfg,
		store:     st,
		collector: col,
		service: &backtest.Service{
			Bars:       col,
			Sentiment:  src,
			Options:    opts,
			WarmupDays: cfg.Backtest.WarmupDays,
		},
		recorder: buildRecorder(cfg),
	}, nil
}

func (a *app) Close() {
	if err := a.recorder.Close(); err != nil {
		log.Printf("[WARN] close recorder: %v", err)
	}
	closeStore(a.store)
}

func closeStore(st store.BarStore) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		log.Printf("[WARN] close bar store: %v", err)
	}
}

func buildStore(cfg *config.Config) (store.BarStore, error) {
	switch cfg.Store.Driver {
	case "none":
		return nil, nil
	case "postgres":
		pg := cfg.Store.Postgres
		st, err := store.NewPostgresStore(store.PostgresOption{
			ConnString: pg.DSN,
			Host:       pg.Host,
			Port:       pg.Port,
			User:       pg.User,
			Password:   pg.Password,
			Database:   pg.Database,
			SSLMode:    pg.SSLMode,
			Params:     map[string]string{"application_name": "cortex5"},
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		ps := store.NewParquetStore(cfg.Store.DataDir)
		if cfg.Store.Market != "" {
			ps.Market = cfg.Store.Market
		}
		return ps, nil
	}
}

func buildFetcher(cfg *config.Config, st store.BarStore) (collector.Fetcher, error) {
	switch cfg.DataSource.Provider {
	case "alpaca":
		a := cfg.DataSource.Alpaca
		return collector.NewAlpacaFetcher(a.APIKey, a.APISecret, a.BaseURL, a.Feed), nil
	case "store":
		if st == nil {
			return nil, fmt.Errorf("data_source.provider store needs a bar store")
		}
		return &collector.StoreFetcher{Store: st}, nil
	case "mock":
		return &collector.MockFetcher{Price: 100}, nil
	default:
		return collector.NewYahooFetcher(cfg.Proxy), nil
	}
}

func buildSentiment(cfg *config.Config) (sentiment.Source, error) {
	s := cfg.Sentiment
	switch s.Provider {
	case "constant":
		return sentiment.NewConstant(s.Constant)
	case "csv":
		return sentiment.LoadCSV(s.File)
	case "ollama":
		headlines, err := sentiment.LoadHeadlines(s.HeadlinesFile)
		if err != nil {
			return nil, err
		}
		timeout := time.Duration(s.Ollama.TimeoutSeconds) * time.Second
		client := sentiment.NewOllamaClient(s.Ollama.BaseURL, s.Ollama.Model, timeout)
		log.Printf("[INFO] sentiment: ollama %s (%s)", client.BaseURL, client.Model)
		return sentiment.NewOllamaSource(client, headlines), nil
	default:
		return sentiment.Neutral{}, nil
	}
}

func buildRecorder(cfg *config.Config) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		return recorder.NewNoopRecorder()
	}
	return sr
}

// startProfiler starts continuous profiling when enabled. The returned
// stop func is never nil.
func startProfiler(cfg *config.Config) (func(), error) {
	if !cfg.Profiling.Enabled {
		return func() {}, nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Profiling.AppName,
		ServerAddress:   cfg.Profiling.ServerAddress,
		Tags:            map[string]string{"component": "serve"},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return func() {}, fmt.Errorf("pyroscope start: %w", err)
	}
	log.Printf("[INFO] profiling to %s as %s", cfg.Profiling.ServerAddress, cfg.Profiling.AppName)
	return func() { _ = profiler.Stop() }, nil
}
