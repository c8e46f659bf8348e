package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"cortex5/internal/model"
)

var _ BarStore = (*ParquetStore)(nil)

// DefaultMarket is the directory bars are grouped under.
const DefaultMarket = "us"

// ParquetStore implements BarStore with one Parquet file per symbol and
// year:
//
//	<DataDir>/<Market>/daily/<SYMBOL>/<YYYY>.parquet
type ParquetStore struct {
	DataDir string
	Market  string

	mu sync.Mutex
}

// NewParquetStore creates a ParquetStore rooted at dataDir.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, Market: DefaultMarket}
}

// BarRecord is the on-disk schema of a daily bar.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

func toRecord(symbol string, b model.OHLCV) BarRecord {
	return BarRecord{
		Symbol:    symbol,
		Timestamp: b.Time.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

func (r BarRecord) bar() model.OHLCV {
	return model.OHLCV{
		Time:   time.UnixMilli(r.Timestamp).UTC(),
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	}
}

// WriteBars merges bars into the per-year files of symbol.
func (s *ParquetStore) WriteBars(_ context.Context, symbol string, bars []model.OHLCV) error {
	if len(bars) == 0 {
		return nil
	}
	symbol = strings.ToUpper(symbol)

	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		year := b.Time.UTC().Year()
		groups[year] = append(groups[year], toRecord(symbol, b))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for year, records := range groups {
		path := s.barPath(symbol, year)
		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		merged := mergeBarRecords(existing, records)
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// ReadBars reads the year files overlapping [start, end].
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]model.OHLCV, error) {
	symbol = strings.ToUpper(symbol)
	first, last, err := s.yearRange(symbol, start, end)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var bars []model.OHLCV
	for year := first; year <= last; year++ {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, year))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			if b := r.bar(); inWindow(b.Time, start, end) {
				bars = append(bars, b)
			}
		}
	}
	return bars, nil
}

// yearRange resolves open bounds against the files present on disk.
func (s *ParquetStore) yearRange(symbol string, start, end time.Time) (int, int, error) {
	if !start.IsZero() && !end.IsZero() {
		return start.UTC().Year(), end.UTC().Year(), nil
	}
	entries, err := os.ReadDir(filepath.Join(s.DataDir, s.Market, "daily", symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return 1, 0, nil
		}
		return 0, 0, err
	}
	first, last := 1<<31-1, 0
	for _, e := range entries {
		var year int
		if _, err := fmt.Sscanf(e.Name(), "%d.parquet", &year); err != nil {
			continue
		}
		first = min(first, year)
		last = max(last, year)
	}
	if !start.IsZero() {
		first = max(first, start.UTC().Year())
	}
	if !end.IsZero() {
		last = min(last, end.UTC().Year())
	}
	return first, last, nil
}

// ListSymbols lists the symbol directories of the market.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, s.Market, "daily"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *ParquetStore) Close() error { return nil }

// barPath returns the filesystem path for a bar Parquet file.
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, s.Market, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates by timestamp, preferring incoming records.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
