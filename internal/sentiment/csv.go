package sentiment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cortex5/internal/model"
)

// CSVSource serves precomputed scores from rows of date,symbol,score.
type CSVSource struct {
	scores map[string]model.SentimentSeries
}

// LoadCSV reads a score file.
func LoadCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sentiment file: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads date,symbol,score rows. A header row is skipped.
func ParseCSV(r io.Reader) (*CSVSource, error) {
	src := &CSVSource{scores: make(map[string]model.SentimentSeries)}
	err := readRows(r, func(line int, day time.Time, symbol, value string) error {
		score, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("line %d: score %q: %w", line, value, err)
		}
		if score < 0 || score > 1 {
			return fmt.Errorf("line %d: score %.4f outside [0, 1]", line, score)
		}
		if src.scores[symbol] == nil {
			src.scores[symbol] = make(model.SentimentSeries)
		}
		src.scores[symbol][day] = score
		return nil
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (s *CSVSource) Score(_ context.Context, symbol string, asOf time.Time) (float64, bool, error) {
	v, ok := s.scores[strings.ToUpper(symbol)].At(asOf)
	return v, ok, nil
}

// readRows walks a three-column CSV keyed by date and symbol.
func readRows(r io.Reader, fn func(line int, day time.Time, symbol, value string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "date") {
			continue
		}
		day, err := parseDay(rec[0])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		symbol := strings.ToUpper(strings.TrimSpace(rec[1]))
		if symbol == "" {
			return fmt.Errorf("line %d: empty symbol", line)
		}
		if err := fn(line, day, symbol, strings.TrimSpace(rec[2])); err != nil {
			return err
		}
	}
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD or RFC3339", s)
	}
	return model.DayOf(t), nil
}
