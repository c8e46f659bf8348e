package collector

import (
	"fmt"
	"math"
	"sort"
	"time"

	"cortex5/internal/model"
)

// DefaultMaxGap is the largest close-to-close move ValidateContinuity
// accepts before flagging the series.
const DefaultMaxGap = 0.5

// ValidationError describes the first malformed bar of a series.
// Index is -1 for series-level problems.
type ValidationError struct {
	Symbol string
	Index  int
	Time   time.Time
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid bars for %s: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("invalid bar %d (%s) for %s: %s",
		e.Index, e.Time.Format(time.RFC3339), e.Symbol, e.Reason)
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// checkBar returns why a single bar is malformed, or "".
func checkBar(b model.OHLCV) string {
	switch {
	case b.Time.IsZero():
		return "missing timestamp"
	case !finite(b.Open, b.High, b.Low, b.Close):
		return "null price"
	case b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0:
		return "non-positive price"
	case b.High < b.Low:
		return fmt.Sprintf("high %.4f below low %.4f", b.High, b.Low)
	case b.Open < b.Low || b.Open > b.High:
		return fmt.Sprintf("open %.4f outside [%.4f, %.4f]", b.Open, b.Low, b.High)
	case b.Close < b.Low || b.Close > b.High:
		return fmt.Sprintf("close %.4f outside [%.4f, %.4f]", b.Close, b.Low, b.High)
	case b.Volume < 0:
		return fmt.Sprintf("negative volume %d", b.Volume)
	}
	return ""
}

// ValidateBars checks a series is non-empty, strictly increasing in time
// and made of well-formed bars.
func ValidateBars(symbol string, bars []model.OHLCV) error {
	if len(bars) == 0 {
		return &ValidationError{Symbol: symbol, Index: -1, Reason: "no bars"}
	}
	for i, b := range bars {
		if reason := checkBar(b); reason != "" {
			return &ValidationError{Symbol: symbol, Index: i, Time: b.Time, Reason: reason}
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			reason := "timestamp not after previous bar"
			if b.Time.Equal(bars[i-1].Time) {
				reason = "duplicate timestamp"
			}
			return &ValidationError{Symbol: symbol, Index: i, Time: b.Time, Reason: reason}
		}
	}
	return nil
}

// ValidateContinuity flags close-to-close moves larger than maxGap, which
// usually mean a split or bad print.
func ValidateContinuity(symbol string, bars []model.OHLCV, maxGap float64) error {
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		if gap := math.Abs(bars[i].Close/prev - 1); gap > maxGap {
			return &ValidationError{
				Symbol: symbol,
				Index:  i,
				Time:   bars[i].Time,
				Reason: fmt.Sprintf("price gap of %.1f%% exceeds %.1f%%", gap*100, maxGap*100),
			}
		}
	}
	return nil
}

// SanitizeBars dedupes by timestamp (first wins), sorts ascending, drops
// rows with missing or inconsistent prices and clips negative volume.
func SanitizeBars(bars []model.OHLCV) []model.OHLCV {
	seen := make(map[int64]bool, len(bars))
	out := make([]model.OHLCV, 0, len(bars))
	for _, b := range bars {
		key := b.Time.UnixNano()
		if seen[key] {
			continue
		}
		seen[key] = true
		if b.Volume < 0 {
			b.Volume = 0
		}
		if checkBar(b) != "" {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
