package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"cortex5/internal/model"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooFetcher{
		BaseURL: defaultYahooBaseURL,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func at(xs []interface{}, i int) interface{} {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

// FetchBars downloads bars in [start, end] from the chart endpoint.
func (f *YahooFetcher) FetchBars(ctx context.Context, symbol string, start, end time.Time, interval string) ([]model.OHLCV, error) {
	if err := ValidateInterval(interval); err != nil {
		return nil, err
	}
	if end.IsZero() {
		end = time.Now()
	}
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	// period2 is exclusive; include the whole end day.
	q.Set("period2", fmt.Sprintf("%d", model.DayOf(end).AddDate(0, 0, 1).Unix()))
	q.Set("events", "div,splits")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))}
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: fmt.Errorf("decode: %w", err)}
	}
	if chart.Chart.Error != nil {
		return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: fmt.Errorf("api error: %s", chart.Chart.Error.Description)}
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, &SourceError{Source: f.Name(), Symbol: symbol, Err: fmt.Errorf("no data returned")}
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.OHLCV, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		o := toFloat(at(quote.Open, i))
		h := toFloat(at(quote.High, i))
		l := toFloat(at(quote.Low, i))
		c := toFloat(at(quote.Close, i))
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // skip null bars (holidays etc.)
		}
		bars = append(bars, model.OHLCV{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: int64(toFloat(at(quote.Volume, i))),
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
