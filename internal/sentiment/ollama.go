package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"cortex5/internal/model"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.1:8b"
	maxHeadlines       = 10
)

const systemPrompt = "You are a financial news sentiment analyst. Read the headlines and rate the " +
	"outlook for the stock from 0.0 (very bearish) to 1.0 (very bullish)."

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

// NewOllamaClient fills in defaults for empty arguments.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if u == "" {
		u = DefaultOllamaURL
	}
	m := strings.TrimSpace(model)
	if m == "" {
		m = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaClient{BaseURL: u, Model: m, Client: &http.Client{Timeout: timeout}}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate runs a single non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	b, err := json.Marshal(generateRequest{
		Model:   c.Model,
		Prompt:  prompt,
		System:  system,
		Format:  "json",
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Response, nil
}

// extractFirstJSONValue returns the first JSON object or array embedded
// in free-form model output.
func extractFirstJSONValue(text string) (json.RawMessage, error) {
	b := []byte(text)
	start := bytes.IndexAny(b, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no json start found")
	}
	dec := json.NewDecoder(bytes.NewReader(b[start:]))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// parseScore reads {"score": x} out of a model reply and clamps x to [0,1].
func parseScore(reply string) (float64, error) {
	raw, err := extractFirstJSONValue(reply)
	if err != nil {
		return 0, err
	}
	var out struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("decode score: %w", err)
	}
	if out.Score == nil {
		return 0, fmt.Errorf("reply has no score field: %s", raw)
	}
	return clamp(*out.Score), nil
}

// OllamaSource scores each day's headlines with a local LLM. Days without
// headlines have no score. Results are cached per symbol and day.
type OllamaSource struct {
	client    *OllamaClient
	headlines map[string]map[time.Time][]string

	mu    sync.Mutex
	cache map[string]float64
}

// NewOllamaSource builds a source over headlines keyed by symbol and day.
func NewOllamaSource(client *OllamaClient, headlines map[string]map[time.Time][]string) *OllamaSource {
	if headlines == nil {
		headlines = make(map[string]map[time.Time][]string)
	}
	return &OllamaSource{client: client, headlines: headlines, cache: make(map[string]float64)}
}

// LoadHeadlines reads date,symbol,headline rows.
func LoadHeadlines(path string) (map[string]map[time.Time][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open headlines file: %w", err)
	}
	defer f.Close()
	return ParseHeadlines(f)
}

// ParseHeadlines reads date,symbol,headline rows. A header row is skipped.
func ParseHeadlines(r io.Reader) (map[string]map[time.Time][]string, error) {
	out := make(map[string]map[time.Time][]string)
	err := readRows(r, func(_ int, day time.Time, symbol, headline string) error {
		if headline == "" {
			return nil
		}
		if out[symbol] == nil {
			out[symbol] = make(map[time.Time][]string)
		}
		out[symbol][day] = append(out[symbol][day], headline)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *OllamaSource) Score(ctx context.Context, symbol string, asOf time.Time) (float64, bool, error) {
	symbol = strings.ToUpper(symbol)
	day := model.DayOf(asOf)
	lines := s.headlines[symbol][day]
	if len(lines) == 0 {
		return 0, false, nil
	}

	key := symbol + "|" + day.Format("2006-01-02")
	s.mu.Lock()
	v, hit := s.cache[key]
	s.mu.Unlock()
	if hit {
		return v, true, nil
	}

	reply, err := s.client.Generate(ctx, systemPrompt, buildPrompt(symbol, day, lines))
	if err != nil {
		return 0, false, &SourceError{Source: "ollama", Symbol: symbol, Err: err}
	}
	score, err := parseScore(reply)
	if err != nil {
		return 0, false, &SourceError{Source: "ollama", Symbol: symbol, Err: err}
	}
	log.Printf("[INFO] sentiment %s %s: %.2f from %d headlines", symbol, day.Format("2006-01-02"), score, len(lines))

	s.mu.Lock()
	s.cache[key] = score
	s.mu.Unlock()
	return score, true, nil
}

func buildPrompt(symbol string, day time.Time, lines []string) string {
	if len(lines) > maxHeadlines {
		lines = lines[:maxHeadlines]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Headlines about %s on %s:\n", symbol, day.Format("2006-01-02"))
	for i, l := range lines {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, l)
	}
	sb.WriteString("\nWeigh market impact and tone.\n")
	sb.WriteString(`Respond with JSON only: {"score": <number between 0.0 and 1.0>}`)
	return sb.String()
}
