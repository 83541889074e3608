package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/fxsignal/internal/model"
	httpClient "github.com/Alias1177/fxsignal/internal/platform/http"
)

const defaultBaseURL = "https://api.twelvedata.com"

// ErrEmptySeries is returned when the API answers without any bars
var ErrEmptySeries = errors.New("empty data returned")

// Client is the TwelveData API client
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new TwelveData client
type ClientOptions struct {
	APIKey          string
	BaseURL         string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

type timeSeriesResponse struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
	} `json:"meta"`
	Values []struct {
		Datetime string  `json:"datetime"`
		Open     float64 `json:"open,string"`
		High     float64 `json:"high,string"`
		Low      float64 `json:"low,string"`
		Close    float64 `json:"close,string"`
		Volume   int64   `json:"volume,string,omitempty"`
	} `json:"values"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewClient creates a new TwelveData API client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.ClientOptions{
		Timeout:         options.RequestTimeout,
		RequestsPerSec:  options.RequestsPerSec,
		MaxRetries:      options.MaxRetries,
		MaxRetryTimeout: options.MaxRetryTimeout,
	}

	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:     options.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient.NewClient(httpOpts),
		logger:     log.With().Str("component", "twelvedata_client").Logger(),
	}
}

// Interval maps a timeframe onto the API interval name
func Interval(tf model.Timeframe) (string, error) {
	switch tf {
	case model.M5:
		return "5min", nil
	case model.M15:
		return "15min", nil
	case model.H1:
		return "1h", nil
	case model.H4:
		return "4h", nil
	case model.D1:
		return "1day", nil
	}
	return "", fmt.Errorf("unsupported timeframe %q", tf)
}

// Symbol converts EURUSD into EUR/USD. Symbols already carrying a slash
// or not six letters long are passed through.
func Symbol(symbol string) string {
	if len(symbol) != 6 || strings.Contains(symbol, "/") {
		return symbol
	}
	return strings.ToUpper(symbol[:3]) + "/" + strings.ToUpper(symbol[3:])
}

// GetBars fetches the latest count bars, oldest first
func (c *Client) GetBars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error) {
	interval, err := Interval(tf)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", Symbol(symbol))
	q.Set("interval", interval)
	q.Set("outputsize", fmt.Sprint(count))
	q.Set("timezone", "UTC")
	q.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "/time_series?" + q.Encode()

	c.logger.Debug().Str("symbol", symbol).Str("interval", interval).Int("count", count).Msg("Fetching bars")

	// Create a new request with context
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var data timeSeriesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Str("response", string(body)).Msg("Error parsing JSON")
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	if data.Status == "error" {
		c.logger.Error().Str("response", string(body)).Msg("Twelve Data API error")
		return nil, fmt.Errorf("twelve data API error: %s", data.Message)
	}

	if len(data.Values) == 0 {
		c.logger.Warn().Str("symbol", symbol).Str("interval", interval).Msg("No bars in response")
		return nil, ErrEmptySeries
	}

	bars := make([]model.Bar, 0, len(data.Values))
	for _, v := range data.Values {
		ts, err := parseDatetime(v.Datetime)
		if err != nil {
			return nil, err
		}
		bars = append(bars, model.Bar{
			Time:   ts,
			Open:   v.Open,
			High:   v.High,
			Low:    v.Low,
			Close:  v.Close,
			Volume: v.Volume,
		})
	}

	// Sort bars by time (oldest first for proper calculations)
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})

	c.logger.Debug().Int("count", len(bars)).Msg("Fetched bars")
	return bars, nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range []string{time.DateTime, time.DateOnly} {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing datetime %q", s)
}
