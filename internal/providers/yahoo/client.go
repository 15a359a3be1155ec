// Package yahoo fetches daily closing prices from the Yahoo Finance chart API
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/randomwalk/infra/breakers"
	"github.com/sawpanic/randomwalk/internal/domain/walk"
	"github.com/sawpanic/randomwalk/internal/net/ratelimit"
)

// HTTPClient allows injecting mock HTTP clients for testing
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// errUnknownSymbol marks answers that say the symbol does not exist; these do
// not count against the provider breaker
var errUnknownSymbol = errors.New("unknown symbol")

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GmtOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// Client implements the market-data source over the chart API
type Client struct {
	baseURL string
	host    string
	http    HTTPClient
	limiter *ratelimit.Limiter
	breaker *breakers.Breaker
}

// NewClient builds a client. limiter and breaker may be nil.
func NewClient(baseURL string, httpClient HTTPClient, limiter *ratelimit.Limiter, breaker *breakers.Breaker) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid yahoo base url: %w", err)
	}
	return &Client{
		baseURL: baseURL,
		host:    u.Host,
		http:    httpClient,
		limiter: limiter,
		breaker: breaker,
	}, nil
}

// IsUnknownSymbol lets the breaker skip symbol-level misses
func IsUnknownSymbol(err error) bool {
	return errors.Is(err, errUnknownSymbol)
}

// DailyCloses returns the daily closes of symbol between start and end, both inclusive
func (c *Client) DailyCloses(ctx context.Context, symbol string, start, end time.Time) (walk.Series, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.host); err != nil {
			return walk.Series{}, fmt.Errorf("%w: %s: rate limiter: %w", walk.ErrDataUnavailable, symbol, err)
		}
	}

	fetch := func() (any, error) { return c.fetch(ctx, symbol, start, end) }

	var (
		v   any
		err error
	)
	if c.breaker != nil {
		v, err = c.breaker.Execute(fetch)
	} else {
		v, err = fetch()
	}
	if err != nil {
		if breakers.IsOpen(err) {
			log.Warn().Str("symbol", symbol).Str("breaker", c.breaker.State()).
				Msg("Yahoo circuit open, request rejected")
		}
		return walk.Series{}, fmt.Errorf("%w: %s: %w", walk.ErrDataUnavailable, symbol, err)
	}
	return v.(walk.Series), nil
}

func (c *Client) fetch(ctx context.Context, symbol string, start, end time.Time) (walk.Series, error) {
	// period2 is exclusive on the Yahoo side
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history",
		c.baseURL, url.PathEscape(symbol), start.Unix(), end.AddDate(0, 0, 1).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return walk.Series{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return walk.Series{}, fmt.Errorf("failed to call Yahoo API: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return walk.Series{}, fmt.Errorf("%w %s", errUnknownSymbol, symbol)
	case resp.StatusCode != http.StatusOK:
		return walk.Series{}, fmt.Errorf("Yahoo API returned status %s", resp.Status)
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return walk.Series{}, fmt.Errorf("failed to decode Yahoo JSON: %w", err)
	}
	if chart.Chart.Error != nil {
		return walk.Series{}, fmt.Errorf("%w %s: %s", errUnknownSymbol, symbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return walk.Series{}, fmt.Errorf("%w %s: no results", errUnknownSymbol, symbol)
	}

	series := toSeries(symbol, chart.Chart.Result[0], start, end)
	if series.Len() == 0 {
		return walk.Series{}, fmt.Errorf("%w %s: no closes in window", errUnknownSymbol, symbol)
	}

	log.Debug().
		Str("symbol", symbol).
		Int("observations", series.Len()).
		Msg("Fetched Yahoo daily closes")
	return series, nil
}

// toSeries keeps non-null closes that fall inside the window, keyed by exchange-local date
func toSeries(symbol string, res chartResult, start, end time.Time) walk.Series {
	series := walk.Series{Symbol: symbol}
	if len(res.Indicators.Quote) == 0 {
		return series
	}
	closes := res.Indicators.Quote[0].Close
	last := end.AddDate(0, 0, 1)

	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		local := time.Unix(ts+res.Meta.GmtOffset, 0).UTC()
		date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		if date.Before(start) || !date.Before(last) {
			continue
		}
		// Yahoo occasionally repeats the latest bar
		if n := len(series.Observations); n > 0 && !date.After(series.Observations[n-1].Date) {
			continue
		}
		series.Observations = append(series.Observations, walk.Observation{Date: date, Close: *closes[i]})
	}
	return series
}
