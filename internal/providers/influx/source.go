// Package influx reads daily closes from an InfluxDB bucket filled by a data fetcher
package influx

import (
	"context"
	"fmt"
	"regexp"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
)

// QueryAPI is the slice of the influx query API the source needs
type QueryAPI interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// tickers are interpolated into Flux, so only plain symbols are allowed
var tickerPattern = regexp.MustCompile(`^[A-Za-z0-9.\-^=]{1,15}$`)

// Source implements the market-data source over a stock_prices measurement
type Source struct {
	query       QueryAPI
	bucket      string
	measurement string
}

// NewSource wraps an existing query API
func NewSource(query QueryAPI, bucket, measurement string) *Source {
	return &Source{query: query, bucket: bucket, measurement: measurement}
}

// Dial connects to InfluxDB and checks its health before returning a source
func Dial(ctx context.Context, url, token, org, bucket, measurement string) (*Source, func(), error) {
	client := influxdb2.NewClient(url, token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("influx health check failed: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, nil, fmt.Errorf("influx not ready: status %s", health.Status)
	}

	log.Info().Str("url", url).Str("org", org).Str("bucket", bucket).Msg("Connected to InfluxDB")
	return NewSource(client.QueryAPI(org), bucket, measurement), client.Close, nil
}

// DailyCloses returns the closes stored for symbol between start and end, both inclusive
func (s *Source) DailyCloses(ctx context.Context, symbol string, start, end time.Time) (walk.Series, error) {
	if !tickerPattern.MatchString(symbol) {
		return walk.Series{}, fmt.Errorf("%w: invalid ticker %q", walk.ErrDataUnavailable, symbol)
	}

	result, err := s.query.Query(ctx, s.buildQuery(symbol, start, end))
	if err != nil {
		return walk.Series{}, fmt.Errorf("%w: %s: influx query: %v", walk.ErrDataUnavailable, symbol, err)
	}
	// Guard against nil result (can happen with empty query results)
	if result == nil {
		return walk.Series{}, fmt.Errorf("%w: %s: empty result", walk.ErrDataUnavailable, symbol)
	}
	defer result.Close()

	series := walk.Series{Symbol: symbol}
	for result.Next() {
		rec := result.Record()
		price, ok := rec.Value().(float64)
		if !ok {
			continue
		}
		t := rec.Time().UTC()
		date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		if n := len(series.Observations); n > 0 && !date.After(series.Observations[n-1].Date) {
			continue
		}
		series.Observations = append(series.Observations, walk.Observation{Date: date, Close: price})
	}
	if result.Err() != nil {
		return walk.Series{}, fmt.Errorf("%w: %s: influx result: %v", walk.ErrDataUnavailable, symbol, result.Err())
	}
	if series.Len() == 0 {
		return walk.Series{}, fmt.Errorf("%w: %s: no closes in window", walk.ErrDataUnavailable, symbol)
	}
	return series, nil
}

func (s *Source) buildQuery(symbol string, start, end time.Time) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s, stop: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.ticker == "%s")
		  |> filter(fn: (r) => r._field == "close")
		  |> sort(columns: ["_time"], desc: false)
	`, s.bucket, start.Format(time.RFC3339), end.AddDate(0, 0, 1).Format(time.RFC3339), s.measurement, symbol)
}
