package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/randomwalk/infra/breakers"
	"github.com/sawpanic/randomwalk/internal/application/simulate"
	"github.com/sawpanic/randomwalk/internal/config"
	"github.com/sawpanic/randomwalk/internal/data/cache"
	"github.com/sawpanic/randomwalk/internal/infrastructure/httpclient"
	"github.com/sawpanic/randomwalk/internal/interfaces/output"
	"github.com/sawpanic/randomwalk/internal/net/ratelimit"
	"github.com/sawpanic/randomwalk/internal/providers/influx"
	"github.com/sawpanic/randomwalk/internal/providers/yahoo"
)

// runConfig converts the file configuration into run parameters
func runConfig(cfg *config.Config) (simulate.Config, error) {
	start, end, err := cfg.Simulation.Window()
	if err != nil {
		return simulate.Config{}, err
	}
	return simulate.Config{
		TradingDaysPerYear: cfg.Simulation.TradingDaysPerYear,
		Iterations:         cfg.Simulation.Iterations,
		Start:              start,
		End:                end,
		BenchmarkSymbol:    cfg.Simulation.BenchmarkSymbol,
		Workers:            cfg.Simulation.Workers,
		Seed:               cfg.Simulation.Seed,
		FetchTimeout:       cfg.Simulation.FetchTimeout(),
	}, nil
}

// buildSource assembles the provider chain: yahoo or influx, optionally behind the cache
func buildSource(ctx context.Context, cfg *config.Config) (simulate.Source, func(), error) {
	var (
		upstream cache.Fetcher
		closers  []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Providers.Source {
	case "influx":
		ic := cfg.Providers.Influx
		src, closeFn, err := influx.Dial(ctx, ic.URL, ic.Token, ic.Org, ic.Bucket, ic.Measurement)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, closeFn)
		upstream = src
	default:
		yc := cfg.Providers.Yahoo
		pool := httpclient.NewClientPool(httpclient.ClientConfig{
			MaxConcurrency: cfg.Simulation.Workers,
			RequestTimeout: yc.RequestTimeout(),
			MaxRetries:     yc.MaxRetries,
			BackoffBase:    yc.BackoffMS.BaseBackoff(),
			BackoffMax:     yc.BackoffMS.MaxBackoff(),
			Jitter:         yc.BackoffMS.Jitter,
			UserAgent:      yc.UserAgent,
		})
		settings := breakers.DefaultSettings()
		if yc.Circuit.FailureThreshold > 0 {
			settings.ConsecutiveFailures = uint32(yc.Circuit.FailureThreshold)
		}
		if cooldown := yc.Circuit.Cooldown(); cooldown > 0 {
			settings.Cooldown = cooldown
		}
		breaker := breakers.New("yahoo", settings, yahoo.IsUnknownSymbol)
		limiter := ratelimit.NewLimiter(yc.RPS, yc.Burst)
		client, err := yahoo.NewClient(yc.BaseURL, pool, limiter, breaker)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { logProviderStats(pool, limiter, breaker) })
		upstream = client
	}

	if !cfg.Cache.Enabled {
		return upstream, cleanup, nil
	}

	var store cache.Cache = cache.NewTTLCache()
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("Redis unavailable, caching in memory")
		} else {
			store = rc
			closers = append(closers, func() { rc.Close() })
		}
	}
	return cache.NewSource(upstream, store, cfg.Cache.KeyPrefix, cfg.Cache.TTL()), cleanup, nil
}

func logProviderStats(pool *httpclient.ClientPool, limiter *ratelimit.Limiter, breaker *breakers.Breaker) {
	stats := pool.GetStats()
	evt := log.Debug().
		Int64("requests", stats.TotalRequests).
		Int64("succeeded", stats.SuccessRequests).
		Int64("failed", stats.FailedRequests).
		Int64("retried", stats.RetriedRequests).
		Str("breaker", breaker.State())
	for host, tokens := range limiter.Tokens() {
		evt = evt.Float64("tokens_"+host, tokens)
	}
	evt.Msg("Yahoo provider stats")
}

// buildSink picks stdout for batch-execution environments and a per-mode directory otherwise
func buildSink(mode simulate.Mode, batchEnv int, cfg *config.Config, stdout io.Writer) (simulate.Sink, error) {
	switch batchEnv {
	case 1:
		return output.NewStreamSink(stdout), nil
	case 0:
	default:
		return nil, fmt.Errorf("--batch-env must be 0 or 1, got %d", batchEnv)
	}

	dir := cfg.Output.SingleDir
	if mode == simulate.ModeBatch {
		dir = cfg.Output.BatchDir
	}
	files := output.NewFileSink(dir)
	if cfg.Output.Chart {
		return output.NewChartSink(files, dir), nil
	}
	return files, nil
}
