package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/randomwalk/internal/infrastructure/db"
	httpserver "github.com/sawpanic/randomwalk/internal/interfaces/http"
	"github.com/sawpanic/randomwalk/internal/metrics"
	"github.com/sawpanic/randomwalk/internal/net/ratelimit"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		run           runFlags
		host          string
		port          int
		maxIterations int
		rateLimit     float64
		rateBurst     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /health, /metrics and on-demand simulations over HTTP",
		Example: `  randomwalk serve --port 8080
  curl 'localhost:8080/v1/simulate/AAPL?start=2017-01-01&end=2019-01-01&iterations=100'`,
		Args: cobra.NoArgs,
	}

	runSet := run.flagSet()
	cmd.Flags().AddFlagSet(runSet)
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Listen address")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default HTTP_PORT or 8080)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 10000, "Upper bound on iterations per request")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 2, "Simulations per second per client (0 disables)")
	cmd.Flags().IntVar(&rateBurst, "rate-burst", 4, "Burst of simulations per client")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, closeLog, err := loadConfig(root, &run, runSet)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx := cmd.Context()
		base, err := runConfig(cfg)
		if err != nil {
			return err
		}
		source, closeSource, err := buildSource(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeSource()

		ledger, err := db.Open(ctx, cfg.Ledger)
		if err != nil {
			return err
		}
		defer ledger.Close()

		deps := httpserver.HandlerDeps{
			Source:        source,
			Base:          base,
			MaxIterations: maxIterations,
			Metrics:       metrics.NewCollector(),
		}
		if ledger.IsEnabled() {
			deps.Ledger = ledger.Ledger()
			deps.Health = ledger.Health()
		}
		if rateLimit > 0 {
			deps.Limiter = ratelimit.NewLimiter(rateLimit, max(rateBurst, 1))
		}
		handlers := httpserver.NewHandlers(deps)

		serverCfg := httpserver.DefaultServerConfig()
		serverCfg.Host = host
		if port > 0 {
			serverCfg.Port = port
		}
		server := httpserver.NewServer(serverCfg, handlers)

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	}
	return cmd
}
