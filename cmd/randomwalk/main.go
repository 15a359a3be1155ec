package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
)

const (
	appName = "randomwalk"
	version = "v1.0.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// rootOptions are shared by every subcommand
type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
	logFile    string
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Monte Carlo stock price paths from historical daily closes",
		Version: version,
		Long: `randomwalk projects one year of daily prices for a stock, or a list of stocks,
with a geometric Brownian motion model whose drift and volatility come from the
closes observed in a historical window.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Force JSON logs on a terminal")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Also append JSON logs to this file")

	rootCmd.AddCommand(newSimulateCmd(opts, stdout))
	rootCmd.AddCommand(newServeCmd(opts))
	return rootCmd
}

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var symErr *walk.SymbolError
	if errors.As(err, &symErr) && errors.Is(err, walk.ErrDataUnavailable) {
		log.Error().
			Str("symbol", symErr.Symbol).
			Str("start", symErr.Start.Format(walk.DateLayout)).
			Str("end", symErr.End.Format(walk.DateLayout)).
			Msgf("No access to historical prices for %s between %s and %s, please check Yahoo Finance manually",
				symErr.Symbol, symErr.Start.Format(walk.DateLayout), symErr.End.Format(walk.DateLayout))
	} else {
		log.Error().Err(err).Msg(appName + " failed")
	}
	return 1
}
