package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/sawpanic/randomwalk/internal/config"
	logsetup "github.com/sawpanic/randomwalk/internal/log"
)

// runFlags are the run parameters shared by simulate and serve
type runFlags struct {
	startDate  string
	endDate    string
	benchmark  string
	iterations int
	workers    int
	seed       int64
}

func (f *runFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.StringVar(&f.startDate, "start-date", "", "First day of the historical window (YYYY-MM-DD)")
	fs.StringVar(&f.endDate, "end-date", "", "Last day of the historical window (YYYY-MM-DD)")
	fs.StringVar(&f.benchmark, "benchmark", "", "Symbol whose trading-day count every series must match")
	fs.IntVar(&f.iterations, "iterations", 0, "Simulated paths per symbol")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent symbol pipelines")
	fs.Int64Var(&f.seed, "seed", 0, "Random seed (0 draws one from the clock)")
	return fs
}

// apply overrides config values with the flags the user actually set
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("start-date") {
		cfg.Simulation.StartDate = f.startDate
	}
	if fs.Changed("end-date") {
		cfg.Simulation.EndDate = f.endDate
	}
	if fs.Changed("benchmark") {
		cfg.Simulation.BenchmarkSymbol = f.benchmark
	}
	if fs.Changed("iterations") {
		cfg.Simulation.Iterations = f.iterations
	}
	if fs.Changed("workers") {
		cfg.Simulation.Workers = f.workers
	}
	if fs.Changed("seed") {
		cfg.Simulation.Seed = f.seed
	}
}

// loadConfig reads the config file, applies flag overrides and installs the logger
func loadConfig(root *rootOptions, run *runFlags, fs *pflag.FlagSet) (*config.Config, func(), error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, nil, err
	}
	run.apply(fs, cfg)
	if root.logLevel != "" {
		cfg.Log.Level = root.logLevel
	}
	if root.logJSON {
		cfg.Log.JSON = true
	}
	if root.logFile != "" {
		cfg.Log.File = root.logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	closer, err := logsetup.Setup(logsetup.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, File: cfg.Log.File})
	if err != nil {
		return nil, nil, err
	}
	return cfg, func() { closer.Close() }, nil
}
