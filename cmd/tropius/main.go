package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/CmdrKerfy/tropius-maximus/internal/config"
	"github.com/CmdrKerfy/tropius-maximus/internal/logging"
	"github.com/CmdrKerfy/tropius-maximus/internal/metrics"
)

var (
	rootCmd = &cobra.Command{
		Use:   "tropius",
		Short: "Pokemon TCG data pipeline",
		Long: `Tropius downloads Pokemon TCG card data, set catalogs and species
metadata into a local DuckDB database and exports the tables as
Parquet files for static consumers.`,
		SilenceUsage: true,
	}

	configPath string
	dbPath     string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "DuckDB database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
	rootCmd.AddCommand(ingestCmd, exportCmd, statsCmd)
}

func main() {
	// A .env file is optional and only feeds the environment overrides.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration from file, environment
// and flags, flags winning.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logging.New(cfg.LogLevel), nil
}

// startMetrics builds the metrics handle and, when enabled, serves it
// until the returned stop function runs.
func startMetrics(cfg *config.Config, log zerolog.Logger) (*metrics.Metrics, func()) {
	m := metrics.New(cfg.Metrics, logging.Component(log, "metrics"))
	if !m.IsEnabled() {
		return m, func() {}
	}
	m.StartServer()
	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	}
}
