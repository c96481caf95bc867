package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rocasol/solarmon/internal/alert"
	"github.com/rocasol/solarmon/internal/collector"
	"github.com/rocasol/solarmon/internal/config"
	"github.com/rocasol/solarmon/internal/fetcher"
	"github.com/rocasol/solarmon/internal/store"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "solarmon",
	Short: "Collect daily solar production data from Huawei FusionSolar and SolisCloud",
	Long: `Solarmon ingests daily energy-production telemetry from the FusionSolar and
SolisCloud APIs and converges it into per-project, per-inverter and per-MPPT
daily readings in a local SQLite database.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./solarmon.db)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "solarmon.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// openDB opens the database connection
func openDB() (*store.DB, error) {
	return store.New(getDBPath())
}

// setupLogging configures logrus and, when enabled, the MQTT alert hook.
// The returned cleanup disconnects the hook.
func setupLogging(cfg *config.Config) (func(), error) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, QuoteEmptyFields: true})

	if cfg.LogLevel != "" {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
		}
		log.SetLevel(level)
	}

	if !cfg.Alerts.Enabled {
		return func() {}, nil
	}

	hook, err := alert.NewHook(cfg.Alerts)
	if err != nil {
		return nil, fmt.Errorf("setting up alert channel: %w", err)
	}
	log.AddHook(hook)
	return hook.Close, nil
}

// newCollector wires the vendor clients and the store into a collector.
func newCollector(cfg *config.Config, db *store.DB) *collector.Collector {
	return &collector.Collector{
		Huawei:           fetcher.NewHuaweiClient(cfg.Huawei.BaseURL, cfg.Huawei.Username, cfg.Huawei.SystemCode),
		Solis:            fetcher.NewSolisClient(cfg.Solis.BaseURL, cfg.Solis.KeyID, cfg.Solis.KeySecret),
		DB:               db,
		Pause:            time.Duration(cfg.Collect.PauseSeconds * float64(time.Second)),
		Backoff:          time.Duration(cfg.Collect.BackoffSeconds * float64(time.Second)),
		RateLimitRetries: cfg.Collect.RateLimitRetries,
	}
}

// resolveDate parses --date or falls back to yesterday in the reporting
// timezone.
func resolveDate(dateFlag string) (time.Time, error) {
	if dateFlag == "" {
		return collector.Yesterday(time.Now())
	}
	date, err := time.Parse("2006-01-02", dateFlag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", dateFlag)
	}
	return date, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
