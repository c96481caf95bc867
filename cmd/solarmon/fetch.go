package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocasol/solarmon/internal/collector"
)

var fetchDate string

var fetchCmd = &cobra.Command{
	Use:   "fetch [run]",
	Short: "Run a single collection for a date",
	Long: `Fetches and stores one vendor/granularity slice for the target date.

Available runs: solis-system, solis-inverter, huawei-system,
huawei-inverter, huawei-granular`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDate, "date", "", "date to collect (YYYY-MM-DD, default: yesterday)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	name := collector.RunName(args[0])
	known := false
	for _, candidate := range collector.RunOrder {
		if candidate == name {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown run: %s (available: %v)", name, collector.RunOrder)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	date, err := resolveDate(fetchDate)
	if err != nil {
		return err
	}

	col := newCollector(cfg, db)
	stats, err := col.Run(context.Background(), name, date)
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	fmt.Printf("%s for %s: %s\n", name, date.Format("2006-01-02"), stats)
	return nil
}
