package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	collectDate       string
	collectSkipErrors bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run the full collection sequence for a date",
	Long: `Runs every vendor/granularity collection for the target date, in order:
solis-system, solis-inverter, huawei-system, huawei-inverter, huawei-granular.

Without --date, collects for yesterday in the America/Bogota timezone.`,
	RunE: runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectDate, "date", "", "date to collect (YYYY-MM-DD, default: yesterday)")
	collectCmd.Flags().BoolVar(&collectSkipErrors, "skip-errors", false, "continue with remaining runs when one fails")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
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

	date, err := resolveDate(collectDate)
	if err != nil {
		return err
	}

	col := newCollector(cfg, db)
	summary := col.CollectAll(context.Background(), date, collectSkipErrors)

	fmt.Printf("\nCollection summary for %s\n", summary.Date.Format("2006-01-02"))
	fmt.Println("----------------------------------------")
	for _, result := range summary.Results {
		if result.Err != nil {
			fmt.Printf("%-18s FAILED: %v\n", result.Name, result.Err)
			continue
		}
		fmt.Printf("%-18s %s\n", result.Name, result.Stats)
	}
	fmt.Println("----------------------------------------")
	fmt.Printf("%d succeeded, %d failed\n", summary.Succeeded(), summary.Failed())

	if summary.Failed() > 0 && !collectSkipErrors {
		return fmt.Errorf("collection stopped after %d failed run(s)", summary.Failed())
	}
	if summary.Failed() == len(summary.Results) && len(summary.Results) > 0 {
		return fmt.Errorf("all %d collection runs failed", len(summary.Results))
	}
	return nil
}
