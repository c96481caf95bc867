package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocasol/solarmon/internal/fetcher"
	"github.com/rocasol/solarmon/internal/register"
)

var registerStation string

var registerCmd = &cobra.Command{
	Use:   "register [vendor]",
	Short: "Register projects and inverters from a vendor's device listing",
	Long: `Registers inverters (and for Solis, projects) from the vendor's
registration-time listing endpoints.

For huawei, --station is required and the project for that station code must
already exist. For solis, the full inverter listing is paged and every
station and inverter in it is registered.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerStation, "station", "", "Huawei station code to register devices for")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	vendor := args[0]

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

	ctx := context.Background()
	switch vendor {
	case "huawei":
		if registerStation == "" {
			return fmt.Errorf("--station is required for huawei registration")
		}
		client := fetcher.NewHuaweiClient(cfg.Huawei.BaseURL, cfg.Huawei.Username, cfg.Huawei.SystemCode)
		n, err := register.HuaweiStation(ctx, client, db, registerStation)
		if err != nil {
			return fmt.Errorf("registering huawei station: %w", err)
		}
		fmt.Printf("Registered %d inverter(s) for station %s\n", n, registerStation)

	case "solis":
		client := fetcher.NewSolisClient(cfg.Solis.BaseURL, cfg.Solis.KeyID, cfg.Solis.KeySecret)
		projects, inverters, err := register.SolisInverters(ctx, client, db)
		if err != nil {
			return fmt.Errorf("registering solis inverters: %w", err)
		}
		fmt.Printf("Registered %d project(s) and %d inverter(s)\n", projects, inverters)

	default:
		return fmt.Errorf("unknown vendor: %s (available: huawei, solis)", vendor)
	}
	return nil
}
