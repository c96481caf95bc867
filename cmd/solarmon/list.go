package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocasol/solarmon/pkg/models"
)

var listVendor string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored daily project readings",
	Long:  `Displays stored project-level daily energy readings from the database.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listVendor, "vendor", "", "Filter by vendor (huawei or solis)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	readings, err := db.ListProjectReadings(models.Vendor(listVendor))
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	if len(readings) == 0 {
		fmt.Println("No readings found")
		return nil
	}

	fmt.Println("--------------------------------------------------------------")
	fmt.Printf("%-12s  %-36s  %10s\n", "Date", "Project", "kWh")
	fmt.Println("--------------------------------------------------------------")

	var total float64
	for _, r := range readings {
		fmt.Printf("%-12s  %-36s  %10.2f\n", r.Date.Format("2006-01-02"), r.ProjectName, r.EnergyKWh)
		total += r.EnergyKWh
	}

	fmt.Println("--------------------------------------------------------------")
	fmt.Printf("Total: %.2f kWh (%d readings)\n", total, len(readings))
	return nil
}
