package models

import "time"

// Vendor identifies which monitoring platform a project reports through.
type Vendor string

const (
	VendorHuawei Vendor = "huawei"
	VendorSolis  Vendor = "solis"
)

// Project represents a monitored solar installation.
type Project struct {
	ID           int64
	Name         string
	PlantCode    string // vendor-assigned plant/station code; empty if not integrated
	Vendor       Vendor
	CapacityAC   float64 // kW
	CapacityDC   float64 // kW
	Commissioned time.Time
}

// Inverter is a power-conversion device belonging to a Project.
type Inverter struct {
	ID        int64
	ProjectID int64
	Serial    string // vendor device identifier (Huawei devDn, Solis inverter id)
	DevTypeID string // Huawei device-type tag ("1" or "38"); empty for Solis
}

// Channel is a sub-inverter input (MPPT/string) tracked independently.
// Channel rows are created lazily by the ingestion core on first observation.
type Channel struct {
	ID         int64
	InverterID int64
	Serial     string // "{deviceSerial}-{channelNumber}"
	Kind       string // "MPPT"
}

// DailyReading is a (subject, calendar date) -> energy fact. Exactly one row
// exists per subject and date; re-ingestion updates in place.
type DailyReading struct {
	ProjectID  int64
	InverterID int64 // 0 for project-level readings
	ChannelID  int64 // 0 for project- and inverter-level readings
	Date       time.Time
	EnergyKWh  float64
}
