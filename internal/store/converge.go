package store

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// SystemReading is a fetched project-level energy fact, keyed by vendor
// plant code.
type SystemReading struct {
	PlantCode string
	Date      time.Time
	EnergyKWh float64
}

// InverterReading is a fetched inverter-level energy fact, keyed by device
// serial.
type InverterReading struct {
	Serial    string
	Date      time.Time
	EnergyKWh float64
}

// ChannelReading is a derived channel-level energy fact. The inverter is
// identified by the last-8-digit suffix of the vendor's numeric device id.
type ChannelReading struct {
	SerialSuffix  string
	ChannelNumber int
	Date          time.Time
	EnergyKWh     float64
}

// Stats summarizes one convergence pass over a fetched batch.
type Stats struct {
	Fetched int
	Stored  int
	Skipped int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d fetched, %d stored, %d skipped", s.Fetched, s.Stored, s.Skipped)
}

// ConvergeSystemReadings upserts project-level readings. Records naming an
// unregistered plant code or missing required fields are logged and skipped;
// a single orphan never fails the batch.
func (db *DB) ConvergeSystemReadings(readings []SystemReading, logger *log.Entry) (Stats, error) {
	stats := Stats{Fetched: len(readings)}
	for _, r := range readings {
		if r.PlantCode == "" || r.Date.IsZero() {
			logger.WithField("plant_code", r.PlantCode).Warn("malformed system record skipped")
			stats.Skipped++
			continue
		}

		project, err := db.ProjectByPlantCode(r.PlantCode)
		if err != nil {
			return stats, err
		}
		if project == nil {
			logger.WithFields(log.Fields{"plant_code": r.PlantCode, "date": r.Date.Format(dateLayout)}).
				Warn("no project registered for plant code, record skipped")
			stats.Skipped++
			continue
		}

		if err := db.UpsertProjectReading(project.ID, r.Date, r.EnergyKWh); err != nil {
			return stats, err
		}
		stats.Stored++
	}
	return stats, nil
}

// ConvergeInverterReadings upserts inverter-level readings, skipping records
// whose device serial is not registered.
func (db *DB) ConvergeInverterReadings(readings []InverterReading, logger *log.Entry) (Stats, error) {
	stats := Stats{Fetched: len(readings)}
	for _, r := range readings {
		if r.Serial == "" || r.Date.IsZero() {
			logger.WithField("serial", r.Serial).Warn("malformed inverter record skipped")
			stats.Skipped++
			continue
		}

		inv, err := db.InverterBySerial(r.Serial)
		if err != nil {
			return stats, err
		}
		if inv == nil {
			logger.WithFields(log.Fields{"serial": r.Serial, "date": r.Date.Format(dateLayout)}).
				Warn("no inverter registered for serial, record skipped")
			stats.Skipped++
			continue
		}

		if err := db.UpsertInverterReading(inv.ProjectID, inv.ID, r.Date, r.EnergyKWh); err != nil {
			return stats, err
		}
		stats.Stored++
	}
	return stats, nil
}

// ConvergeChannelReadings upserts channel-level readings, creating missing
// Channel rows on first observation. Channel serials follow the
// "{deviceSerial}-{channelNumber}" convention and are tagged as MPPT.
func (db *DB) ConvergeChannelReadings(readings []ChannelReading, logger *log.Entry) (Stats, error) {
	stats := Stats{Fetched: len(readings)}
	for _, r := range readings {
		if r.SerialSuffix == "" || r.Date.IsZero() {
			logger.WithField("serial_suffix", r.SerialSuffix).Warn("malformed channel record skipped")
			stats.Skipped++
			continue
		}

		inv, err := db.InverterBySerialSuffix(r.SerialSuffix)
		if err != nil {
			return stats, err
		}
		if inv == nil {
			logger.WithFields(log.Fields{"serial_suffix": r.SerialSuffix, "date": r.Date.Format(dateLayout)}).
				Warn("no inverter matches device id suffix, record skipped")
			stats.Skipped++
			continue
		}

		serial := fmt.Sprintf("%s-%d", inv.Serial, r.ChannelNumber)
		channelID, err := db.EnsureChannel(inv.ID, serial, "MPPT")
		if err != nil {
			return stats, err
		}

		if err := db.UpsertChannelReading(inv.ProjectID, inv.ID, channelID, r.Date, r.EnergyKWh); err != nil {
			return stats, err
		}
		stats.Stored++
	}
	return stats, nil
}
