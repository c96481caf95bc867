package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rocasol/solarmon/internal/fetcher"
	"github.com/rocasol/solarmon/internal/store"
	"github.com/rocasol/solarmon/pkg/models"
)

// CollectSolisSystem fetches and converges station-level day energy.
func (c *Collector) CollectSolisSystem(ctx context.Context, date time.Time) (store.Stats, error) {
	logger := log.WithFields(log.Fields{"component": "solis", "op": "system", "date": date.Format("2006-01-02")})
	dateStr := date.Format("2006-01-02")

	// Solis requests are individually signed, so there is no session to
	// refresh; an expiry signal cannot occur.
	records, err := runPager(ctx, c.pager(logger, nil), fetcher.PageSizeDefault,
		func(ctx context.Context, page int) ([]fetcher.StationDayRecord, error) {
			return c.Solis.FetchSystemPage(ctx, page, dateStr)
		})
	if err != nil {
		return store.Stats{}, err
	}

	readings := make([]store.SystemReading, 0, len(records))
	for _, rec := range records {
		readings = append(readings, store.SystemReading{
			PlantCode: rec.StationID,
			Date:      parseDay(rec.Date),
			EnergyKWh: rec.EnergyKWh,
		})
	}
	return c.DB.ConvergeSystemReadings(readings, logger)
}

// CollectSolisInverters fetches the day total for every registered Solis
// inverter, one device at a time, pacing requests to stay under the vendor
// rate limit. A failed device is logged and counted, never fatal for the
// remaining devices.
func (c *Collector) CollectSolisInverters(ctx context.Context, date time.Time) (store.Stats, error) {
	logger := log.WithFields(log.Fields{"component": "solis", "op": "inverter", "date": date.Format("2006-01-02")})
	dateStr := date.Format("2006-01-02")

	inverters, err := c.DB.ListInverters(models.VendorSolis, "")
	if err != nil {
		return store.Stats{}, err
	}
	if len(inverters) == 0 {
		logger.Warn("no solis inverters registered, nothing to collect")
		return store.Stats{}, nil
	}
	logger.WithField("inverters", len(inverters)).Info("collecting per-inverter day totals")

	stats := store.Stats{Fetched: len(inverters)}
	for i, inv := range inverters {
		devLog := logger.WithField("serial", inv.Serial)

		day, err := c.Solis.FetchInverterDay(ctx, inv.Serial, dateStr)
		switch {
		case errors.Is(err, fetcher.ErrEmptyBatch):
			devLog.Warn("no samples returned for inverter, skipped")
			stats.Skipped++
		case err != nil:
			devLog.WithError(err).Error("fetching inverter day failed, skipped")
			stats.Skipped++
		default:
			converged, cerr := c.DB.ConvergeInverterReadings([]store.InverterReading{{
				Serial:    day.InverterID,
				Date:      parseDay(day.Date),
				EnergyKWh: day.EnergyKWh,
			}}, devLog)
			stats.Stored += converged.Stored
			stats.Skipped += converged.Skipped
			if cerr != nil {
				return stats, fmt.Errorf("inverter %s: %w", inv.Serial, cerr)
			}
		}

		// Pace between sequential requests, not after the last.
		if i < len(inverters)-1 && c.Pause > 0 {
			c.sleep(c.Pause)
		}
	}
	return stats, nil
}

// parseDay parses a "2006-01-02" day string. Zero time on failure so the
// convergence layer skips the record as malformed.
func parseDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
