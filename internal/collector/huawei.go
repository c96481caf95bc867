package collector

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rocasol/solarmon/internal/fetcher"
	"github.com/rocasol/solarmon/internal/store"
	"github.com/rocasol/solarmon/pkg/models"
)

// huaweiDevTypes are the FusionSolar device types collected: "1" (string
// inverters) and "38" (residential inverters).
var huaweiDevTypes = []string{"1", "38"}

// CollectHuaweiSystem fetches and converges station-level day KPIs.
func (c *Collector) CollectHuaweiSystem(ctx context.Context, date time.Time) (store.Stats, error) {
	logger := log.WithFields(log.Fields{"component": "huawei", "op": "system", "date": date.Format("2006-01-02")})

	token, err := c.Huawei.Login(ctx)
	if err != nil {
		return store.Stats{}, fmt.Errorf("huawei login: %w", err)
	}
	relogin := func(ctx context.Context) error {
		fresh, err := c.Huawei.Login(ctx)
		if err != nil {
			return err
		}
		token = fresh
		return nil
	}

	dayMillis, err := MidnightMillis(date)
	if err != nil {
		return store.Stats{}, err
	}

	records, err := runPager(ctx, c.pager(logger, relogin), fetcher.PageSizeDefault,
		func(ctx context.Context, page int) ([]fetcher.SystemDayRecord, error) {
			return c.Huawei.FetchSystemPage(ctx, token, page, dayMillis)
		})
	if err != nil {
		return store.Stats{}, err
	}

	readings := make([]store.SystemReading, 0, len(records))
	for _, rec := range records {
		readings = append(readings, store.SystemReading{
			PlantCode: rec.StationCode,
			Date:      millisToDate(rec.CollectTime),
			EnergyKWh: rec.EnergyKWh,
		})
	}
	return c.DB.ConvergeSystemReadings(readings, logger)
}

// CollectHuaweiInverters fetches and converges device-level day KPIs for
// each collected device type.
func (c *Collector) CollectHuaweiInverters(ctx context.Context, date time.Time) (store.Stats, error) {
	logger := log.WithFields(log.Fields{"component": "huawei", "op": "inverter", "date": date.Format("2006-01-02")})

	token, err := c.Huawei.Login(ctx)
	if err != nil {
		return store.Stats{}, fmt.Errorf("huawei login: %w", err)
	}
	relogin := func(ctx context.Context) error {
		fresh, err := c.Huawei.Login(ctx)
		if err != nil {
			return err
		}
		token = fresh
		return nil
	}

	dayMillis, err := MidnightMillis(date)
	if err != nil {
		return store.Stats{}, err
	}

	var total store.Stats
	for _, devType := range huaweiDevTypes {
		typeLog := logger.WithField("dev_type", devType)

		records, err := runPager(ctx, c.pager(typeLog, relogin), fetcher.PageSizeDefault,
			func(ctx context.Context, page int) ([]fetcher.InverterDayRecord, error) {
				return c.Huawei.FetchInverterPage(ctx, token, devType, page, dayMillis)
			})
		if err != nil {
			return total, fmt.Errorf("dev type %s: %w", devType, err)
		}

		readings := make([]store.InverterReading, 0, len(records))
		for _, rec := range records {
			readings = append(readings, store.InverterReading{
				Serial:    rec.DevID,
				Date:      millisToDate(rec.CollectTime),
				EnergyKWh: rec.EnergyKWh,
			})
		}

		stats, err := c.DB.ConvergeInverterReadings(readings, typeLog)
		total = addStats(total, stats)
		if err != nil {
			return total, fmt.Errorf("dev type %s: %w", devType, err)
		}
	}
	return total, nil
}

// CollectHuaweiGranular fetches the day's cumulative-counter window for the
// registered inverters, ten devices per page, derives per-channel interval
// energy, and converges it.
func (c *Collector) CollectHuaweiGranular(ctx context.Context, date time.Time) (store.Stats, error) {
	logger := log.WithFields(log.Fields{"component": "huawei", "op": "granular", "date": date.Format("2006-01-02")})

	token, err := c.Huawei.Login(ctx)
	if err != nil {
		return store.Stats{}, fmt.Errorf("huawei login: %w", err)
	}
	relogin := func(ctx context.Context) error {
		fresh, err := c.Huawei.Login(ctx)
		if err != nil {
			return err
		}
		token = fresh
		return nil
	}

	startMillis, err := MidnightMillis(date)
	if err != nil {
		return store.Stats{}, err
	}
	endMillis, err := MidnightMillis(date.AddDate(0, 0, 1))
	if err != nil {
		return store.Stats{}, err
	}

	var total store.Stats
	for _, devType := range huaweiDevTypes {
		typeLog := logger.WithField("dev_type", devType)

		inverters, err := c.DB.ListInverters(models.VendorHuawei, devType)
		if err != nil {
			return total, err
		}

		devices, err := runPager(ctx, c.pager(typeLog, relogin), fetcher.PageSizeHistory,
			func(ctx context.Context, page int) ([]fetcher.DeviceChannels, error) {
				slice := devicePage(inverters, page)
				if len(slice) == 0 {
					return nil, fetcher.ErrEmptyBatch
				}
				serials := make([]string, len(slice))
				for i, inv := range slice {
					serials[i] = inv.Serial
				}
				samples, err := c.Huawei.FetchDeviceHistory(ctx, token, devType, serials, startMillis, endMillis)
				if err != nil {
					return nil, err
				}
				return fetcher.DeriveDeviceChannels(samples), nil
			})
		if err != nil {
			return total, fmt.Errorf("dev type %s: %w", devType, err)
		}

		var readings []store.ChannelReading
		for _, dev := range devices {
			for _, ch := range dev.Channels {
				readings = append(readings, store.ChannelReading{
					SerialSuffix:  fetcher.SerialSuffix(dev.DevID),
					ChannelNumber: ch.Number,
					Date:          date,
					EnergyKWh:     ch.EnergyKWh,
				})
			}
		}

		stats, err := c.DB.ConvergeChannelReadings(readings, typeLog)
		total = addStats(total, stats)
		if err != nil {
			return total, fmt.Errorf("dev type %s: %w", devType, err)
		}
	}
	return total, nil
}

// devicePage slices the registered-device list into fixed history pages.
func devicePage(inverters []models.Inverter, page int) []models.Inverter {
	start := (page - 1) * fetcher.PageSizeHistory
	if start >= len(inverters) {
		return nil
	}
	end := start + fetcher.PageSizeHistory
	if end > len(inverters) {
		end = len(inverters)
	}
	return inverters[start:end]
}

// millisToDate converts a vendor epoch-millis day stamp to a UTC calendar
// date. Zero stays zero so malformed records get skipped downstream.
func millisToDate(millis int64) time.Time {
	if millis == 0 {
		return time.Time{}
	}
	t := time.UnixMilli(millis).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func addStats(a, b store.Stats) store.Stats {
	return store.Stats{
		Fetched: a.Fetched + b.Fetched,
		Stored:  a.Stored + b.Stored,
		Skipped: a.Skipped + b.Skipped,
	}
}
