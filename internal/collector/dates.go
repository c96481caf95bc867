package collector

import (
	"fmt"
	"time"
)

// bogotaTZ is the reporting timezone for all projects. Day boundaries are
// computed tz-aware rather than with a fixed UTC-5 offset.
const bogotaTZ = "America/Bogota"

func bogota() (*time.Location, error) {
	loc, err := time.LoadLocation(bogotaTZ)
	if err != nil {
		return nil, fmt.Errorf("loading %s timezone: %w", bogotaTZ, err)
	}
	return loc, nil
}

// Yesterday returns yesterday's calendar date in the Bogota timezone.
func Yesterday(now time.Time) (time.Time, error) {
	loc, err := bogota()
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := now.In(loc).AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// MidnightMillis returns the epoch milliseconds of local midnight in Bogota
// for the given calendar date.
func MidnightMillis(date time.Time) (int64, error) {
	loc, err := bogota()
	if err != nil {
		return 0, err
	}
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return midnight.UnixMilli(), nil
}
