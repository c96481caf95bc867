// Package register implements the registration workflows that own Project
// and Inverter identity. The ingestion runs treat the registry as read-only.
package register

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/rocasol/solarmon/internal/fetcher"
	"github.com/rocasol/solarmon/internal/store"
	"github.com/rocasol/solarmon/pkg/models"
)

// HuaweiStation registers the inverters of one FusionSolar station. The
// project must already exist for the station code; only devices of the
// collected types (1, 38) are registered.
func HuaweiStation(ctx context.Context, client *fetcher.HuaweiClient, db *store.DB, stationCode string) (int, error) {
	logger := log.WithFields(log.Fields{"component": "register", "vendor": "huawei", "station": stationCode})

	project, err := db.ProjectByPlantCode(stationCode)
	if err != nil {
		return 0, err
	}
	if project == nil {
		return 0, fmt.Errorf("no project registered for plant code %q", stationCode)
	}

	token, err := client.Login(ctx)
	if err != nil {
		return 0, fmt.Errorf("huawei login: %w", err)
	}

	devices, err := client.FetchDeviceList(ctx, token, stationCode)
	if err != nil {
		return 0, fmt.Errorf("fetching device list: %w", err)
	}

	registered := 0
	for _, dev := range devices {
		if dev.DevTypeID != "1" && dev.DevTypeID != "38" {
			continue
		}
		if _, err := db.UpsertInverter(&models.Inverter{
			ProjectID: project.ID,
			Serial:    dev.DevDn,
			DevTypeID: dev.DevTypeID,
		}); err != nil {
			return registered, err
		}
		logger.WithFields(log.Fields{"serial": dev.DevDn, "dev_type": dev.DevTypeID}).Info("inverter registered")
		registered++
	}
	if registered == 0 {
		return 0, fmt.Errorf("no inverters with device type 1 or 38 found for station %q", stationCode)
	}
	return registered, nil
}

// SolisInverters pages the SolisCloud inverter listing and registers every
// station and inverter it names. Stations become projects keyed by station
// id; projects created here carry the station name until amended by hand.
func SolisInverters(ctx context.Context, client *fetcher.SolisClient, db *store.DB) (projects, inverters int, err error) {
	logger := log.WithFields(log.Fields{"component": "register", "vendor": "solis"})

	pager := &fetcher.Pager[fetcher.SolisInverterInfo]{
		PageSize: fetcher.PageSizeDefault,
		Fetch:    client.FetchInverterListPage,
		Log:      logger,
	}
	listing, err := pager.Run(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching inverter list: %w", err)
	}

	seenStations := make(map[string]int64)
	for _, info := range listing {
		projectID, seen := seenStations[info.StationID]
		if !seen {
			existing, err := db.ProjectByPlantCode(info.StationID)
			if err != nil {
				return projects, inverters, err
			}
			if existing != nil {
				projectID = existing.ID
			} else {
				projectID, err = db.UpsertProject(&models.Project{
					Name:      info.StationName,
					PlantCode: info.StationID,
					Vendor:    models.VendorSolis,
				})
				if err != nil {
					return projects, inverters, err
				}
				logger.WithFields(log.Fields{"station": info.StationID, "name": info.StationName}).Info("project registered")
				projects++
			}
			seenStations[info.StationID] = projectID
		}

		if _, err := db.UpsertInverter(&models.Inverter{
			ProjectID: projectID,
			Serial:    info.InverterID,
		}); err != nil {
			return projects, inverters, err
		}
		logger.WithField("serial", info.InverterID).Info("inverter registered")
		inverters++
	}
	return projects, inverters, nil
}
