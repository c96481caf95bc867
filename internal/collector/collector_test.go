package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rocasol/solarmon/internal/fetcher"
	"github.com/rocasol/solarmon/internal/store"
	"github.com/rocasol/solarmon/pkg/models"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testDate = time.Date(2025, time.June, 18, 0, 0, 0, 0, time.UTC)

// huaweiStub is a FusionSolar stand-in with a revocable token: every login
// mints a new token, and with expireFirst set the first token answers
// failCode 305 from page 2 onward.
type huaweiStub struct {
	logins      int
	expireFirst bool
	stations    int
}

func (h *huaweiStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/thirdData/login":
			h.logins++
			w.Header().Set("xsrf-token", fmt.Sprintf("tok-%d", h.logins))
			fmt.Fprint(w, `{"success":true}`)

		case "/thirdData/getKpiStationDay":
			token := r.Header.Get("XSRF-TOKEN")
			var body struct {
				PageNo int `json:"pageNo"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decoding request: %v", err)
			}

			// The first token dies before page 2 when configured to.
			if h.expireFirst && token == "tok-1" && body.PageNo > 1 {
				fmt.Fprint(w, `{"success":false,"failCode":305,"message":"USER_MUST_RELOGIN"}`)
				return
			}

			start := (body.PageNo - 1) * fetcher.PageSizeDefault
			if start >= h.stations {
				fmt.Fprint(w, `{"success":true,"data":null}`)
				return
			}
			end := start + fetcher.PageSizeDefault
			if end > h.stations {
				end = h.stations
			}

			type row struct {
				StationCode string             `json:"stationCode"`
				CollectTime int64              `json:"collectTime"`
				DataItemMap map[string]float64 `json:"dataItemMap"`
			}
			rows := make([]row, 0, end-start)
			for i := start; i < end; i++ {
				rows = append(rows, row{
					StationCode: fmt.Sprintf("STATION%03d", i),
					CollectTime: 1750222800000,
					DataItemMap: map[string]float64{"inverter_power": float64(i) + 0.5},
				})
			}
			resp := map[string]any{"success": true, "data": rows}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				t.Errorf("encoding response: %v", err)
			}

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestCollectHuaweiSystemAllPages(t *testing.T) {
	stub := &huaweiStub{stations: 150}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	db := testDB(t)
	for i := 0; i < 150; i++ {
		code := fmt.Sprintf("STATION%03d", i)
		if _, err := db.UpsertProject(&models.Project{Name: code, PlantCode: code, Vendor: models.VendorHuawei}); err != nil {
			t.Fatalf("registering project %s: %v", code, err)
		}
	}

	c := &Collector{
		Huawei: fetcher.NewHuaweiClient(srv.URL, "u", "s"),
		DB:     db,
		Sleep:  func(time.Duration) {},
	}

	stats, err := c.CollectHuaweiSystem(context.Background(), testDate)
	if err != nil {
		t.Fatalf("CollectHuaweiSystem returned error: %v", err)
	}
	if stats.Fetched != 150 || stats.Stored != 150 || stats.Skipped != 0 {
		t.Errorf("stats = %s", stats)
	}

	project, _, _, err := db.CountReadings()
	if err != nil {
		t.Fatalf("counting readings: %v", err)
	}
	if project != 150 {
		t.Errorf("expected 150 project readings, got %d", project)
	}
}

func TestCollectHuaweiSystemRecoversFromMidRunExpiry(t *testing.T) {
	stub := &huaweiStub{stations: 150, expireFirst: true}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	db := testDB(t)
	for i := 0; i < 150; i++ {
		code := fmt.Sprintf("STATION%03d", i)
		if _, err := db.UpsertProject(&models.Project{Name: code, PlantCode: code, Vendor: models.VendorHuawei}); err != nil {
			t.Fatalf("registering project %s: %v", code, err)
		}
	}

	c := &Collector{
		Huawei: fetcher.NewHuaweiClient(srv.URL, "u", "s"),
		DB:     db,
		Sleep:  func(time.Duration) {},
	}

	stats, err := c.CollectHuaweiSystem(context.Background(), testDate)
	if err != nil {
		t.Fatalf("CollectHuaweiSystem returned error: %v", err)
	}
	if stub.logins != 2 {
		t.Errorf("expected 2 logins (initial + recovery), got %d", stub.logins)
	}
	if stats.Stored != 150 {
		t.Errorf("expected all 150 stored after recovery, got %s", stats)
	}
}

func TestCollectHuaweiGranular(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/thirdData/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("xsrf-token", "tok")
		fmt.Fprint(w, `{"success":true}`)
	})
	mux.HandleFunc("/thirdData/getDevHistoryKpi", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DevTypeID string `json:"devTypeId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if body.DevTypeID != "1" {
			// No type-38 devices registered, so the driver must not get here
			// for them; an empty data element ends any other window.
			fmt.Fprint(w, `{"success":true,"data":null}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":[
			{"devId":1000012345678,"collectTime":1750222800000,"dataItemMap":{"mppt_1_cap":10.0,"mppt_2_cap":0.0}},
			{"devId":1000012345678,"collectTime":1750305600000,"dataItemMap":{"mppt_1_cap":42.5,"mppt_2_cap":0.0}}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	db := testDB(t)
	projectID, err := db.UpsertProject(&models.Project{Name: "Finca El Sol", PlantCode: "STATION1", Vendor: models.VendorHuawei})
	if err != nil {
		t.Fatalf("registering project: %v", err)
	}
	if _, err := db.UpsertInverter(&models.Inverter{ProjectID: projectID, Serial: "NE=34712345678", DevTypeID: "1"}); err != nil {
		t.Fatalf("registering inverter: %v", err)
	}

	c := &Collector{
		Huawei: fetcher.NewHuaweiClient(srv.URL, "u", "s"),
		DB:     db,
		Sleep:  func(time.Duration) {},
	}

	stats, err := c.CollectHuaweiGranular(context.Background(), testDate)
	if err != nil {
		t.Fatalf("CollectHuaweiGranular returned error: %v", err)
	}
	// One active channel; the silent mppt_2 is dropped before convergence.
	if stats.Stored != 1 {
		t.Errorf("stats = %s", stats)
	}

	_, _, channel, err := db.CountReadings()
	if err != nil {
		t.Fatalf("counting readings: %v", err)
	}
	if channel != 1 {
		t.Errorf("expected 1 channel reading, got %d", channel)
	}
}

func solisDayHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/api/inverterDay" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"success":true,"code":"0","data":[
			{"eToday":12.0,"timeStr":"2025-06-18 10:00:00"},
			{"eToday":55.5,"timeStr":"2025-06-18 18:00:00"}
		]}`)
	}
}

func TestCollectSolisInvertersPacesRequests(t *testing.T) {
	srv := httptest.NewServer(solisDayHandler(t))
	defer srv.Close()

	db := testDB(t)
	projectID, err := db.UpsertProject(&models.Project{Name: "Bodega Norte", PlantCode: "9001", Vendor: models.VendorSolis})
	if err != nil {
		t.Fatalf("registering project: %v", err)
	}
	for _, serial := range []string{"1101001", "1101002", "1101003"} {
		if _, err := db.UpsertInverter(&models.Inverter{ProjectID: projectID, Serial: serial}); err != nil {
			t.Fatalf("registering inverter %s: %v", serial, err)
		}
	}

	sleeps := 0
	c := &Collector{
		Solis: fetcher.NewSolisClient(srv.URL, "2101", "secret"),
		DB:    db,
		Pause: time.Second,
		Sleep: func(d time.Duration) {
			if d != time.Second {
				t.Errorf("unexpected sleep %v", d)
			}
			sleeps++
		},
	}

	stats, err := c.CollectSolisInverters(context.Background(), testDate)
	if err != nil {
		t.Fatalf("CollectSolisInverters returned error: %v", err)
	}
	if stats.Fetched != 3 || stats.Stored != 3 {
		t.Errorf("stats = %s", stats)
	}
	// Paced between requests, never after the last.
	if sleeps != 2 {
		t.Errorf("expected 2 pacing sleeps, got %d", sleeps)
	}

	_, inverter, _, err := db.CountReadings()
	if err != nil {
		t.Fatalf("counting readings: %v", err)
	}
	if inverter != 3 {
		t.Errorf("expected 3 inverter readings, got %d", inverter)
	}
}

func TestCollectSolisInvertersNoneRegistered(t *testing.T) {
	db := testDB(t)
	c := &Collector{
		Solis: fetcher.NewSolisClient("http://unused", "k", "s"),
		DB:    db,
	}

	stats, err := c.CollectSolisInverters(context.Background(), testDate)
	if err != nil {
		t.Fatalf("CollectSolisInverters returned error: %v", err)
	}
	if stats.Fetched != 0 || stats.Stored != 0 {
		t.Errorf("stats = %s", stats)
	}
}

func TestRunRejectsUnknownName(t *testing.T) {
	c := &Collector{}
	if _, err := c.Run(context.Background(), RunName("bogus"), testDate); err == nil {
		t.Fatal("expected error for unknown run name")
	}
}

func TestCollectAllStopsOnFirstFailureWithoutSkip(t *testing.T) {
	// No Solis endpoint is reachable, so the first sub-run fails and the
	// sequence halts there.
	db := testDB(t)
	projectID, err := db.UpsertProject(&models.Project{Name: "Bodega Norte", PlantCode: "9001", Vendor: models.VendorSolis})
	if err != nil {
		t.Fatalf("registering project: %v", err)
	}
	if _, err := db.UpsertInverter(&models.Inverter{ProjectID: projectID, Serial: "1101001"}); err != nil {
		t.Fatalf("registering inverter: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &Collector{
		Solis:  fetcher.NewSolisClient(srv.URL, "k", "s"),
		Huawei: fetcher.NewHuaweiClient(srv.URL, "u", "s"),
		DB:     db,
		Sleep:  func(time.Duration) {},
	}

	summary := c.CollectAll(context.Background(), testDate, false)
	if len(summary.Results) != 1 {
		t.Fatalf("expected halt after first failed sub-run, got %d results", len(summary.Results))
	}
	if summary.Results[0].Name != RunSolisSystem || summary.Results[0].Err == nil {
		t.Errorf("unexpected first result %+v", summary.Results[0])
	}
	if summary.Failed() != 1 || summary.Succeeded() != 0 {
		t.Errorf("failed=%d succeeded=%d", summary.Failed(), summary.Succeeded())
	}
}

func TestCollectAllContinuesWithSkipErrors(t *testing.T) {
	db := testDB(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &Collector{
		Solis:  fetcher.NewSolisClient(srv.URL, "k", "s"),
		Huawei: fetcher.NewHuaweiClient(srv.URL, "u", "s"),
		DB:     db,
		Sleep:  func(time.Duration) {},
	}

	summary := c.CollectAll(context.Background(), testDate, true)
	if len(summary.Results) != len(RunOrder) {
		t.Fatalf("expected all %d sub-runs attempted, got %d", len(RunOrder), len(summary.Results))
	}
	// solis-inverter succeeds trivially with nothing registered; the rest hit
	// the broken endpoint.
	if summary.Succeeded() != 1 {
		t.Errorf("expected 1 trivially succeeding sub-run, got %d", summary.Succeeded())
	}
}
