package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func solisTestServer(t *testing.T, handler http.HandlerFunc) *SolisClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSolisClient(srv.URL, "2101", "secret")
}

func TestSolisFetchSystemPage(t *testing.T) {
	client := solisTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/api/stationDayEnergyList" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("reading body: %v", err)
		}
		if string(body) != `{"pageNo":"3","pageSize":100,"time":"2025-06-18"}` {
			t.Errorf("unexpected body %s", body)
		}

		// The signature must cover the exact bytes that arrived.
		if got := r.Header.Get("Content-MD5"); got != contentMD5(body) {
			t.Errorf("Content-MD5 = %q does not match body digest %q", got, contentMD5(body))
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "API 2101:") {
			t.Errorf("Authorization = %q", auth)
		}
		if r.Header.Get("Date") == "" {
			t.Error("missing Date header")
		}

		fmt.Fprint(w, `{"success":true,"code":"0","data":{"records":[
			{"id":1298491919448299999,"dateStr":"2025-06-18","energy":410.2},
			{"id":"1298491919448300123","dateStr":"2025-06-18","energy":55.0}
		]}}`)
	})

	records, err := client.FetchSystemPage(context.Background(), 3, "2025-06-18")
	if err != nil {
		t.Fatalf("FetchSystemPage returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Large numeric ids must survive without float rounding.
	if records[0].StationID != "1298491919448299999" {
		t.Errorf("station id = %q", records[0].StationID)
	}
	if records[0].EnergyKWh != 410.2 || records[0].Date != "2025-06-18" {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].StationID != "1298491919448300123" {
		t.Errorf("station id = %q", records[1].StationID)
	}
}

func TestSolisFetchInverterDayTakesLastSample(t *testing.T) {
	client := solisTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/api/inverterDay" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"id":"1234567890","time":"2025-06-18","timeZone":-5,"money":"COP"}` {
			t.Errorf("unexpected body %s", body)
		}
		fmt.Fprint(w, `{"success":true,"code":"0","data":[
			{"eToday":2.5,"timeStr":"2025-06-18 06:05:00"},
			{"eToday":80.1,"timeStr":"2025-06-18 12:05:00"},
			{"eToday":153.75,"timeStr":"2025-06-18 18:40:00"}
		]}`)
	})

	day, err := client.FetchInverterDay(context.Background(), "1234567890", "2025-06-18")
	if err != nil {
		t.Fatalf("FetchInverterDay returned error: %v", err)
	}
	if day.EnergyKWh != 153.75 {
		t.Errorf("expected last sample's eToday 153.75, got %v", day.EnergyKWh)
	}
	if day.Date != "2025-06-18" {
		t.Errorf("date = %q", day.Date)
	}
	if day.InverterID != "1234567890" {
		t.Errorf("inverter id = %q", day.InverterID)
	}
}

func TestSolisFetchInverterDayEmptyIsEmptyBatch(t *testing.T) {
	client := solisTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"code":"0","data":[]}`)
	})

	_, err := client.FetchInverterDay(context.Background(), "1234567890", "2025-06-18")
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestSolisFailureEnvelopeIsVendorError(t *testing.T) {
	client := solisTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false,"code":"Z0001","msg":"authentication failed"}`)
	})

	_, err := client.FetchSystemPage(context.Background(), 1, "2025-06-18")
	var ve *VendorError
	if !errors.As(err, &ve) {
		t.Fatalf("expected VendorError, got %v", err)
	}
	if ve.Code != "Z0001" {
		t.Errorf("code = %q", ve.Code)
	}
}

func TestSolisFetchInverterListPage(t *testing.T) {
	client := solisTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/api/inverterList" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"success":true,"code":"0","data":{"page":{"records":[
			{"id":1101001,"stationId":9001,"stationName":"Finca El Sol"},
			{"id":1101002,"stationId":9001,"stationName":"Finca El Sol"},
			{"id":"","stationId":9002,"stationName":"Bodega Norte"}
		]}}}`)
	})

	inverters, err := client.FetchInverterListPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchInverterListPage returned error: %v", err)
	}
	// The entry with a blank id is skipped.
	if len(inverters) != 2 {
		t.Fatalf("expected 2 inverters, got %d", len(inverters))
	}
	if inverters[0].InverterID != "1101001" || inverters[0].StationID != "9001" {
		t.Errorf("inverter 0 = %+v", inverters[0])
	}
	if inverters[1].StationName != "Finca El Sol" {
		t.Errorf("inverter 1 = %+v", inverters[1])
	}
}

func TestSolisNon200IsTransportError(t *testing.T) {
	client := solisTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.FetchSystemPage(context.Background(), 1, "2025-06-18")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
