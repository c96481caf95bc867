package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FusionSolar in-band failure codes. These ride on HTTP 200 responses and
// must be classified from the payload, not the status code.
const (
	huaweiCodeSessionExpired = 305
	huaweiCodeRateLimited    = 407
)

// HuaweiClient talks to the FusionSolar thirdData API. Authentication is a
// login call returning an XSRF token in a response header; the token has no
// tracked lifetime and expiry is discovered reactively via failCode 305.
type HuaweiClient struct {
	baseURL    string
	username   string
	systemCode string
	httpClient *http.Client
}

// NewHuaweiClient creates a FusionSolar client.
func NewHuaweiClient(baseURL, username, systemCode string) *HuaweiClient {
	return &HuaweiClient{
		baseURL:    baseURL,
		username:   username,
		systemCode: systemCode,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SystemDayRecord is one station's yield for one day.
type SystemDayRecord struct {
	StationCode string
	CollectTime int64 // epoch millis of the reported day
	EnergyKWh   float64
}

// InverterDayRecord is one device's yield for one day.
type InverterDayRecord struct {
	DevID       string
	CollectTime int64
	EnergyKWh   float64
}

// HistorySample is a single cumulative-counter sample for one device.
// Counters holds the numeric dataItemMap entries (mppt_1_cap, ...).
type HistorySample struct {
	DevID       int64
	CollectTime int64
	Counters    map[string]float64
}

// DeviceInfo is a registration-time device listing entry.
type DeviceInfo struct {
	DevDn     string
	DevName   string
	DevTypeID string
}

type huaweiEnvelope struct {
	Success  bool            `json:"success"`
	FailCode int             `json:"failCode"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
}

// Login authenticates and returns the session token from the xsrf-token
// response header.
func (c *HuaweiClient) Login(ctx context.Context) (string, error) {
	body := map[string]string{
		"userName":   c.username,
		"systemCode": c.systemCode,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &AuthError{Message: "encoding login body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/thirdData/login", bytes.NewReader(payload))
	if err != nil {
		return "", &AuthError{Message: "creating login request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Message: "huawei login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Message: fmt.Sprintf("huawei login returned status %d", resp.StatusCode)}
	}

	token := resp.Header.Get("xsrf-token")
	if token == "" {
		return "", &AuthError{Message: "xsrf-token not found in login response headers"}
	}
	return token, nil
}

// FetchSystemPage fetches one page of station day-KPI records for the day
// starting at dayMillis. Page size is 100.
func (c *HuaweiClient) FetchSystemPage(ctx context.Context, token string, page int, dayMillis int64) ([]SystemDayRecord, error) {
	body := map[string]any{
		"collectTime": dayMillis,
		"pageNo":      page,
	}

	var rows []struct {
		StationCode string         `json:"stationCode"`
		CollectTime int64          `json:"collectTime"`
		DataItemMap map[string]any `json:"dataItemMap"`
	}
	if err := c.post(ctx, token, "/thirdData/getKpiStationDay", body, &rows); err != nil {
		return nil, err
	}

	records := make([]SystemDayRecord, 0, len(rows))
	for _, row := range rows {
		yield, ok := numericItem(row.DataItemMap, "inverter_power")
		if !ok {
			continue
		}
		records = append(records, SystemDayRecord{
			StationCode: row.StationCode,
			CollectTime: row.CollectTime,
			EnergyKWh:   yield,
		})
	}
	return records, nil
}

// FetchInverterPage fetches one page of device day-KPI records for the given
// device type ("1" for string inverters, "38" for residential). Page size 100.
func (c *HuaweiClient) FetchInverterPage(ctx context.Context, token, devTypeID string, page int, dayMillis int64) ([]InverterDayRecord, error) {
	body := map[string]any{
		"devTypeId":   devTypeID,
		"collectTime": dayMillis,
		"pageNo":      page,
	}

	var rows []struct {
		DevID       json.Number    `json:"devId"`
		CollectTime int64          `json:"collectTime"`
		DataItemMap map[string]any `json:"dataItemMap"`
	}
	if err := c.post(ctx, token, "/thirdData/getDevKpiDay", body, &rows); err != nil {
		return nil, err
	}

	records := make([]InverterDayRecord, 0, len(rows))
	for _, row := range rows {
		yield, ok := numericItem(row.DataItemMap, "product_power")
		if !ok {
			continue
		}
		records = append(records, InverterDayRecord{
			DevID:       row.DevID.String(),
			CollectTime: row.CollectTime,
			EnergyKWh:   yield,
		})
	}
	return records, nil
}

// FetchDeviceHistory fetches the 5-minute cumulative-counter samples for up
// to 10 devices across the [startMillis, endMillis) window. The response
// identifies devices by a numeric id, not by the devDn the request named.
func (c *HuaweiClient) FetchDeviceHistory(ctx context.Context, token, devTypeID string, devDns []string, startMillis, endMillis int64) ([]HistorySample, error) {
	if len(devDns) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(devDns) > PageSizeHistory {
		return nil, fmt.Errorf("history window limited to %d devices, got %d", PageSizeHistory, len(devDns))
	}

	body := map[string]any{
		"devIds":    strings.Join(devDns, ","),
		"devTypeId": devTypeID,
		"startTime": startMillis,
		"endTime":   endMillis,
	}

	var rows []struct {
		DevID       int64          `json:"devId"`
		CollectTime int64          `json:"collectTime"`
		DataItemMap map[string]any `json:"dataItemMap"`
	}
	if err := c.post(ctx, token, "/thirdData/getDevHistoryKpi", body, &rows); err != nil {
		return nil, err
	}

	samples := make([]HistorySample, 0, len(rows))
	for _, row := range rows {
		counters := make(map[string]float64, len(row.DataItemMap))
		for key, val := range row.DataItemMap {
			if f, ok := asFloat(val); ok {
				counters[key] = f
			}
		}
		samples = append(samples, HistorySample{
			DevID:       row.DevID,
			CollectTime: row.CollectTime,
			Counters:    counters,
		})
	}
	return samples, nil
}

// FetchDeviceList fetches the device listing for a station. Registration-time
// only; the ingestion runs never call this.
func (c *HuaweiClient) FetchDeviceList(ctx context.Context, token, stationCode string) ([]DeviceInfo, error) {
	body := map[string]any{"stationCodes": stationCode}

	var rows []struct {
		DevDn     string      `json:"devDn"`
		DevName   string      `json:"devName"`
		DevTypeID json.Number `json:"devTypeId"`
	}
	if err := c.post(ctx, token, "/thirdData/getDevList", body, &rows); err != nil {
		return nil, err
	}

	devices := make([]DeviceInfo, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, DeviceInfo{
			DevDn:     row.DevDn,
			DevName:   row.DevName,
			DevTypeID: row.DevTypeID.String(),
		})
	}
	return devices, nil
}

// post performs a token-authenticated thirdData call and decodes the data
// element into out, classifying in-band failure codes first.
func (c *HuaweiClient) post(ctx context.Context, token, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("XSRF-TOKEN", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: path, StatusCode: resp.StatusCode}
	}

	var envelope huaweiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &TransportError{Op: path, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if !envelope.Success {
		switch envelope.FailCode {
		case huaweiCodeSessionExpired:
			return &SessionExpiredError{Code: envelope.FailCode}
		case huaweiCodeRateLimited:
			return &RateLimitedError{Code: envelope.FailCode}
		default:
			return &VendorError{Code: strconv.Itoa(envelope.FailCode), Message: envelope.Message}
		}
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return ErrEmptyBatch
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &TransportError{Op: path, Err: fmt.Errorf("decoding data element: %w", err)}
	}
	return nil
}

// numericItem pulls one numeric entry out of a dataItemMap. Vendors report
// missing values as null or "N/A" strings, so non-numbers are dropped.
func numericItem(items map[string]any, key string) (float64, bool) {
	val, ok := items[key]
	if !ok {
		return 0, false
	}
	return asFloat(val)
}

func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
