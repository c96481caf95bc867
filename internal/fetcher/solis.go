package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// SolisClient talks to the SolisCloud API. Every request is individually
// HMAC-signed; there is no login and therefore no session to expire.
type SolisClient struct {
	baseURL    string
	signer     solisSigner
	httpClient *http.Client
}

// NewSolisClient creates a SolisCloud client.
func NewSolisClient(baseURL, keyID, keySecret string) *SolisClient {
	return &SolisClient{
		baseURL: baseURL,
		signer: solisSigner{
			keyID:     keyID,
			keySecret: keySecret,
			now:       time.Now,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// StationDayRecord is one station's yield for one day.
type StationDayRecord struct {
	StationID string
	Date      string // "2006-01-02"
	EnergyKWh float64
}

// SolisInverterDay is the day total for a single inverter.
type SolisInverterDay struct {
	InverterID string
	Date       string // "2006-01-02"
	EnergyKWh  float64
}

// SolisInverterInfo is a registration-time inverter listing entry.
type SolisInverterInfo struct {
	InverterID  string
	StationID   string
	StationName string
}

type solisEnvelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// FetchSystemPage fetches one page of station day-energy records for the
// given calendar date ("2006-01-02"). Page size is 100.
func (c *SolisClient) FetchSystemPage(ctx context.Context, page int, date string) ([]StationDayRecord, error) {
	body := struct {
		PageNo   string `json:"pageNo"`
		PageSize int    `json:"pageSize"`
		Time     string `json:"time"`
	}{strconv.Itoa(page), PageSizeDefault, date}

	var data struct {
		Records []struct {
			ID      json.Number `json:"id"`
			DateStr string      `json:"dateStr"`
			Energy  float64     `json:"energy"`
		} `json:"records"`
	}
	if err := c.post(ctx, "/v1/api/stationDayEnergyList", body, &data); err != nil {
		return nil, err
	}

	records := make([]StationDayRecord, 0, len(data.Records))
	for _, rec := range data.Records {
		records = append(records, StationDayRecord{
			StationID: rec.ID.String(),
			Date:      rec.DateStr,
			EnergyKWh: rec.Energy,
		})
	}
	return records, nil
}

// FetchInverterDay fetches the day's yield for a single inverter: the eToday
// value of the chronologically last sample in the response. Unbatched.
func (c *SolisClient) FetchInverterDay(ctx context.Context, inverterID, date string) (*SolisInverterDay, error) {
	body := struct {
		ID       string `json:"id"`
		Time     string `json:"time"`
		TimeZone int    `json:"timeZone"`
		Money    string `json:"money"`
	}{inverterID, date, -5, "COP"}

	var samples []struct {
		EToday  float64 `json:"eToday"`
		TimeStr string  `json:"timeStr"` // "2006-01-02 15:04:05"
	}
	if err := c.post(ctx, "/v1/api/inverterDay", body, &samples); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyBatch
	}

	last := samples[len(samples)-1]
	sampledAt, err := time.Parse("2006-01-02 15:04:05", last.TimeStr)
	if err != nil {
		return nil, fmt.Errorf("parsing sample time %q: %w", last.TimeStr, err)
	}

	return &SolisInverterDay{
		InverterID: inverterID,
		Date:       sampledAt.Format("2006-01-02"),
		EnergyKWh:  last.EToday,
	}, nil
}

// FetchInverterListPage fetches one page of the inverter listing.
// Registration-time only.
func (c *SolisClient) FetchInverterListPage(ctx context.Context, page int) ([]SolisInverterInfo, error) {
	body := struct {
		PageNo   string `json:"pageNo"`
		PageSize int    `json:"pageSize"`
	}{strconv.Itoa(page), PageSizeDefault}

	var data struct {
		Page struct {
			Records []struct {
				ID          json.Number `json:"id"`
				StationID   json.Number `json:"stationId"`
				StationName string      `json:"stationName"`
			} `json:"records"`
		} `json:"page"`
	}
	if err := c.post(ctx, "/v1/api/inverterList", body, &data); err != nil {
		return nil, err
	}

	inverters := make([]SolisInverterInfo, 0, len(data.Page.Records))
	for _, rec := range data.Page.Records {
		if rec.ID.String() == "" || rec.StationID.String() == "" {
			continue
		}
		inverters = append(inverters, SolisInverterInfo{
			InverterID:  rec.ID.String(),
			StationID:   rec.StationID.String(),
			StationName: rec.StationName,
		})
	}
	return inverters, nil
}

// post performs a signed SolisCloud call and decodes the data element into out.
func (c *SolisClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}
	req.Header = c.signer.headers(http.MethodPost, path, payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: path, StatusCode: resp.StatusCode}
	}

	var envelope solisEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &TransportError{Op: path, Err: fmt.Errorf("decoding response: %w", err)}
	}

	if !envelope.Success {
		return &VendorError{Code: envelope.Code, Message: envelope.Msg}
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return ErrEmptyBatch
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &TransportError{Op: path, Err: fmt.Errorf("decoding data element: %w", err)}
	}
	return nil
}
