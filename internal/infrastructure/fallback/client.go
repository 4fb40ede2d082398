package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ichnaea-service/internal/domain"
	"github.com/ichnaea-service/internal/domain/repository"
)

type client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns the external fallback provider client. One retry on
// 5xx or timeout; 404 is an authoritative miss.
func NewClient(timeout time.Duration, logger *zap.Logger) repository.FallbackClient {
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type wireRequest struct {
	CellTowers       []wireCell `json:"cellTowers,omitempty"`
	WifiAccessPoints []wireWifi `json:"wifiAccessPoints,omitempty"`
	Fallbacks        struct {
		LACF bool `json:"lacf"`
		IPF  bool `json:"ipf"`
	} `json:"fallbacks"`
}

type wireCell struct {
	RadioType string `json:"radioType,omitempty"`
	MCC       int    `json:"mobileCountryCode"`
	MNC       int    `json:"mobileNetworkCode"`
	LAC       int    `json:"locationAreaCode"`
	CID       int    `json:"cellId"`
	Signal    *int   `json:"signalStrength,omitempty"`
}

type wireWifi struct {
	MAC    string `json:"macAddress"`
	Signal *int   `json:"signalStrength,omitempty"`
}

type wireResponse struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

func (c *client) Locate(ctx context.Context, url string, query *domain.LocateQuery) (*domain.LocateResult, error) {
	body := buildRequest(query)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fallback request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		result, retry, err := c.post(ctx, url, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retry {
			break
		}
		c.logger.Debug("Retrying fallback provider", zap.Error(err))
	}
	return nil, lastErr
}

// post returns (result, retriable, error).
func (c *client) post(ctx context.Context, url string, payload []byte) (*domain.LocateResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build fallback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("fallback request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("fallback provider returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("fallback provider returned %d", resp.StatusCode)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, false, fmt.Errorf("failed to decode fallback response: %w", err)
	}
	if wire.Accuracy <= 0 {
		return nil, false, nil
	}

	return &domain.LocateResult{
		Lat:      wire.Location.Lat,
		Lon:      wire.Location.Lng,
		Accuracy: wire.Accuracy,
		Source:   domain.ResultFallback,
	}, false, nil
}

func buildRequest(query *domain.LocateQuery) wireRequest {
	var req wireRequest
	req.Fallbacks.LACF = query.Fallbacks.LACF
	req.Fallbacks.IPF = query.Fallbacks.IPF

	for i := range query.Cells {
		cell := &query.Cells[i]
		radio := cell.Radio
		if radio == "" {
			radio = query.Radio
		}
		req.CellTowers = append(req.CellTowers, wireCell{
			RadioType: radio,
			MCC:       cell.MCC,
			MNC:       cell.MNC,
			LAC:       cell.LAC,
			CID:       cell.CID,
			Signal:    cell.Signal,
		})
	}
	for i := range query.Wifis {
		wifi := &query.Wifis[i]
		req.WifiAccessPoints = append(req.WifiAccessPoints, wireWifi{
			MAC:    string(wifi.MAC),
			Signal: wifi.Signal,
		})
	}
	return req
}
