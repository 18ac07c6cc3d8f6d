// Package datahub reads portfolio statistics from the group data warehouse.
// Read-only: the engine never writes back.
package datahub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DealerContractStats is one dealer's aggregated contract history as served
// by the warehouse. FirstContractDate uses the 2006-01-02 layout.
type DealerContractStats struct {
	DealerID          string  `json:"dealer_id"`
	DealerName        string  `json:"dealer_name,omitempty"`
	ActiveContracts   int     `json:"active_contracts"`
	TotalOriginated   int     `json:"total_originated"`
	DefaultCount      int     `json:"default_count"`
	AvgContractSize   float64 `json:"avg_contract_size"`
	FirstContractDate *string `json:"first_contract_date,omitempty"`
}

type Client interface {
	FetchDealerStats(ctx context.Context) ([]DealerContractStats, error)
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) doReq(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("datahub %s %s: %d %s", method, path, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *HTTPClient) FetchDealerStats(ctx context.Context) ([]DealerContractStats, error) {
	data, err := c.doReq(ctx, "GET", "/api/v1/dealers/contract-stats")
	if err != nil {
		return nil, err
	}
	var stats []DealerContractStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
