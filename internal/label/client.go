package label

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gip-inclusion/geiq-assessments/internal/config"
)

// HTTPClient is the production registry client
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a registry client from configuration
func NewHTTPClient(cfg *config.LabelConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetAllContracts fetches every contract of the GEIQ
func (c *HTTPClient) GetAllContracts(ctx context.Context, geiqID int) ([]ContractRecord, error) {
	raws, err := c.list(ctx, "Contrat", geiqID)
	if err != nil {
		return nil, err
	}

	records := make([]ContractRecord, 0, len(raws))
	for _, raw := range raws {
		var record ContractRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("failed to decode contract record: %w", err)
		}
		record.Raw = raw
		records = append(records, record)
	}
	return records, nil
}

// GetAllPrequalifications fetches every prequalification of the GEIQ
func (c *HTTPClient) GetAllPrequalifications(ctx context.Context, geiqID int) ([]PrequalificationRecord, error) {
	raws, err := c.list(ctx, "PreQualification", geiqID)
	if err != nil {
		return nil, err
	}

	records := make([]PrequalificationRecord, 0, len(raws))
	for _, raw := range raws {
		var record PrequalificationRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("failed to decode prequalification record: %w", err)
		}
		record.Raw = raw
		records = append(records, record)
	}
	return records, nil
}

// GetRates fetches the GEIQ's synthesis rates as an opaque payload
func (c *HTTPClient) GetRates(ctx context.Context, geiqID int) (json.RawMessage, error) {
	raws, err := c.list(ctx, "TauxGeiq", geiqID)
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}
	return raws[0], nil
}

// listResponse is the registry's paginated envelope
type listResponse struct {
	Results []json.RawMessage `json:"results"`
}

// list pages through a registry resource filtered by GEIQ
func (c *HTTPClient) list(ctx context.Context, resource string, geiqID int) ([]json.RawMessage, error) {
	const pageSize = 100

	var all []json.RawMessage
	for page := 1; ; page++ {
		query := url.Values{
			"join_key": {"geiq_id"},
			"id":       {strconv.Itoa(geiqID)},
			"n":        {strconv.Itoa(pageSize)},
			"p":        {strconv.Itoa(page)},
			"sort":     {"id"},
			"full":     {"true"},
		}

		endpoint := fmt.Sprintf("%s/%s/?%s", c.baseURL, resource, query.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build label request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("label request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read label response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("label returned status %d for %s", resp.StatusCode, resource)
		}

		var envelope listResponse
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode label response: %w", err)
		}

		all = append(all, envelope.Results...)
		if len(envelope.Results) < pageSize {
			return all, nil
		}
	}
}
