package cities

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPLookup queries an external nearby-cities service.
type HTTPLookup struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPLookup builds a lookup against baseURL with a short timeout;
// the filter treats lookup failures as empty results.
func NewHTTPLookup(baseURL string) *HTTPLookup {
	return &HTTPLookup{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Neighbors fetches the neighboring city names for city.
func (l *HTTPLookup) Neighbors(ctx context.Context, city string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v1/nearby?city=%s", l.BaseURL, url.QueryEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("nearby cities: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nearby cities: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nearby cities: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Cities []string `json:"cities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("nearby cities: decode response: %w", err)
	}
	return out.Cities, nil
}
