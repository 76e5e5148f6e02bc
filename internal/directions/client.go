// Package directions is the client for the external waypoint
// optimization service. Failures here are never fatal to route
// creation; the planner falls back to a local heuristic.
package directions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Request asks the service to order waypoints between origin and
// destination.
type Request struct {
	Origin            string   `json:"origin"`
	Destination       string   `json:"destination"`
	Waypoints         []string `json:"waypoints"`
	OptimizeWaypoints bool     `json:"optimizeWaypoints"`
}

// Leg is the travel cost between two consecutive route points.
type Leg struct {
	DistanceM   int `json:"distance"`
	DurationSec int `json:"duration"`
}

// Response carries the optimized waypoint permutation and per-leg costs.
type Response struct {
	WaypointOrder []int `json:"waypoint_order"`
	Legs          []Leg `json:"legs"`
	TotalDistance int   `json:"totalDistance"`
	TotalDuration int   `json:"totalDuration"`
}

// ErrMalformed marks a response whose waypoint order cannot be applied.
var ErrMalformed = errors.New("directions: malformed waypoint order")

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("directions: status %d: %s", e.Code, e.Body)
}

// Client calls the optimization endpoint with retry, backoff, and a
// request rate cap.
type Client struct {
	baseURL string
	apiKey  string
	session *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client for baseURL. The limiter keeps us inside
// the service's request quota across retries.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		session: &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Optimize requests an optimized waypoint order. A response missing or
// mis-sized waypoint_order returns ErrMalformed so the caller can fall
// back locally.
func (c *Client) Optimize(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("directions: marshal request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("directions: decode response: %w", err)
	}
	if len(out.WaypointOrder) != len(req.Waypoints) {
		return nil, fmt.Errorf("%w: got %d indices for %d waypoints",
			ErrMalformed, len(out.WaypointOrder), len(req.Waypoints))
	}
	seen := make(map[int]bool, len(out.WaypointOrder))
	for _, idx := range out.WaypointOrder {
		if idx < 0 || idx >= len(req.Waypoints) || seen[idx] {
			return nil, fmt.Errorf("%w: index %d invalid", ErrMalformed, idx)
		}
		seen[idx] = true
	}
	return &out, nil
}

func (c *Client) newRequest(ctx context.Context, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/optimize-waypoints", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors, 429/5xx) with
// exponential backoff while respecting context cancellation.
func (c *Client) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 3
	backoff := 200 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case 429, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}

		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}
