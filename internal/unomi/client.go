// Package unomi provides the HTTP client for the Apache Unomi profile store.
package unomi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"segmentation_backend/platform/config"
	"segmentation_backend/platform/logger"

	"golang.org/x/time/rate"
)

const (
	searchPath         = "/cxs/profiles/search"
	countPath          = "/cxs/query/profile/count"
	eventCollectorPath = "/cxs/eventcollector"

	maxErrorBody = 4 << 10
)

// StatusError is returned when Unomi answers with a non-success status.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unomi %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Client is the HTTP client for the Unomi REST API.
type Client struct {
	baseURL    string
	user       string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a new Unomi API client. Outbound calls share one connection
// pool and are throttled by the configured requests-per-second limit.
func New(cfg config.ProfileStoreConfig, log *logger.Logger) *Client {
	timeout := cfg.GetUnomiTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    cfg.GetUnomiURL(),
		user:       cfg.GetUnomiUser(),
		password:   cfg.GetUnomiPassword(),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newLimiter(cfg.GetUnomiRateLimit()),
		log:        log,
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// SearchProfiles returns one page of profiles matching the condition.
func (c *Client) SearchProfiles(ctx context.Context, condition Condition, offset, limit int) (ProfileList, error) {
	body, err := c.post(ctx, "search profiles", searchPath, searchRequest{
		Offset:    offset,
		Limit:     limit,
		Condition: condition,
	}, true)
	if err != nil {
		return ProfileList{}, err
	}

	var list ProfileList
	if err := json.Unmarshal(body, &list); err != nil {
		return ProfileList{}, fmt.Errorf("decode profile search response: %w", err)
	}
	if list.List == nil {
		list.List = []Profile{}
	}
	return list, nil
}

// CountMatching returns the number of profiles matching the condition.
func (c *Client) CountMatching(ctx context.Context, condition Condition) (int64, error) {
	body, err := c.post(ctx, "count profiles", countPath, condition, true)
	if err != nil {
		return 0, err
	}
	return decodeCount(body)
}

// TrackEvent forwards a raw event payload to the public event collector and
// returns Unomi's status code and body unchanged.
func (c *Client) TrackEvent(ctx context.Context, payload []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+eventCollectorPath, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("unomi event collector request failed", "error", err)
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) post(ctx context.Context, operation, path string, payload interface{}, authenticated bool) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", operation, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authenticated {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("unomi request failed", "operation", operation, "error", err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: truncate(body)}
		c.log.UpstreamError("unomi", operation, resp.StatusCode, statusErr)
		return nil, statusErr
	}

	return body, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
