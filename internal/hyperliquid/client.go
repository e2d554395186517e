package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trade-ledger/internal/metrics"
	"trade-ledger/internal/models"
)

// DefaultAPIURL is the public info endpoint.
const DefaultAPIURL = "https://api.hyperliquid.xyz/info"

// UpstreamError wraps any transport or decode failure against the exchange.
// The API layer maps it to a 502 without leaking transport details.
type UpstreamError struct {
	Op     string // request type, e.g. "userFillsByTime"
	Status int    // HTTP status, 0 when the request never completed
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client is a typed view over the exchange /info endpoint. Every call
// acquires its weight from the shared limiter before the request is issued.
// The client does not retry; backoff is entirely the limiter's concern.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *WeightLimiter
}

// NewClient creates a client against the given info URL.
func NewClient(baseURL string, limiter *WeightLimiter) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
	}
}

// Name identifies the datasource in health and status responses.
func (c *Client) Name() string { return "hyperliquid" }

// FetchFillsOnce returns one batch of raw fills for the user inside
// [startMs, endMs], ordered by time ascending, at most BatchMax entries.
func (c *Client) FetchFillsOnce(ctx context.Context, user string, startMs, endMs int64) ([]models.RawFill, error) {
	req := map[string]interface{}{
		"type":            "userFillsByTime",
		"user":            user,
		"startTime":       startMs,
		"endTime":         endMs,
		"aggregateByTime": true,
	}
	var fills []models.RawFill
	if err := c.post(ctx, "userFillsByTime", WeightFills, req, &fills); err != nil {
		return nil, err
	}
	return fills, nil
}

// FetchClearinghouse returns the user's current clearinghouse state,
// including equity and open positions.
func (c *Client) FetchClearinghouse(ctx context.Context, user string) (*models.ClearinghouseState, error) {
	req := map[string]interface{}{
		"type": "clearinghouseState",
		"user": user,
	}
	var state models.ClearinghouseState
	if err := c.post(ctx, "clearinghouseState", WeightClearinghouse, req, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Ping issues a meta request; any 2xx response counts as healthy.
func (c *Client) Ping(ctx context.Context) error {
	var out json.RawMessage
	return c.post(ctx, "meta", WeightMeta, map[string]interface{}{"type": "meta"}, &out)
}

// QueryTxBuilder looks up the builder address recorded on a transaction.
// Returns "" when the transaction carries no builder attribution.
func (c *Client) QueryTxBuilder(ctx context.Context, hash string) (string, error) {
	req := map[string]interface{}{
		"type": "queryTx",
		"hash": hash,
	}
	var out json.RawMessage
	if err := c.post(ctx, "queryTx", WeightQueryTx, req, &out); err != nil {
		return "", err
	}
	return findBuilderAddress(out), nil
}

func (c *Client) post(ctx context.Context, op string, weight int, payload interface{}, out interface{}) error {
	if err := c.limiter.Acquire(ctx, weight); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "trade-ledger/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(op, "error").Inc()
		return &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.UpstreamRequests.WithLabelValues(op, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &UpstreamError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.UpstreamRequests.WithLabelValues(op, "decode_error").Inc()
		return &UpstreamError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	metrics.UpstreamRequests.WithLabelValues(op, "ok").Inc()
	return nil
}

// findBuilderAddress walks an arbitrary queryTx payload looking for a
// builder object of the form {"b": "0x..."}. The response shape is not
// versioned, so a structural search is the only stable option.
func findBuilderAddress(raw json.RawMessage) string {
	var node interface{}
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	return walkForBuilder(node)
}

func walkForBuilder(node interface{}) string {
	switch v := node.(type) {
	case map[string]interface{}:
		if b, ok := v["builder"].(map[string]interface{}); ok {
			if addr, ok := b["b"].(string); ok && addr != "" {
				return strings.ToLower(addr)
			}
		}
		for _, child := range v {
			if addr := walkForBuilder(child); addr != "" {
				return addr
			}
		}
	case []interface{}:
		for _, child := range v {
			if addr := walkForBuilder(child); addr != "" {
				return addr
			}
		}
	}
	return ""
}
