// Package etherscan resolves block numbers by timestamp through the
// Etherscan v2 multichain API.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

const (
	// PolygonChainID is the chain the Polymarket contracts live on.
	PolygonChainID = 137

	defaultMaxRetries = 3
	defaultRetryDelay = time.Second

	rateLimitMessage = "Max rate limit reached"
)

// errRetryable marks failures worth another attempt: transport errors,
// non-2xx responses and the documented rate-limit reply.
var errRetryable = errors.New("retryable")

// Client calls the Etherscan block-by-timestamp endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	chainID    int64
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithRetry overrides the attempt count and the fixed delay between attempts.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithChainID selects the chain queried through the v2 API.
func WithChainID(chainID int64) Option {
	return func(c *Client) {
		if chainID > 0 {
			c.chainID = chainID
		}
	}
}

// NewClient creates a Client for baseURL, e.g. "https://api.etherscan.io/v2/api".
// An empty apiKey is allowed; every lookup then fails with
// domain.ErrMissingCredential without touching the network.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		chainID:    PolygonChainID,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChainID returns the chain this client resolves blocks on.
func (c *Client) ChainID() int64 {
	return c.chainID
}

type blockResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// BlockAt returns the number of the last block mined at or before ts.
// Transport failures and rate-limit replies are retried up to the configured
// attempt count with a fixed delay; other API errors fail immediately.
func (c *Client) BlockAt(ctx context.Context, ts time.Time) (int64, error) {
	if c.apiKey == "" {
		return 0, fmt.Errorf("etherscan: api key not set: %w", domain.ErrMissingCredential)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		block, err := c.fetchBlock(ctx, ts)
		if err == nil {
			return block, nil
		}
		if !errors.Is(err, errRetryable) {
			return 0, err
		}
		lastErr = err

		if attempt < c.maxRetries {
			if err := sleep(ctx, c.retryDelay); err != nil {
				return 0, fmt.Errorf("etherscan: block at %d: %w", ts.Unix(), err)
			}
		}
	}
	return 0, fmt.Errorf("etherscan: block at %d: all %d attempts failed: %w", ts.Unix(), c.maxRetries, lastErr)
}

func (c *Client) fetchBlock(ctx context.Context, ts time.Time) (int64, error) {
	params := url.Values{}
	params.Set("chainid", strconv.FormatInt(c.chainID, 10))
	params.Set("module", "block")
	params.Set("action", "getblocknobytime")
	params.Set("timestamp", strconv.FormatInt(ts.Unix(), 10))
	params.Set("closest", "before")
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("etherscan: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("etherscan: http request: %v: %w", err, errRetryable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("etherscan: read response: %v: %w", err, errRetryable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("etherscan: HTTP %d: %s: %w", resp.StatusCode, string(body), errRetryable)
	}

	var out blockResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("etherscan: decode response: %v: %w", err, errRetryable)
	}

	if out.Status == "1" {
		return parseResult(out.Result)
	}

	// On error replies the message detail usually sits in "result".
	detail := out.Message + " " + string(out.Result)
	if strings.Contains(detail, rateLimitMessage) {
		return 0, fmt.Errorf("etherscan: %w: %w", domain.ErrRateLimited, errRetryable)
	}
	return 0, fmt.Errorf("etherscan: api error: %s", strings.TrimSpace(detail))
}

func parseResult(raw json.RawMessage) (int64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	block, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("etherscan: parse block number %q: %w", s, err)
	}
	return block, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
