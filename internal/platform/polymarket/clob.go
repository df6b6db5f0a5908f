package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// ClobClient is the read-only REST client for the Polymarket CLOB API. Only
// the public price-history endpoint is used.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// PriceHistory returns the bucketed price history of a token between start
// and end. A zero end leaves the window open ("up to now"). fidelity is the
// bucket width in minutes.
func (c *ClobClient) PriceHistory(ctx context.Context, tokenID string, start, end time.Time, fidelity int) ([]PricePoint, error) {
	params := url.Values{}
	params.Set("market", tokenID)
	params.Set("fidelity", strconv.Itoa(fidelity))
	params.Set("startTs", unixString(start.Unix()))
	if !end.IsZero() {
		params.Set("endTs", unixString(end.Unix()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/prices-history?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: price history %s: %w", tokenID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, fmt.Errorf("polymarket/clob: price history %s: %w", tokenID, err)
	}

	var out priceHistoryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode price history: %w", err)
	}
	return out.History, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
