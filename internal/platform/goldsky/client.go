package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// amountDecimals is the fixed-point scale of subgraph USDC amounts (1e6).
const amountDecimals = 6

// Client is a GraphQL client for the Goldsky-hosted Polymarket open-interest
// subgraph.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Goldsky GraphQL client.
//
// graphqlURL is the subgraph endpoint, e.g.
// "https://api.goldsky.com/api/public/.../subgraphs/oi-subgraph/0.0.6/gn".
func NewClient(graphqlURL, apiKey string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// OpenInterestQuery selects one page of open-interest rows.
type OpenInterestQuery struct {
	// ConditionIDs restricts the query to these markets. Nil means every
	// market; callers wanting "no markets" must not call at all.
	ConditionIDs []string
	// Block pins the query to a historical block. Zero means the latest
	// indexed block.
	Block int64
	First int
	Skip  int
}

// FetchOpenInterest returns one page of markets ordered by open interest,
// largest first. Amounts are converted from the subgraph's 6-decimal fixed
// point into USDC.
func (c *Client) FetchOpenInterest(ctx context.Context, q OpenInterestQuery) ([]domain.OpenInterestEntry, error) {
	query, variables := buildOpenInterestQuery(q)

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch open interest: %w", err)
	}

	var result struct {
		MarketOpenInterests []struct {
			ID     string `json:"id"`
			Amount string `json:"amount"`
		} `json:"marketOpenInterests"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("goldsky: decode open interest: %w", err)
	}

	entries := make([]domain.OpenInterestEntry, 0, len(result.MarketOpenInterests))
	for _, row := range result.MarketOpenInterests {
		raw, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("goldsky: parse amount %q for %s: %w", row.Amount, row.ID, err)
		}
		amount, _ := raw.Shift(-amountDecimals).Float64()
		entries = append(entries, domain.OpenInterestEntry{
			MarketID: row.ID,
			Amount:   amount,
		})
	}
	return entries, nil
}

// buildOpenInterestQuery renders the marketOpenInterests query. Optional
// block and id filters are only emitted when set, since the subgraph rejects
// a null block argument.
func buildOpenInterestQuery(q OpenInterestQuery) (string, map[string]any) {
	variables := map[string]any{}
	var args []string

	if q.Block > 0 {
		variables["blockNumber"] = q.Block
		args = append(args, "block: {number: $blockNumber}")
	}
	if q.ConditionIDs != nil {
		variables["conditionIds"] = q.ConditionIDs
		args = append(args, "where: {id_in: $conditionIds}")
	}
	args = append(args,
		"orderBy: amount",
		"orderDirection: desc",
		fmt.Sprintf("first: %d", q.First),
		fmt.Sprintf("skip: %d", q.Skip),
	)

	query := fmt.Sprintf(`
		query GetOI($conditionIds: [String!], $blockNumber: Int) {
			marketOpenInterests(%s) {
				id
				amount
			}
		}
	`, strings.Join(args, ", "))

	return query, variables
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query against the Goldsky endpoint and returns
// the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
