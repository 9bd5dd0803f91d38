package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://api.twelvedata.com"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=twelvedata_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIClient is a thin client for the Twelve Data quote API.
type APIClient struct {
	baseURL    string
	httpClient HTTPClient
	query      url.Values
}

// APIClientOption is a configuration option for the API client.
type APIClientOption func(*APIClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) APIClientOption {
	return func(c *APIClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) APIClientOption {
	return func(c *APIClient) {
		c.httpClient = httpClient
	}
}

// NewAPIClient creates a new Twelve Data API client.
func NewAPIClient(key string, options ...APIClientOption) (*APIClient, error) {
	c := &APIClient{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		query:      url.Values{},
	}
	if key != "" {
		c.query.Add("apikey", key)
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// quotePayload is one symbol's slice of the /quote response. Twelve Data
// serializes numbers as strings.
type quotePayload struct {
	Symbol        string `json:"symbol"`
	Close         string `json:"close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
	PreviousClose string `json:"previous_close"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Volume        string `json:"volume"`

	// Error envelope fields, present when the vendor rejects a symbol.
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GetQuotes retrieves quotes for symbols. The vendor returns a bare object
// for a single symbol and a symbol-keyed map for several, so both shapes are
// handled here.
func (c *APIClient) GetQuotes(ctx context.Context, symbols []string) (map[string]quotePayload, error) {
	if len(symbols) == 0 {
		return map[string]quotePayload{}, nil
	}

	query := url.Values{}
	for k, vs := range c.query {
		query[k] = vs
	}
	query.Add("symbol", strings.Join(symbols, ","))

	u := fmt.Sprintf("%s/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d", res.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(symbols) == 1 {
		var single quotePayload
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("decoding quote: %w", err)
		}
		if single.Status == "error" {
			return nil, fmt.Errorf("vendor error: %s", single.Message)
		}
		if single.Symbol == "" {
			single.Symbol = symbols[0]
		}
		return map[string]quotePayload{single.Symbol: single}, nil
	}

	var batch map[string]quotePayload
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decoding quote batch: %w", err)
	}
	// Per-symbol error envelopes are dropped; absent symbols are the caller's
	// signal to fail over.
	for sym, p := range batch {
		if p.Status == "error" {
			delete(batch, sym)
		}
	}
	return batch, nil
}
