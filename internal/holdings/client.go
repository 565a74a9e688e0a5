// Package holdings provides a client for the NFT holdings lookup API, the
// external service that reports which tokens a wallet currently owns.
package holdings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pendergraft/holdergate/internal/observability/metrics"
)

// Token is one owned NFT as reported by the holdings API.
type Token struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
}

// Client is a holdings API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new holdings client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a holdings API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type ownedResponse struct {
	Tokens []Token `json:"tokens"`
}

// OwnedTokens returns the NFTs the wallet owns on the given network,
// optionally filtered to one collection contract. Transient failures surface
// as errors; callers decide whether that fails the verification.
func (c *Client) OwnedTokens(ctx context.Context, network, wallet, contract string) ([]Token, error) {
	path := fmt.Sprintf("/v2/%s/%s/nft", url.PathEscape(network), url.PathEscape(wallet))
	if contract != "" {
		path += "?contract=" + url.QueryEscape(contract)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordHoldingsLookup("error")
		return nil, fmt.Errorf("holdings lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.RecordHoldingsLookup("error")
		return nil, c.parseError(resp)
	}

	var owned ownedResponse
	if err := json.NewDecoder(resp.Body).Decode(&owned); err != nil {
		metrics.RecordHoldingsLookup("error")
		return nil, fmt.Errorf("decoding holdings response: %w", err)
	}
	metrics.RecordHoldingsLookup("ok")
	return owned.Tokens, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return &errResp.Error
}
