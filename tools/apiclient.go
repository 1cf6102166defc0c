package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Upstream API defaults.
const (
	CoinGeckoBaseURL    = "https://api.coingecko.com/api/v3"
	CoinGeckoProBaseURL = "https://pro-api.coingecko.com/api/v3"
	AlphaVantageBaseURL = "https://www.alphavantage.co/query"

	defaultRateLimit = 10.0 // requests per second
	defaultBurst     = 5
)

// APIClient is a rate-limited GET-JSON helper shared by the data tools.
type APIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// APIOption configures the client.
type APIOption func(*APIClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) APIOption {
	return func(c *APIClient) {
		c.httpClient = client
	}
}

// WithRateLimit sets custom rate limiting.
func WithRateLimit(rps float64, burst int) APIOption {
	return func(c *APIClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewAPIClient creates a client with pooled connections and the default
// request budget.
func NewAPIClient(opts ...APIOption) *APIClient {
	c := &APIClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON performs a rate-limited GET and decodes the JSON response.
// Non-200 responses surface the upstream "message" field when present.
func (c *APIClient) GetJSON(ctx context.Context, rawURL string, headers map[string]string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	u := rawURL
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var upstream struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &upstream) == nil && upstream.Message != "" {
			return fmt.Errorf("api error %d: %s", resp.StatusCode, upstream.Message)
		}
		return fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
