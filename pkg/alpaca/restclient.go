package alpaca

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	headerKeyID     = "APCA-API-KEY-ID"
	headerSecretKey = "APCA-API-SECRET-KEY"
)

// RESTClient calls the trading REST API with one user's keys.
type RESTClient struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRESTClient creates a REST client. A nil limiter disables client-side rate limiting.
func NewRESTClient(creds Credentials, timeout time.Duration, limiter *rate.Limiter) *RESTClient {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = DefaultPaperURL
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// GetAccount fetches GET /v2/account.
func (c *RESTClient) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	if err := c.get(ctx, "/v2/account", &account); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// GetPositions fetches GET /v2/positions.
func (c *RESTClient) GetPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := c.get(ctx, "/v2/positions", &positions); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if positions == nil {
		positions = []Position{}
	}
	return positions, nil
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(headerKeyID, c.creds.KeyID)
	req.Header.Set(headerSecretKey, c.creds.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
