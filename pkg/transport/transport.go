// pkg/transport/transport.go
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client is the shared outbound HTTP transport for gateway adapters.
// Transport-level failures (network errors, 5xx) are retried with
// exponential backoff; 4xx answers are returned to the adapter as-is
// because they carry business meaning.
type Client struct {
	httpClient  *http.Client
	maxAttempts int
	baseBackoff time.Duration
	logger      *zap.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

func WithBaseBackoff(d time.Duration) Option {
	return func(c *Client) { c.baseBackoff = d }
}

func New(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: 3,
		baseBackoff: 500 * time.Millisecond,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON sends a JSON body and decodes a JSON answer into out.
// headers may be nil.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, url, headers, payload)
	if err != nil {
		return status, err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return status, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return status, nil
}

// GetJSON fetches and decodes a JSON answer into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out interface{}) (int, error) {
	status, respBody, err := c.do(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return status, err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return status, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, payload []byte) (int, []byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", readErr)
			} else if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(body))
			} else {
				return resp.StatusCode, body, nil
			}
		}

		if attempt < c.maxAttempts {
			backoff := time.Duration(float64(c.baseBackoff) * math.Pow(2, float64(attempt-1)))
			c.logger.Warn("gateway request failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			}
		}
	}

	return 0, nil, fmt.Errorf("gateway unreachable after %d attempts: %w", c.maxAttempts, lastErr)
}
