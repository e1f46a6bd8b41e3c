// Copyright 2026 The Chatvault Authors
// SPDX-License-Identifier: Apache-2.0

package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatvault/chatvault/lib/clock"
)

// Error is a structured error response from the REST API. Callers use
// errors.As to extract it:
//
//	var apiErr *restapi.Error
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound { … }
type Error struct {
	// Code is the service's machine-readable error code.
	Code json.Number `json:"code"`
	// Message is the human-readable description from the server.
	Message string `json:"message"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("restapi: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// RetryPolicy bounds transparent rate-limit retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per request,
	// including the first. Zero means unbounded: keep honoring the
	// server's retry delay until the request goes through or the
	// context ends.
	MaxAttempts int
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the REST API root (e.g. "https://api.example.net/v8").
	BaseURL string
	// Token is the account credential attached to every request.
	Token string
	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client
	// Clock drives the rate-limit backoff. If nil, the real clock is
	// used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
	// Retry bounds rate-limit retries. The zero value retries
	// indefinitely.
	Retry RetryPolicy
}

// Client is a credentialed REST client for one account.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
	retry      RetryPolicy
}

// NewClient creates a REST client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("restapi: BaseURL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("restapi: Token is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		clock:      clk,
		logger:     logger,
		retry:      config.Retry,
	}, nil
}

// rateLimitResponse is the body of a 429 response. The retry delay is
// given in seconds (fractional).
type rateLimitResponse struct {
	RetryAfter float64 `json:"retry_after"`
}

// do performs a credentialed request, transparently retrying on rate
// limits. requestURL must be absolute; body may be nil.
func (c *Client) do(ctx context.Context, method, requestURL string, body any) ([]byte, error) {
	attempts := 0
	for {
		attempts++
		responseBody, retryAfter, err := c.doOnce(ctx, method, requestURL, body)
		if err != nil || retryAfter < 0 {
			return responseBody, err
		}

		// Rate limited. The delay suspends only this request; the
		// select keeps it cancellable.
		if c.retry.MaxAttempts > 0 && attempts >= c.retry.MaxAttempts {
			return nil, fmt.Errorf("restapi: rate limited on %s %s after %d attempts", method, requestURL, attempts)
		}
		c.logger.Debug("rate limited, retrying",
			"method", method,
			"url", requestURL,
			"retry_after", retryAfter,
			"attempt", attempts,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("restapi: cancelled while rate limited on %s %s: %w", method, requestURL, ctx.Err())
		case <-c.clock.After(retryAfter):
		}
	}
}

// doOnce performs a single HTTP round trip. The returned duration is
// the server-requested retry delay for a rate-limited response, or a
// negative value for any other outcome.
func (c *Client) doOnce(ctx context.Context, method, requestURL string, body any) ([]byte, time.Duration, error) {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, -1, fmt.Errorf("restapi: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, -1, fmt.Errorf("restapi: creating request: %w", err)
	}
	request.Header.Set("Authorization", c.token)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, -1, fmt.Errorf("restapi: %s %s failed: %w", method, requestURL, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, -1, fmt.Errorf("restapi: reading response body: %w", err)
	}

	c.logger.Debug("http response", "status", response.StatusCode, "method", method, "url", requestURL)

	if response.StatusCode == http.StatusTooManyRequests {
		var limited rateLimitResponse
		if err := json.Unmarshal(responseBody, &limited); err != nil {
			return nil, -1, fmt.Errorf("restapi: parsing rate-limit response: %w", err)
		}
		return nil, time.Duration(limited.RetryAfter * float64(time.Second)), nil
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, -1, nil
	}

	apiErr := &Error{StatusCode: response.StatusCode}
	if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil {
		// Non-JSON error body. Fail loud with the raw payload.
		return nil, -1, fmt.Errorf("restapi: unexpected %d response from %s %s: %s",
			response.StatusCode, method, requestURL, string(responseBody))
	}
	return nil, -1, apiErr
}

// channelURL builds a channel-scoped endpoint URL.
func (c *Client) channelURL(channelID string, parts ...string) string {
	segments := append([]string{c.baseURL, "channels", url.PathEscape(channelID)}, parts...)
	return strings.Join(segments, "/")
}
