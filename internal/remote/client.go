// Package remote is a client for a recommendation service reached over HTTP.
package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cisec/aisac-logformat/internal/recommend"
	"github.com/cisec/aisac-logformat/pkg/protocol"
	"github.com/cisec/aisac-logformat/pkg/types"
)

// Config holds remote client configuration.
type Config struct {
	// URL is the service base URL, without the /api/v1 suffix.
	URL string
	// AuthToken is the bearer token for authentication
	AuthToken string
	// Timeout for HTTP requests
	Timeout time.Duration
	// RetryAttempts number of retry attempts on failure
	RetryAttempts int
	// RetryDelay between retry attempts
	RetryDelay time.Duration
	// SkipTLSVerify skips TLS certificate verification
	SkipTLSVerify bool
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Message)
}

func (e *StatusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Client calls a remote recommendation service.
type Client struct {
	cfg        Config
	base       string
	logger     zerolog.Logger
	httpClient *http.Client
}

// NewClient creates a new remote client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote url %q", cfg.URL)
	}

	l := logger.With().Str("component", "remote").Str("url", cfg.URL).Logger()

	if cfg.SkipTLSVerify {
		l.Warn().Msg("SECURITY WARNING: TLS certificate verification disabled for remote service (skip_tls_verify=true). Only use for development/testing!")
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		},
	}

	return &Client{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.URL, "/") + "/api/v1",
		logger: l,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

// Recommend asks the service for recommendations for one line.
func (c *Client) Recommend(ctx context.Context, line string, opts types.Options) (*protocol.RecommendResponse, error) {
	var resp protocol.RecommendResponse
	err := c.call(ctx, http.MethodPost, "/recommend", protocol.RecommendRequest{Line: line, Options: opts}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecommendBatch asks the service for recommendations for several lines.
func (c *Client) RecommendBatch(ctx context.Context, req protocol.BatchRequest) (*protocol.BatchResponse, error) {
	var resp protocol.BatchResponse
	if err := c.call(ctx, http.MethodPost, "/recommend/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Formats lists the service's formats, optionally restricted to group.
func (c *Client) Formats(ctx context.Context, group string) ([]types.FormatSummary, error) {
	path := "/formats"
	if group != "" {
		path += "?group=" + url.QueryEscape(group)
	}
	var out []types.FormatSummary
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GroupStatistics returns format counts per group.
func (c *Client) GroupStatistics(ctx context.Context) (map[string]int, error) {
	var out map[string]int
	if err := c.call(ctx, http.MethodGet, "/stats/groups", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VendorStatistics returns format counts per vendor.
func (c *Client) VendorStatistics(ctx context.Context) (map[string]int, error) {
	var out map[string]int
	if err := c.call(ctx, http.MethodGet, "/stats/vendors", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health reports the service state.
func (c *Client) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	var out protocol.HealthResponse
	if err := c.call(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reload asks the service to reload its catalog.
func (c *Client) Reload(ctx context.Context) (int, error) {
	var out protocol.ReloadResponse
	if err := c.call(ctx, http.MethodPost, "/reload", nil, &out); err != nil {
		return 0, err
	}
	return out.Formats, nil
}

// Validate runs the service's catalog self-check.
func (c *Client) Validate(ctx context.Context) (*recommend.ValidationReport, error) {
	var out recommend.ValidationReport
	if err := c.call(ctx, http.MethodGet, "/validate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call performs a request with retries. Client errors are not retried.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug().
				Int("attempt", attempt).
				Dur("delay", c.cfg.RetryDelay).
				Str("path", path).
				Msg("Retrying request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		err := c.doRequest(ctx, method, path, data, out)
		if err == nil {
			return nil
		}

		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", c.cfg.RetryAttempts+1).
			Msg("Remote request failed")
	}

	return fmt.Errorf("remote request failed after %d attempts: %w", c.cfg.RetryAttempts+1, lastErr)
}

// doRequest performs the HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, data []byte, out interface{}) error {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "AISAC-LogFormat/1.0")

	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e protocol.ErrorResponse
		json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
