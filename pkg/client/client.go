package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:8080/api"
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrConflict is returned when init is refused because the module is
	// already running or is in an inconsistent state.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned for an empty or unknown table slot.
	ErrNotFound = errors.New("not found")
)

// Client provides HTTP client functionality to communicate with a tablesync daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
}

// New creates a new tablesync API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	isReachable := resp.StatusCode != http.StatusNotFound
	c.logger.Debug("Daemon reachability check", "reachable", isReachable, "status", resp.StatusCode)
	return isReachable
}

// Status returns the module lifecycle status and its workers.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", &out)
	return out, err
}

// Stats returns host uptime and bus counters.
func (c *Client) Stats(ctx context.Context) (StatsResponse, error) {
	var out StatsResponse
	err := c.do(ctx, http.MethodGet, "/stats", &out)
	return out, err
}

// Init starts the module workers. ErrConflict is returned when the module
// is already running or inconsistent.
func (c *Client) Init(ctx context.Context) (StatusResponse, error) {
	c.logger.Debug("Initializing module")
	var out StatusResponse
	err := c.do(ctx, http.MethodPost, "/init", &out)
	return out, err
}

// Shutdown stops the module. With emergency set the workers are signalled
// without being joined.
func (c *Client) Shutdown(ctx context.Context, emergency bool) (StatusResponse, error) {
	path := "/shutdown"
	if emergency {
		path = "/emergency-shutdown"
	}
	c.logger.Debug("Shutting down module", "emergency", emergency)
	var out StatusResponse
	err := c.do(ctx, http.MethodPost, path, &out)
	return out, err
}

// Order reads one orders slot.
func (c *Client) Order(ctx context.Context, idx int) (Order, error) {
	var out Order
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/orders/%d", idx), &out)
	return out, err
}

// User reads one users slot.
func (c *Client) User(ctx context.Context, idx int) (User, error) {
	var out User
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", idx), &out)
	return out, err
}

// do performs HTTP request with common error handling and decodes a 200 body into out
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusConflict:
		sentinel = ErrConflict
	case http.StatusNotFound:
		sentinel = ErrNotFound
	}

	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		if sentinel != nil {
			return fmt.Errorf("HTTP %d: %w", resp.StatusCode, sentinel)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	c.logger.Error("API request failed", "error", errorResp.Error, "status", resp.StatusCode)
	if sentinel != nil {
		return fmt.Errorf("API error: %s: %w", errorResp.Error, sentinel)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
