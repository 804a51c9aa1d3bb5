// Package daemon provides the client the CLI uses to talk to a running
// cowork daemon, and the config watcher the daemon uses to hot reload.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grovetools/cowork/errors"
	"github.com/grovetools/cowork/internal/daemon/server"
	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/internal/rooms"
	"github.com/grovetools/cowork/version"
)

// Stats is the daemon's /api/stats response.
type Stats struct {
	rooms.Statistics
	ActiveExecutions int                      `json:"activeExecutions"`
	Activity         map[store.UpdateType]int `json:"activity"`
	StartedAt        time.Time                `json:"startedAt"`
	Uptime           string                   `json:"uptime"`
}

// Client calls the daemon's HTTP API over TCP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	sessionID  string
}

// NewClient creates a Client for the daemon listening on addr, given as
// host:port or as a URL.
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
			Timeout: 10 * time.Second,
		},
		baseURL: strings.TrimRight(base, "/"),
	}
}

// WithIdentity sets the user and session sent with every request.
func (c *Client) WithIdentity(userID, sessionID string) *Client {
	c.userID = userID
	c.sessionID = sessionID
	return c
}

// IsRunning returns true if the daemon is available and responding.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Sessions returns the executions currently running on the daemon.
func (c *Client) Sessions(ctx context.Context) ([]executor.SessionInfo, error) {
	var sessions []executor.SessionInfo
	if err := c.getJSON(ctx, "/api/sessions", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// KillSession stops one of the caller's running executions.
func (c *Client) KillSession(ctx context.Context, sessionID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

// Stats returns room statistics and execution counts.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.getJSON(ctx, "/api/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Rooms returns every occupied room.
func (c *Client) Rooms(ctx context.Context) ([]rooms.RoomStatus, error) {
	var list []rooms.RoomStatus
	if err := c.getJSON(ctx, "/api/rooms", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// RunningConfig returns the configuration the daemon is running with.
func (c *Client) RunningConfig(ctx context.Context) (map[string]interface{}, error) {
	var cfg map[string]interface{}
	if err := c.getJSON(ctx, "/api/config", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StreamActivity subscribes to activity updates via Server-Sent Events (SSE).
// The channel is closed when ctx is done or the daemon goes away.
func (c *Client) StreamActivity(ctx context.Context) (<-chan store.Update, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/stream")
	if err != nil {
		return nil, err
	}

	// Use a separate client with no timeout for streaming
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	ch := make(chan store.Update, 10)

	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()

			// Skip comments and empty lines
			if strings.HasPrefix(line, ":") || line == "" {
				continue
			}

			if strings.HasPrefix(line, "data: ") {
				var update store.Update
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update); err != nil {
					continue // Skip malformed data
				}

				select {
				case ch <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if c.userID != "" {
		req.Header.Set(server.HeaderUser, c.userID)
	}
	if c.sessionID != "" {
		req.Header.Set(server.HeaderSession, c.sessionID)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach daemon at %s: %w", c.baseURL, err)
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// checkResponse turns an error body back into a CoworkError.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error *errors.CoworkError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		return payload.Error
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}
