// Package serverclient is the JSON API client for the companion download
// server. It is only usable downstream of port discovery: every call fails
// fast until a port has been set.
package serverclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNoPort = errors.New("server port not discovered yet")

type Client struct {
	HTTP   *http.Client
	Scheme string
	Host   string

	mu   sync.RWMutex
	port int
}

func New(host string) *Client {
	return &Client{
		HTTP:   &http.Client{Timeout: 30 * time.Second},
		Scheme: "http",
		Host:   host,
	}
}

// SetPort points the client at a freshly discovered port.
func (c *Client) SetPort(port int) {
	c.mu.Lock()
	c.port = port
	c.mu.Unlock()
}

func (c *Client) Port() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}

func (c *Client) baseURL() (string, error) {
	port := c.Port()
	if port <= 0 {
		return "", ErrNoPort
	}
	return fmt.Sprintf("%s://%s:%d", c.Scheme, c.Host, port), nil
}

// ServerConfig is passed through opaquely: the server owns its own config
// schema and the agent only relays it between UI and server.
type ServerConfig map[string]any

func (c *Client) FetchConfig(ctx context.Context) (ServerConfig, error) {
	var cfg ServerConfig
	if err := c.getJSON(ctx, "/api/config", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) SaveConfig(ctx context.Context, cfg ServerConfig) error {
	return c.postJSON(ctx, "/api/config", cfg, nil)
}

type DownloadRequest struct {
	ID         string `json:"downloadId"`
	URL        string `json:"url"`
	PageTitle  string `json:"page_title,omitempty"`
	IsPlaylist bool   `json:"is_playlist,omitempty"`
}

type DownloadResponse struct {
	Status     string `json:"status"`
	DownloadID string `json:"downloadId"`
	Message    string `json:"message,omitempty"`
}

// Download relays one download request. An ID is assigned if the caller
// did not supply one, so retries stay idempotent server-side.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (DownloadResponse, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	var resp DownloadResponse
	if err := c.postJSON(ctx, "/api/download", req, &resp); err != nil {
		return DownloadResponse{}, err
	}
	if resp.DownloadID == "" {
		resp.DownloadID = req.ID
	}
	return resp, nil
}

type HistoryEntry struct {
	DownloadID string `json:"downloadId"`
	URL        string `json:"url"`
	Filename   string `json:"filename,omitempty"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp,omitempty"`
}

type HistoryPage struct {
	Entries []HistoryEntry `json:"history"`
	Total   int            `json:"total_items"`
}

func (c *Client) History(ctx context.Context, page, perPage int) (HistoryPage, error) {
	var hp HistoryPage
	path := fmt.Sprintf("/api/history?page=%d&per_page=%d", page, perPage)
	if err := c.getJSON(ctx, path, &hp); err != nil {
		return HistoryPage{}, err
	}
	return hp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	base, err := c.baseURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	base, err := c.baseURL()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(snippet))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
