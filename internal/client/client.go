// Package client talks to a running reelcap serve instance over its
// local HTTP API. The status and stop commands use it so a recording
// started in one terminal can be observed and stopped from another.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Status mirrors the server's /api/status response.
type Status struct {
	Recording      bool    `json:"recording"`
	State          string  `json:"state"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	OutputPath     string  `json:"output_path,omitempty"`
	Restarts       int     `json:"restarts"`
	PreviewClients int     `json:"preview_clients"`
	ZoomLevel      float64 `json:"zoom_level"`
}

// StopResult mirrors the server's /api/record/stop response.
type StopResult struct {
	State string `json:"state"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Client is a thin HTTP client for a local reelcap server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server on the given port.
func New(port int) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "is 'reelcap serve' running? request to %s failed", c.baseURL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "parsing response")
	}
	return nil
}

// Status fetches the server's recording status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// StartRecording asks the server to begin a recording session.
func (c *Client) StartRecording(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodPost, "/api/record/start", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// StopRecording asks the server to finalize the live session.
func (c *Client) StopRecording(ctx context.Context) (*StopResult, error) {
	var res StopResult
	if err := c.do(ctx, http.MethodPost, "/api/record/stop", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
