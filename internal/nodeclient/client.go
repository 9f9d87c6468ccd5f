// Package nodeclient talks to a camera node's HTTP surface. It is shared by
// the mesh coordinator, the station's ingest agent and the CLI.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/services"
)

// Options configures a Client.
type Options struct {
	Token      string
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil. Zero means no client timeout;
	// callers bound requests with their context instead.
	Timeout time.Duration
}

// Client is a node API client.
type Client struct {
	base   string
	token  string
	client *http.Client
}

// New builds a client for a node base URL such as http://host:8000.
func New(baseURL string, opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		base:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:  strings.TrimSpace(opts.Token),
		client: client,
	}
}

// BaseURL returns the node URL this client targets.
func (c *Client) BaseURL() string { return c.base }

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status calls GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (*api.NodeStatus, error) {
	var resp api.NodeStatus
	if err := c.doJSON(ctx, http.MethodGet, api.Prefix+"/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartRecording asks the node to start a session.
func (c *Client) StartRecording(ctx context.Context, sessionID string, source api.Source) (*api.StartResponse, error) {
	var resp api.StartResponse
	body := api.StartRequest{SessionID: sessionID, Source: source}
	if err := c.doJSON(ctx, http.MethodPost, api.Prefix+"/record/start", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopRecording asks the node to stop its session.
func (c *Client) StopRecording(ctx context.Context, source api.Source) (*api.StopResponse, error) {
	var resp api.StopResponse
	if err := c.doJSON(ctx, http.MethodPost, api.Prefix+"/record/stop", api.StopRequest{Source: source}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the node to power off.
func (c *Client) Shutdown(ctx context.Context, source api.Source) error {
	var resp api.StatusResponse
	return c.doJSON(ctx, http.MethodPost, api.Prefix+"/system/shutdown", api.StopRequest{Source: source}, &resp)
}

// Reboot asks the node to restart.
func (c *Client) Reboot(ctx context.Context) error {
	var resp api.StatusResponse
	return c.doJSON(ctx, http.MethodPost, api.Prefix+"/system/reboot", nil, &resp)
}

// Settings fetches the editable node settings.
func (c *Client) Settings(ctx context.Context) (*api.NodeSettings, error) {
	var resp api.NodeSettings
	if err := c.doJSON(ctx, http.MethodGet, api.Prefix+"/config", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveSettings updates the node settings.
func (c *Client) SaveSettings(ctx context.Context, settings api.NodeSettings) (*api.SettingsResponse, error) {
	var resp api.SettingsResponse
	if err := c.doJSON(ctx, http.MethodPost, api.Prefix+"/config", settings, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Preflight runs the node's readiness checks.
func (c *Client) Preflight(ctx context.Context) (*api.PreflightResponse, error) {
	var resp api.PreflightResponse
	if err := c.doJSON(ctx, http.MethodGet, api.Prefix+"/preflight", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRecordings lists recording and manifest file names on the node.
func (c *Client) ListRecordings(ctx context.Context) ([]string, error) {
	var resp api.RecordingsResponse
	if err := c.doJSON(ctx, http.MethodGet, api.Prefix+"/recordings", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Cleanup asks the node to delete offloaded recordings.
func (c *Client) Cleanup(ctx context.Context) (*api.CleanupResponse, error) {
	var resp api.CleanupResponse
	if err := c.doJSON(ctx, http.MethodPost, api.Prefix+"/recordings/cleanup", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Confirm reports a verified offload so the node marks the manifest.
func (c *Client) Confirm(ctx context.Context, req api.ConfirmRequest) error {
	var resp api.StatusResponse
	return c.doJSON(ctx, http.MethodPost, api.Prefix+"/recordings/confirm", req, &resp)
}

// Snapshot asks the node to capture a still.
func (c *Client) Snapshot(ctx context.Context) (*api.SnapshotResponse, error) {
	var resp api.SnapshotResponse
	if err := c.doJSON(ctx, http.MethodPost, api.Prefix+"/snapshot", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SelfTest runs the node's capture self test.
func (c *Client) SelfTest(ctx context.Context) (*api.SelfTestResponse, error) {
	var resp api.SelfTestResponse
	if err := c.doJSON(ctx, http.MethodPost, api.Prefix+"/selftest", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MeshStatus fetches the node's view of its peers.
func (c *Client) MeshStatus(ctx context.Context) (*api.MeshStatusResponse, error) {
	var resp api.MeshStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, api.Prefix+"/mesh/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NetworkStatus fetches the node's uplink state.
func (c *Client) NetworkStatus(ctx context.Context) (*api.NetworkStatus, error) {
	var resp api.NetworkStatus
	if err := c.doJSON(ctx, http.MethodGet, api.Prefix+"/system/network", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Connect asks the node to join a Wi-Fi network.
func (c *Client) Connect(ctx context.Context, ssid, psk string) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.doJSON(ctx, http.MethodPost, api.Prefix+"/system/network/connect", api.ConnectRequest{SSID: ssid, PSK: psk}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EnableAP asks the node to switch to hotspot mode.
func (c *Client) EnableAP(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.doJSON(ctx, http.MethodPost, api.Prefix+"/system/network/ap", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Download streams /static/{name} into w and returns the bytes copied.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/static/"+url.PathEscape(name), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "nodeclient", "download", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, statusError("download", resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, services.Wrap(services.ErrTransient, "nodeclient", "download", name, err)
	}
	return n, nil
}

// DoJSON sends body to path on the client's host and decodes the reply into
// out. The station client reuses it for the station routes.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	return c.doJSON(ctx, method, path, body, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pitchcam/"+config.Version)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		req.Header.Set(api.RequestIDHeader, id)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, "nodeclient", path, c.base, err)
		}
		return services.Wrap(services.ErrTransient, "nodeclient", path, c.base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "nodeclient", path, "decode response", err)
	}
	return nil
}

func statusError(operation string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(data))
	var apiErr api.ErrorResponse
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		message = apiErr.Error
	}
	if message == "" {
		message = resp.Status
	}
	marker := services.ErrTransient
	switch resp.StatusCode {
	case http.StatusBadRequest:
		marker = services.ErrValidation
	case http.StatusNotFound:
		marker = services.ErrNotFound
	case http.StatusConflict:
		marker = services.ErrConflict
	case http.StatusPreconditionFailed:
		marker = services.ErrPrecondition
	case http.StatusUnauthorized, http.StatusForbidden:
		marker = services.ErrConfiguration
	}
	return services.Wrap(marker, "nodeclient", operation, fmt.Sprintf("status %d: %s", resp.StatusCode, message), nil)
}
