package station

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"pitchcam/internal/api"
	"pitchcam/internal/nodeclient"
)

// Client talks to a station's HTTP surface. It shares request plumbing and
// error classification with the node client.
type Client struct {
	http *nodeclient.Client
}

// NewClient builds a client for a station base URL such as
// http://station:8080.
func NewClient(baseURL string, opts nodeclient.Options) *Client {
	return &Client{http: nodeclient.New(baseURL, opts)}
}

// Status calls GET /api/status.
func (c *Client) Status(ctx context.Context) (*api.StationStatus, error) {
	var resp api.StationStatus
	if err := c.http.DoJSON(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Jobs lists the stitch ledger.
func (c *Client) Jobs(ctx context.Context) ([]api.StitchJob, error) {
	var resp api.StitchJobsResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, "/api/stitch", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Retry clears a session's stitch failures.
func (c *Client) Retry(ctx context.Context, sessionID string) (*api.RetryResponse, error) {
	var resp api.RetryResponse
	path := "/api/stitch/" + url.PathEscape(sessionID) + "/retry"
	if err := c.http.DoJSON(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sessions lists stitched outputs.
func (c *Client) Sessions(ctx context.Context) ([]api.SessionSummary, error) {
	var resp api.SessionsResponse
	if err := c.http.DoJSON(ctx, http.MethodGet, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Events fetches up to limit detection events for a session.
func (c *Client) Events(ctx context.Context, sessionID string, limit int) (*api.SessionEventsResponse, error) {
	var resp api.SessionEventsResponse
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Offloads lists recent confirmed offloads.
func (c *Client) Offloads(ctx context.Context, limit int) ([]api.Offload, error) {
	var resp api.OffloadsResponse
	path := "/api/offloads"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.http.DoJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Offloads, nil
}
