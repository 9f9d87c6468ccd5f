package api

import "pitchcam/internal/integrity"

// Prefix is the node API path prefix.
const Prefix = "/api/v1"

// RequestIDHeader carries the correlation identifier between nodes.
const RequestIDHeader = "X-Request-ID"

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Mode    string `json:"mode"`
	NodeID  string `json:"node_id,omitempty"`
}

// RecorderStatus describes the recorder state machine.
type RecorderStatus struct {
	IsRecording bool    `json:"is_recording"`
	SessionID   string  `json:"session_id,omitempty"`
	File        string  `json:"file,omitempty"`
	StartTime   float64 `json:"start_time,omitempty"`
	Duration    float64 `json:"duration"`
	DriverAlive bool    `json:"driver_alive"`
	Stopping    bool    `json:"stopping,omitempty"`
}

// NodeStatus answers GET /api/v1/status.
type NodeStatus struct {
	NodeID         string         `json:"node_id"`
	Recorder       RecorderStatus `json:"recorder"`
	Mode           string         `json:"mode"`
	Backend        string         `json:"backend"`
	DiskFreeGB     float64        `json:"disk_free_gb"`
	TempC          float64        `json:"temp_c"`
	BatteryPercent int            `json:"battery_percent"`
	Charging       bool           `json:"charging"`
	SyncOffsetMS   float64        `json:"sync_offset_ms"`
	SyncStatus     string         `json:"sync_status"`
	Version        string         `json:"version"`
}

// StartRequest is the body of POST /api/v1/record/start.
type StartRequest struct {
	SessionID string `json:"session_id"`
	Source    Source `json:"source"`
}

// StopRequest is the body of POST /api/v1/record/stop and the power endpoints.
type StopRequest struct {
	Source Source `json:"source"`
}

// PeerResult is the outcome of relaying one command to one peer.
type PeerResult struct {
	Role  string `json:"role"`
	URL   string `json:"url"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// StartResponse answers a successful start.
type StartResponse struct {
	SessionID string       `json:"session_id"`
	File      string       `json:"file"`
	Status    string       `json:"status"`
	StartTime float64      `json:"start_time"`
	Mesh      []PeerResult `json:"mesh,omitempty"`
}

// StopResponse answers a stop. Status is "stopped" or "idle".
type StopResponse struct {
	Status    string       `json:"status"`
	Message   string       `json:"message,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	File      string       `json:"file,omitempty"`
	Manifest  string       `json:"manifest,omitempty"`
	Duration  float64      `json:"duration,omitempty"`
	Mesh      []PeerResult `json:"mesh,omitempty"`
}

// RecordingsResponse answers GET /api/v1/recordings.
type RecordingsResponse struct {
	Files []string `json:"files"`
}

// ConfirmRequest is sent by the station after verifying an offload.
type ConfirmRequest struct {
	SessionID string             `json:"session_id"`
	CameraID  string             `json:"camera_id"`
	File      string             `json:"file"`
	Checksum  integrity.Checksum `json:"checksum"`
}

// CleanupResponse answers POST /api/v1/recordings/cleanup.
type CleanupResponse struct {
	Deleted int `json:"deleted"`
	Errors  int `json:"errors"`
}

// SnapshotResponse answers POST /api/v1/snapshot.
type SnapshotResponse struct {
	File string `json:"file"`
	URL  string `json:"url"`
}

// SelfTestResponse answers POST /api/v1/selftest.
type SelfTestResponse struct {
	Passed   bool    `json:"passed"`
	Duration float64 `json:"duration"`
	File     string  `json:"file,omitempty"`
	Bytes    int64   `json:"bytes"`
	Error    string  `json:"error,omitempty"`
}

// NodeSettings is the editable subset of node configuration.
type NodeSettings struct {
	NodeID  string `json:"node_id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	FPS     int    `json:"fps"`
	Bitrate int    `json:"bitrate"`
}

// SettingsResponse answers POST /api/v1/config.
type SettingsResponse struct {
	Status          string       `json:"status"`
	Config          NodeSettings `json:"config"`
	RestartRequired bool         `json:"restart_required"`
}

// NetworkStatus answers GET /api/v1/system/network.
type NetworkStatus struct {
	SSID   string `json:"ssid"`
	IP     string `json:"ip"`
	APMode bool   `json:"ap_mode"`
}

// ConnectRequest asks the node to join a Wi-Fi network.
type ConnectRequest struct {
	SSID string `json:"ssid"`
	PSK  string `json:"psk"`
}

// StatusResponse is a generic {"status": ...} reply with optional detail.
type StatusResponse struct {
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
	Mesh   []PeerResult `json:"mesh,omitempty"`
}

// PeerStatus is one entry of GET /api/v1/mesh/status. Failed peers are
// reported with Online false and an error rather than omitted.
type PeerStatus struct {
	Role   string      `json:"role"`
	URL    string      `json:"url"`
	Online bool        `json:"online"`
	Error  string      `json:"error,omitempty"`
	Status *NodeStatus `json:"status,omitempty"`
}

// MeshStatusResponse answers GET /api/v1/mesh/status.
type MeshStatusResponse struct {
	Self  string       `json:"self"`
	Peers []PeerStatus `json:"peers"`
}

// CheckResult is one preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// PreflightResponse answers GET /api/v1/preflight.
type PreflightResponse struct {
	Checks []CheckResult `json:"checks"`
}
