package api

import "pitchcam/internal/detections"

// IngestStatus reports what the ingest loop is doing right now.
type IngestStatus struct {
	Status      string  `json:"status"`
	Node        string  `json:"node,omitempty"`
	File        string  `json:"file,omitempty"`
	Progress    int     `json:"progress"`
	NodesOnline int     `json:"nodes_online"`
	LastScan    float64 `json:"last_scan,omitempty"`
}

// PipelineStatus reports the stitch queue.
type PipelineStatus struct {
	QueueLength  int      `json:"queue_length"`
	ActiveJob    string   `json:"active_job,omitempty"`
	Done         int      `json:"done"`
	DeadLettered []string `json:"dead_lettered,omitempty"`
}

// StationStatus answers GET /api/status on the station.
type StationStatus struct {
	Status     string         `json:"status"`
	Version    string         `json:"version"`
	Ingest     IngestStatus   `json:"ingest"`
	Pipeline   PipelineStatus `json:"pipeline"`
	DiskFreeGB float64        `json:"disk_free_gb"`
}

// StitchJob is one row of the stitch ledger.
type StitchJob struct {
	SessionID  string `json:"session_id"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

// StitchJobsResponse answers GET /api/stitch.
type StitchJobsResponse struct {
	Jobs []StitchJob `json:"jobs"`
}

// SessionSummary describes one stitched output.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	File      string `json:"file"`
	SizeBytes int64  `json:"size_bytes"`
	HasEvents bool   `json:"has_events"`
}

// SessionsResponse answers GET /api/sessions.
type SessionsResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// Offload is one confirmed transfer recorded by the station.
type Offload struct {
	Node        string `json:"node"`
	SessionID   string `json:"session_id"`
	CameraID    string `json:"camera_id"`
	File        string `json:"file"`
	Checksum    string `json:"checksum"`
	Bytes       int64  `json:"bytes"`
	ConfirmedAt string `json:"confirmed_at"`
}

// OffloadsResponse answers GET /api/offloads.
type OffloadsResponse struct {
	Offloads []Offload `json:"offloads"`
}

// SessionEventsResponse answers GET /api/sessions/{session}/events.
type SessionEventsResponse struct {
	SessionID string             `json:"session_id"`
	Summary   detections.Summary `json:"summary"`
	Events    []detections.Event `json:"events"`
}

// RetryResponse answers POST /api/stitch/{session}/retry.
type RetryResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
}
