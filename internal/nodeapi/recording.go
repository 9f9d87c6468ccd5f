package nodeapi

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/httpapi"
	"pitchcam/internal/integrity"
	"pitchcam/internal/logging"
	"pitchcam/internal/recorder"
	"pitchcam/internal/services"
	"pitchcam/internal/timesync"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, api.HealthResponse{
		Status:  "ok",
		Version: config.Version,
		Mode:    s.deps.Mode,
		NodeID:  s.deps.Recorder.Settings().NodeID(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := api.NodeStatus{
		NodeID:   s.deps.Recorder.Settings().NodeID(),
		Recorder: s.deps.Recorder.Status(),
		Mode:     s.deps.Mode,
		Backend:  s.deps.Recorder.Capabilities().Backend,
		Version:  config.Version,
	}
	if s.deps.Info != nil {
		if usage, err := s.deps.Info.Disk(ctx, s.deps.Config.Paths.RecordingsDir); err == nil {
			status.DiskFreeGB = usage.FreeGB()
		} else {
			s.logger.Debug("disk usage unavailable", logging.Error(err))
		}
		status.TempC = s.deps.Info.TemperatureC(ctx)
		battery := s.deps.Info.Battery(ctx)
		status.BatteryPercent = battery.Percent
		status.Charging = battery.Charging
	}
	if s.deps.Clock != nil {
		reading := s.deps.Clock.Read(ctx)
		status.SyncOffsetMS = reading.OffsetMS
		status.SyncStatus = reading.Status
	} else {
		status.SyncStatus = timesync.StatusUnknown
	}
	httpapi.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if err := httpapi.DecodeBody(r, &req); err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	ctx := services.WithSessionID(r.Context(), req.SessionID)
	result, err := s.deps.Recorder.StartSession(ctx, req.SessionID)
	if err != nil {
		s.deps.Metrics.RecordingEvent("start_rejected")
		httpapi.WriteFailure(w, err)
		return
	}
	s.deps.Metrics.RecordingEvent("started")
	s.deps.Metrics.SetRecording(true)

	resp := api.StartResponse{
		SessionID: result.SessionID,
		File:      result.File,
		Status:    "recording",
		StartTime: float64(result.StartTime.UnixNano()) / 1e9,
	}
	if req.Source.Relays() && s.deps.Mesh != nil {
		resp.Mesh = s.deps.Mesh.BroadcastStart(ctx, result.SessionID)
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req api.StopRequest
	if err := httpapi.DecodeBody(r, &req); err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	// The stop finishes and reaches the peers even if the requester hangs up.
	ctx := context.WithoutCancel(r.Context())
	result, err := s.deps.Recorder.StopSession(ctx)

	// An operator stop always reaches the peers, even when this node was
	// idle or failed to stop cleanly.
	var relayed []api.PeerResult
	if req.Source.Relays() && s.deps.Mesh != nil {
		relayed = s.deps.Mesh.BroadcastStop(ctx)
	}
	if err != nil {
		s.deps.Metrics.RecordingEvent("stop_failed")
		s.deps.Metrics.SetRecording(false)
		httpapi.WriteFailure(w, err)
		return
	}
	if !result.Stopped {
		httpapi.WriteJSON(w, http.StatusOK, api.StopResponse{Status: "idle", Message: "No recording was active", Mesh: relayed})
		return
	}
	s.deps.Metrics.RecordingEvent("stopped")
	s.deps.Metrics.IncManifests()
	s.deps.Metrics.SetRecording(false)
	httpapi.WriteJSON(w, http.StatusOK, api.StopResponse{
		Status:    "stopped",
		SessionID: result.SessionID,
		File:      result.File,
		Manifest:  filepath.Base(result.ManifestPath),
		Duration:  result.Duration.Seconds(),
		Mesh:      relayed,
	})
}

func (s *Server) handleRecordings(w http.ResponseWriter, _ *http.Request) {
	files, err := s.deps.Store.Artifacts(recorder.VideoExt)
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, api.RecordingsResponse{Files: files})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req api.ConfirmRequest
	if err := httpapi.DecodeBody(r, &req); err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.CameraID) == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "session_id and camera_id are required")
		return
	}
	manifest, err := s.deps.Store.Load(req.SessionID, req.CameraID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httpapi.WriteError(w, http.StatusNotFound, "Manifest not found")
			return
		}
		httpapi.WriteFailure(w, err)
		return
	}
	if req.Checksum.Value != "" && !req.Checksum.Equal(manifest.Checksum) {
		logging.WarnWithContext(s.logger, "offload confirmation checksum disagrees with manifest", "confirm_mismatch",
			logging.String(logging.FieldSessionID, req.SessionID),
			logging.String(logging.FieldCameraID, req.CameraID),
			logging.String("expected", manifest.Checksum.String()),
			logging.String("received", req.Checksum.String()),
			logging.String(logging.FieldErrorHint, "the station copy differs from the recording; re-offload it"),
			logging.String(logging.FieldImpact, "recording stays on the node"),
		)
		httpapi.WriteError(w, http.StatusConflict, "checksum does not match manifest")
		return
	}
	ok, err := s.deps.Store.MarkOffloaded(req.SessionID, req.CameraID)
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	if !ok {
		httpapi.WriteError(w, http.StatusNotFound, "Manifest not found")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, api.StatusResponse{Status: "confirmed"})
}

func (s *Server) handleCleanup(w http.ResponseWriter, _ *http.Request) {
	result, err := s.deps.Store.PurgeOffloaded()
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, api.CleanupResponse{Deleted: len(result.Deleted), Errors: len(result.Errors)})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	name, err := s.deps.Recorder.Snapshot(r.Context())
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, api.SnapshotResponse{File: name, URL: "/snapshots/" + name})
}

func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Recorder.SelfTest(r.Context())
	resp := api.SelfTestResponse{
		Passed:   result.Passed,
		Duration: result.Duration.Seconds(),
		File:     result.File,
		Bytes:    result.Bytes,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if !strings.HasSuffix(name, recorder.VideoExt) && !strings.HasSuffix(name, integrity.ManifestExt) {
		httpapi.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	s.serveFile(w, r, s.deps.Config.Paths.RecordingsDir, name)
}

func (s *Server) handleSnapshotFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if !strings.HasSuffix(name, ".jpg") {
		httpapi.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	s.serveFile(w, r, s.deps.Config.Paths.SnapshotDir, name)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, dir, name string) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		httpapi.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		httpapi.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	http.ServeFile(w, r, path)
}
