package nodeapi

import (
	"context"
	"net/http"

	"pitchcam/internal/api"
	"pitchcam/internal/camera"
	"pitchcam/internal/config"
	"pitchcam/internal/httpapi"
	"pitchcam/internal/logging"
	"pitchcam/internal/network"
	"pitchcam/internal/power"
	"pitchcam/internal/preflight"
	"pitchcam/internal/services"
)

func (s *Server) currentSettings() api.NodeSettings {
	capture := s.deps.Recorder.Settings().Capture()
	s.cfgMu.Lock()
	nodeID := s.deps.Config.Node.ID
	s.cfgMu.Unlock()
	return api.NodeSettings{
		NodeID:  nodeID,
		Width:   capture.Width,
		Height:  capture.Height,
		FPS:     capture.FPS,
		Bitrate: capture.Bitrate,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, s.currentSettings())
}

// handleSaveConfig validates and persists node settings. Capture changes take
// effect on the next recording; a role change needs a restart because the
// mesh topology and file names are derived from it at startup.
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	req := s.currentSettings()
	if err := httpapi.DecodeBody(r, &req); err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	nodeID := config.NormalizeNodeID(req.NodeID)
	if nodeID == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "node_id must be set")
		return
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	next := *s.deps.Config
	next.Node.ID = nodeID
	next.Capture.Width = req.Width
	next.Capture.Height = req.Height
	next.Capture.FPS = req.FPS
	next.Capture.Bitrate = req.Bitrate
	if err := next.Validate(); err != nil {
		httpapi.WriteFailure(w, services.Wrap(services.ErrValidation, "node-api", "save config", err.Error(), nil))
		return
	}
	if err := s.deps.Recorder.Settings().UpdateCapture(camera.OptionsFromConfig(next.Capture)); err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	if s.deps.ConfigPath != "" {
		if err := next.Save(s.deps.ConfigPath); err != nil {
			httpapi.WriteFailure(w, services.Wrap(services.ErrConfiguration, "node-api", "save config", "persist failed", err))
			return
		}
	}
	*s.deps.Config = next

	restart := nodeID != s.deps.Recorder.Settings().NodeID()
	s.logger.Info("node settings saved",
		logging.String(logging.FieldNodeID, nodeID),
		logging.Int("width", next.Capture.Width),
		logging.Int("height", next.Capture.Height),
		logging.Int("fps", next.Capture.FPS),
		logging.Int("bitrate", next.Capture.Bitrate),
		logging.Bool("restart_required", restart),
	)
	httpapi.WriteJSON(w, http.StatusOK, api.SettingsResponse{
		Status: "saved",
		Config: api.NodeSettings{
			NodeID:  nodeID,
			Width:   next.Capture.Width,
			Height:  next.Capture.Height,
			FPS:     next.Capture.FPS,
			Bitrate: next.Capture.Bitrate,
		},
		RestartRequired: restart,
	})
}

func (s *Server) handleMeshStatus(w http.ResponseWriter, r *http.Request) {
	resp := api.MeshStatusResponse{Self: s.deps.Recorder.Settings().NodeID(), Peers: []api.PeerStatus{}}
	if s.deps.Mesh != nil {
		resp.Peers = s.deps.Mesh.Status(r.Context())
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	results := preflight.RunNode(r.Context(), s.deps.Config, s.deps.Info)
	checks := make([]api.CheckResult, 0, len(results))
	for _, res := range results {
		checks = append(checks, api.CheckResult{Name: res.Name, Passed: res.Passed, Detail: res.Detail})
	}
	httpapi.WriteJSON(w, http.StatusOK, api.PreflightResponse{Checks: checks})
}

func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Network == nil {
		httpapi.WriteError(w, http.StatusServiceUnavailable, "network service unavailable")
		return
	}
	status, err := s.deps.Network.Status(r.Context())
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) handleNetworkConnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Network == nil {
		httpapi.WriteError(w, http.StatusServiceUnavailable, "network service unavailable")
		return
	}
	var req api.ConnectRequest
	if err := httpapi.DecodeBody(r, &req); err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	if err := network.ValidateCredentials(req.SSID, req.PSK); err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	// The switch outlives the request: dropping off the old network closes
	// the caller's connection mid-way.
	result, err := s.deps.Network.Connect(context.WithoutCancel(r.Context()), req.SSID, req.PSK)
	resp := api.StatusResponse{Status: result.Status}
	if err != nil {
		resp.Error = err.Error()
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNetworkAP(w http.ResponseWriter, r *http.Request) {
	if s.deps.Network == nil {
		httpapi.WriteError(w, http.StatusServiceUnavailable, "network service unavailable")
		return
	}
	if err := s.deps.Network.EnableAPMode(context.WithoutCancel(r.Context())); err != nil {
		httpapi.WriteJSON(w, http.StatusOK, api.StatusResponse{Status: network.StatusFailed, Error: err.Error()})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, api.StatusResponse{Status: network.StatusAPMode})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req api.StopRequest
	if err := httpapi.DecodeBody(r, &req); err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	if s.deps.Power == nil {
		httpapi.WriteError(w, http.StatusServiceUnavailable, "power control unavailable")
		return
	}
	resp := api.StatusResponse{Status: "shutting_down"}
	if req.Source.Relays() && s.deps.Mesh != nil {
		resp.Mesh = s.deps.Mesh.BroadcastShutdown(r.Context())
	}
	s.finalizeRecording(r.Context())
	httpapi.WriteJSON(w, http.StatusOK, resp)
	power.After(s.deps.PowerDelay, s.logger, s.deps.Power.Shutdown)
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	if s.deps.Power == nil {
		httpapi.WriteError(w, http.StatusServiceUnavailable, "power control unavailable")
		return
	}
	s.finalizeRecording(r.Context())
	httpapi.WriteJSON(w, http.StatusOK, api.StatusResponse{Status: "rebooting"})
	power.After(s.deps.PowerDelay, s.logger, s.deps.Power.Reboot)
}

// finalizeRecording stops an active recording before power-off so its
// manifest is on disk.
func (s *Server) finalizeRecording(ctx context.Context) {
	if err := s.deps.Recorder.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logging.WarnWithContext(s.logger, "recording not finalized before power action", "power_finalize_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the recordings directory after restart"),
			logging.String(logging.FieldImpact, "the last recording may have no manifest"),
		)
	}
}
