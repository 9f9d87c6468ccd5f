package station

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/detections"
	"pitchcam/internal/httpapi"
	"pitchcam/internal/logging"
	"pitchcam/internal/services"
	"pitchcam/internal/stitch"
)

const defaultEventLimit = 1000

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpapi.WriteJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Version: config.Version, Mode: "station"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := api.StationStatus{
		Status:   "online",
		Version:  config.Version,
		Ingest:   s.deps.Ingest.Status(),
		Pipeline: s.deps.Pipeline.Status(),
	}
	if usage, err := s.deps.Info.Disk(r.Context(), s.deps.Config.Station.RawDir); err == nil {
		status.DiskFreeGB = usage.FreeGB()
	} else {
		s.logger.Debug("disk usage unavailable", logging.Error(err))
	}
	httpapi.WriteJSON(w, http.StatusOK, status)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.deps.History.List(r.Context())
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	resp := api.StitchJobsResponse{Jobs: make([]api.StitchJob, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, job.API())
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionParam(r)
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	ok, err := s.deps.Pipeline.Retry(r.Context(), sessionID)
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	if !ok {
		httpapi.WriteError(w, http.StatusNotFound, "no stitch record for session "+sessionID)
		return
	}
	s.logger.Info("stitch retry requested",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldEventType, "stitch_retry_requested"),
	)
	httpapi.WriteJSON(w, http.StatusOK, api.RetryResponse{Status: "queued", SessionID: sessionID})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	cfg := s.deps.Config.Station
	matches, err := filepath.Glob(filepath.Join(cfg.OutputDir, "*"+stitch.OutputSuffix))
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	sort.Strings(matches)
	resp := api.SessionsResponse{Sessions: make([]api.SessionSummary, 0, len(matches))}
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		name := filepath.Base(path)
		sessionID := strings.TrimSuffix(name, stitch.OutputSuffix)
		resp.Sessions = append(resp.Sessions, api.SessionSummary{
			SessionID: sessionID,
			File:      name,
			SizeBytes: info.Size(),
			HasEvents: detections.Exists(cfg.EventsDir, sessionID),
		})
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionParam(r)
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	limit, err := limitParam(r, defaultEventLimit)
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	events, err := detections.Read(detections.LogPath(s.deps.Config.Station.EventsDir, sessionID), limit)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			httpapi.WriteError(w, http.StatusNotFound, "no event log for session "+sessionID)
			return
		}
		httpapi.WriteFailure(w, err)
		return
	}
	if events == nil {
		events = []detections.Event{}
	}
	httpapi.WriteJSON(w, http.StatusOK, api.SessionEventsResponse{
		SessionID: sessionID,
		Summary:   detections.Summarize(events),
		Events:    events,
	})
}

func (s *Server) handleOffloads(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r, 50)
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	rows, err := s.deps.History.RecentOffloads(r.Context(), limit)
	if err != nil {
		httpapi.WriteFailure(w, err)
		return
	}
	resp := api.OffloadsResponse{Offloads: make([]api.Offload, 0, len(rows))}
	for _, row := range rows {
		resp.Offloads = append(resp.Offloads, row.API())
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func sessionParam(r *http.Request) (string, error) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session"))
	if sessionID == "" || strings.ContainsAny(sessionID, `/\`) || sessionID == ".." {
		return "", services.Wrap(services.ErrValidation, "station-api", "session", "invalid session id", nil)
	}
	return sessionID, nil
}

func limitParam(r *http.Request, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, services.Wrap(services.ErrValidation, "station-api", "limit", "limit must be a positive integer", nil)
	}
	return limit, nil
}
