// Package nodeapi serves the camera node HTTP surface.
//
// Control routes live under /api/v1 and are guarded by a bearer token when
// one is configured. Recordings, manifests and snapshots are served as static
// files for the station's ingest agent. Commands carrying source "user" are
// relayed to mesh peers after they succeed locally; relayed commands arrive
// with source "mesh" and are never re-broadcast.
package nodeapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/httpapi"
	"pitchcam/internal/integrity"
	"pitchcam/internal/logging"
	"pitchcam/internal/metrics"
	"pitchcam/internal/network"
	"pitchcam/internal/power"
	"pitchcam/internal/recorder"
	"pitchcam/internal/sysinfo"
	"pitchcam/internal/timesync"
)

// Mesh is the peer fan-out used by relayed commands.
type Mesh interface {
	Self() string
	BroadcastStart(ctx context.Context, sessionID string) []api.PeerResult
	BroadcastStop(ctx context.Context) []api.PeerResult
	BroadcastShutdown(ctx context.Context) []api.PeerResult
	Status(ctx context.Context) []api.PeerStatus
}

// Deps are the services behind the node routes.
type Deps struct {
	Config     *config.Config
	ConfigPath string
	Mode       string
	Recorder   *recorder.Controller
	Store      *integrity.Store
	Mesh       Mesh
	Network    network.Service
	Power      power.Controller
	Info       sysinfo.Reader
	Clock      timesync.Source
	Metrics    *metrics.Metrics
	// PowerDelay is the pause between replying and acting on shutdown or
	// reboot. Defaults to two seconds.
	PowerDelay time.Duration
}

// Server is the node HTTP server.
type Server struct {
	deps   Deps
	bind   string
	logger *slog.Logger

	cfgMu sync.Mutex

	listener net.Listener
	server   *http.Server
}

// New builds the server. It does not start listening.
func New(deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Config == nil || deps.Recorder == nil || deps.Store == nil {
		return nil, errors.New("nodeapi: config, recorder and store are required")
	}
	if deps.PowerDelay <= 0 {
		deps.PowerDelay = 2 * time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	s := &Server{
		deps:   deps,
		bind:   strings.TrimSpace(deps.Config.API.Bind),
		logger: logging.NewComponentLogger(logger, "node-api"),
	}
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Static downloads of multi-gigabyte recordings must not be cut off.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(httpapi.RequestID)
	r.Use(logging.RequestLogger(s.logger))
	r.Use(metrics.RequestMiddleware(s.deps.Metrics))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler(s.refreshGauges))

	r.Group(func(r chi.Router) {
		r.Use(httpapi.BearerAuth(s.deps.Config.API.Token))
		r.Get("/static/{file}", s.handleStatic)
		r.Get("/snapshots/{file}", s.handleSnapshotFile)

		r.Route(api.Prefix, func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/record/start", s.handleStart)
			r.Post("/record/stop", s.handleStop)
			r.Get("/recordings", s.handleRecordings)
			r.Post("/recordings/confirm", s.handleConfirm)
			r.Post("/recordings/cleanup", s.handleCleanup)
			r.Post("/snapshot", s.handleSnapshot)
			r.Post("/selftest", s.handleSelfTest)
			r.Get("/config", s.handleGetConfig)
			r.Post("/config", s.handleSaveConfig)
			r.Get("/mesh/status", s.handleMeshStatus)
			r.Get("/preflight", s.handlePreflight)
			r.Get("/system/network", s.handleNetworkStatus)
			r.Post("/system/network/connect", s.handleNetworkConnect)
			r.Post("/system/network/ap", s.handleNetworkAP)
			r.Post("/system/shutdown", s.handleShutdown)
			r.Post("/system/reboot", s.handleReboot)
		})
	})
	return r
}

// Start listens on the configured bind address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("node api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("node api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("node api listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) refreshGauges() {
	s.deps.Metrics.SetRecording(s.deps.Recorder.Recording())
}
