// Package station serves the aggregation station's HTTP surface: ingest and
// stitch status, the stitch ledger with its retry action, stitched sessions
// with their detection event logs, and offload history.
package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/httpapi"
	"pitchcam/internal/ledger"
	"pitchcam/internal/logging"
	"pitchcam/internal/metrics"
	"pitchcam/internal/sysinfo"
)

// Ingest exposes the ingest loop state.
type Ingest interface {
	Status() api.IngestStatus
}

// Pipeline exposes the stitch loop.
type Pipeline interface {
	Status() api.PipelineStatus
	Retry(ctx context.Context, sessionID string) (bool, error)
}

// History is the ledger view served by the station.
type History interface {
	List(ctx context.Context) ([]ledger.Job, error)
	RecentOffloads(ctx context.Context, limit int) ([]ledger.Offload, error)
}

// Deps are the services behind the station routes.
type Deps struct {
	Config   *config.Config
	Ingest   Ingest
	Pipeline Pipeline
	History  History
	Info     sysinfo.Reader
	Metrics  *metrics.Metrics
}

// Server is the station HTTP server.
type Server struct {
	deps   Deps
	bind   string
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

// New builds the server. It does not start listening.
func New(deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Config == nil || deps.Ingest == nil || deps.Pipeline == nil || deps.History == nil {
		return nil, errors.New("station: config, ingest, pipeline and history are required")
	}
	if deps.Info == nil {
		deps.Info = sysinfo.NewHost()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	s := &Server{
		deps:   deps,
		bind:   strings.TrimSpace(deps.Config.Station.Bind),
		logger: logging.NewComponentLogger(logger, "station-api"),
	}
	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
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

	r.Route("/api", func(r chi.Router) {
		r.Use(httpapi.BearerAuth(s.deps.Config.API.Token))
		r.Get("/status", s.handleStatus)
		r.Get("/stitch", s.handleJobs)
		r.Post("/stitch/{session}/retry", s.handleRetry)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{session}/events", s.handleEvents)
		r.Get("/offloads", s.handleOffloads)
	})
	return r
}

// Start listens on the configured bind address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("station api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("station api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("station api listening", logging.String("address", listener.Addr().String()))
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
	s.deps.Metrics.SetStitchQueue(s.deps.Pipeline.Status().QueueLength)
	s.deps.Metrics.SetNodesOnline(s.deps.Ingest.Status().NodesOnline)
}
