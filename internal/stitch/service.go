// Package stitch turns complete multi-camera sessions in the station's raw
// directory into one panoramic output per session.
//
// Each pass scans the raw directory, groups recordings by session, and
// queues every session that has all required roles and no output yet. The
// queue is FIFO and drained one job at a time. An existing output is the
// permanent record of success; the SQLite ledger only tracks attempts so a
// session that keeps failing is dead-lettered after a bounded number of
// tries instead of looping forever.
package stitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/fileutil"
	"pitchcam/internal/logging"
	"pitchcam/internal/metrics"
	"pitchcam/internal/notifications"
	"pitchcam/internal/services"
)

// Ledger records stitch attempts.
type Ledger interface {
	MarkQueued(ctx context.Context, sessionID string) error
	MarkRunning(ctx context.Context, sessionID string) (int, error)
	MarkDone(ctx context.Context, sessionID, outputPath string) error
	MarkFailed(ctx context.Context, sessionID, message string, maxAttempts int) (bool, error)
	MarkInterrupted(ctx context.Context, sessionID, message string) error
	IsDeadLettered(ctx context.Context, sessionID string) (bool, error)
	DeadLettered(ctx context.Context) ([]string, error)
	Reset(ctx context.Context, sessionID string) (bool, error)
}

// Options configures the service.
type Options struct {
	RawDir       string
	OutputDir    string
	Roles        []string
	IdleInterval time.Duration
	MaxAttempts  int
	WatchRawDir  bool
}

// Service is the stitch loop.
type Service struct {
	opts     Options
	muxer    Muxer
	ledger   Ledger
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger

	wake chan struct{}

	mu     sync.Mutex
	queue  []Session
	queued map[string]bool
	active string
	done   int
	dead   []string
}

// New builds a stitch service.
func New(opts Options, muxer Muxer, ledger Ledger, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger) *Service {
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = 5 * time.Second
	}
	if len(opts.Roles) == 0 {
		opts.Roles = config.DefaultRoles()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		opts:     opts,
		muxer:    muxer,
		ledger:   ledger,
		notifier: notifier,
		metrics:  m,
		logger:   logging.NewComponentLogger(logger, "stitch"),
		wake:     make(chan struct{}, 1),
		queued:   make(map[string]bool),
	}
}

// FromConfig builds a service with an ffmpeg muxer from station settings.
func FromConfig(cfg *config.Config, ledger Ledger, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger) *Service {
	st := cfg.Station
	return New(Options{
		RawDir:       st.RawDir,
		OutputDir:    st.OutputDir,
		Roles:        st.RequiredRoles,
		IdleInterval: time.Duration(st.StitchIdleSeconds) * time.Second,
		MaxAttempts:  st.StitchMaxAttempts,
		WatchRawDir:  st.WatchRawDir,
	}, NewFFmpegMuxer(st.FFmpegBinary, st.OutputWidth), ledger, notifier, m, logger)
}

// Status returns a snapshot of the queue.
func (s *Service) Status() api.PipelineStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return api.PipelineStatus{
		QueueLength:  len(s.queue),
		ActiveJob:    s.active,
		Done:         s.done,
		DeadLettered: append([]string(nil), s.dead...),
	}
}

// Wake asks the loop to rescan now instead of waiting out the idle interval.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Retry clears a session's failure history so the next scan queues it
// again. It reports false when the ledger has no record of the session.
func (s *Service) Retry(ctx context.Context, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, services.Wrap(services.ErrValidation, "stitch", "retry", "session id is required", nil)
	}
	ok, err := s.ledger.Reset(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("stitch session reset for retry",
			logging.String(logging.FieldSessionID, sessionID),
			logging.String(logging.FieldEventType, "stitch_retry"),
		)
		s.refreshDeadLetters(ctx)
		s.Wake()
	}
	return ok, nil
}

// Run scans and drains the queue until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if s.opts.WatchRawDir {
		if stop, err := s.watch(ctx); err != nil {
			logging.WarnWithContext(s.logger, "raw directory watch unavailable; polling only", "stitch_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits"),
				logging.String(logging.FieldImpact, "new sessions are picked up on the idle interval"),
			)
		} else {
			defer stop()
		}
	}
	s.logger.Info("stitch loop started",
		logging.String("raw_dir", s.opts.RawDir),
		logging.String("output_dir", s.opts.OutputDir),
		logging.String("roles", strings.Join(s.opts.Roles, ",")),
		logging.Int("max_attempts", s.opts.MaxAttempts),
	)
	s.refreshDeadLetters(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.ScanOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(s.logger, "raw directory scan failed", "stitch_scan_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that station.raw_dir exists and is readable"),
				logging.String(logging.FieldImpact, "stitching paused until the next scan"),
			)
		}
		// Failed jobs are only rediscovered by the next scan, so a broken
		// session cannot spin the loop.
		for ctx.Err() == nil && s.ProcessNext(ctx) {
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-time.After(s.opts.IdleInterval):
		}
	}
}

// ScanOnce queues every eligible session that is not already queued.
func (s *Service) ScanOnce(ctx context.Context) error {
	sessions, err := ScanSessions(s.opts.RawDir, s.opts.Roles)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if fileutil.Exists(OutputPath(s.opts.OutputDir, session.ID)) {
			continue
		}
		if !session.Complete(s.opts.Roles) || s.isQueued(session.ID) {
			continue
		}
		dead, err := s.ledger.IsDeadLettered(ctx, session.ID)
		if err != nil {
			return err
		}
		if dead {
			continue
		}
		if err := s.ledger.MarkQueued(ctx, session.ID); err != nil {
			return err
		}
		s.enqueue(session)
		s.logger.Info("session queued for stitching",
			logging.String(logging.FieldSessionID, session.ID),
			logging.Int("inputs", len(session.Inputs)),
			logging.String(logging.FieldEventType, "stitch_queued"),
		)
	}
	done := countOutputs(s.opts.OutputDir)
	s.mu.Lock()
	s.done = done
	depth := len(s.queue)
	s.mu.Unlock()
	s.metrics.SetStitchQueue(depth)
	return nil
}

// ProcessNext runs the job at the head of the queue. It returns false when
// the queue is empty.
func (s *Service) ProcessNext(ctx context.Context) bool {
	session, ok := s.dequeue()
	if !ok {
		return false
	}
	defer s.finish(session.ID)
	s.process(ctx, session)
	return true
}

func (s *Service) process(ctx context.Context, session Session) {
	logger := s.logger.With(logging.String(logging.FieldSessionID, session.ID))
	ctx = services.WithSessionID(ctx, session.ID)
	output := OutputPath(s.opts.OutputDir, session.ID)
	if fileutil.Exists(output) {
		return
	}

	attempt, err := s.ledger.MarkRunning(ctx, session.ID)
	if err != nil {
		logger.Error("stitch ledger update failed", logging.Error(err))
		return
	}
	inputs := session.Ordered(s.opts.Roles)
	logger.Info("stitching session",
		logging.Int("attempt", attempt),
		logging.Int("inputs", len(inputs)),
		logging.String("output", filepath.Base(output)),
		logging.String(logging.FieldEventType, "stitch_started"),
	)

	started := time.Now()
	muxErr := s.muxer.Mux(ctx, inputs, output)
	if muxErr == nil {
		s.succeeded(ctx, logger, session.ID, output, time.Since(started))
		return
	}
	if ctx.Err() != nil {
		// Shutdown interrupted the job; it is not the session's fault.
		if err := s.ledger.MarkInterrupted(context.WithoutCancel(ctx), session.ID, "interrupted by shutdown"); err != nil {
			logger.Debug("could not record interrupted stitch", logging.Error(err))
		}
		return
	}
	s.failed(ctx, logger, session.ID, attempt, muxErr)
}

func (s *Service) succeeded(ctx context.Context, logger *slog.Logger, sessionID, output string, elapsed time.Duration) {
	s.metrics.StitchResult(metrics.StitchDone)
	if err := s.ledger.MarkDone(ctx, sessionID, output); err != nil {
		logger.Warn("stitch ledger not updated after success", logging.Error(err))
	}
	s.mu.Lock()
	s.done++
	s.mu.Unlock()
	logger.Info("session stitched",
		logging.String("output", output),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "stitch_completed"),
	)
	s.publish(ctx, logger, notifications.EventStitchCompleted, notifications.Payload{
		"session": sessionID,
		"file":    filepath.Base(output),
	})
}

func (s *Service) failed(ctx context.Context, logger *slog.Logger, sessionID string, attempt int, muxErr error) {
	dead, err := s.ledger.MarkFailed(ctx, sessionID, muxErr.Error(), s.opts.MaxAttempts)
	if err != nil {
		logger.Error("stitch ledger update failed", logging.Error(err))
	}
	if !dead {
		s.metrics.StitchResult(metrics.StitchFailed)
		logging.WarnWithContext(logger, "stitch failed; will retry on a later scan", "stitch_failed",
			logging.Error(muxErr),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", s.opts.MaxAttempts),
			logging.String(logging.FieldErrorHint, "check ffmpeg output in the error above"),
			logging.String(logging.FieldImpact, "session output delayed"),
		)
		return
	}

	s.metrics.StitchResult(metrics.StitchDead)
	s.refreshDeadLetters(ctx)
	logging.ErrorWithContext(logger, "stitch dead-lettered", "stitch_dead_lettered",
		logging.Error(muxErr),
		logging.Int("attempts", attempt),
		logging.String(logging.FieldErrorHint, "fix the inputs then run `pitchcam stitch retry "+sessionID+"`"),
		logging.String(logging.FieldImpact, "session is skipped by future scans"),
	)
	s.publish(ctx, logger, notifications.EventStitchDeadLettered, notifications.Payload{
		"session":  sessionID,
		"attempts": strconv.Itoa(attempt),
		"error":    muxErr.Error(),
	})
}

func (s *Service) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("stitch notification failed", logging.Error(err), logging.String("event", string(event)))
	}
}

func (s *Service) refreshDeadLetters(ctx context.Context) {
	dead, err := s.ledger.DeadLettered(ctx)
	if err != nil {
		s.logger.Debug("dead letter refresh failed", logging.Error(err))
		return
	}
	s.mu.Lock()
	s.dead = dead
	s.mu.Unlock()
}

func (s *Service) isQueued(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued[sessionID]
}

func (s *Service) enqueue(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, session)
	s.queued[session.ID] = true
}

func (s *Service) dequeue() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Session{}, false
	}
	session := s.queue[0]
	s.queue = s.queue[1:]
	s.active = session.ID
	s.metrics.SetStitchQueue(len(s.queue))
	return session, true
}

func (s *Service) finish(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queued, sessionID)
	s.active = ""
}

func countOutputs(dir string) int {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+OutputSuffix))
	if err != nil {
		return 0
	}
	return len(matches)
}

func (s *Service) watch(ctx context.Context) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.opts.RawDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					if _, isVideo := ParseName(event.Name); isVideo || strings.HasSuffix(event.Name, ".json") {
						s.Wake()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Debug("raw directory watch error", logging.Error(err))
			}
		}
	}()
	return func() { _ = watcher.Close() }, nil
}
