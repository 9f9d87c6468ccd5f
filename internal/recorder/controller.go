// Package recorder owns the per-node recording state machine.
//
// The Controller moves between Idle, Recording and Stopping. Starts hold the
// state mutex for the whole transition, so two concurrent starts can never
// both observe Idle. A stop only holds it to enter and leave Stopping; the
// driver stop and the manifest checksum run unlocked so status reads stay
// responsive. It is stricter than the camera driver: starting while recording
// or stopping is an error here, not a no-op.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pitchcam/internal/api"
	"pitchcam/internal/audio"
	"pitchcam/internal/camera"
	"pitchcam/internal/integrity"
	"pitchcam/internal/logging"
	"pitchcam/internal/services"
)

// VideoExt is the container extension for node recordings.
const VideoExt = ".mp4"

// ErrAlreadyRecording rejects a start while a session is active.
var ErrAlreadyRecording = fmt.Errorf("%w: already recording", services.ErrConflict)

// Preflight gates session starts.
type Preflight interface {
	Check(ctx context.Context) error
}

// Options configures a Controller.
type Options struct {
	RecordingsDir    string
	SnapshotDir      string
	SelfTestDuration time.Duration
}

// Controller is the recorder state machine.
type Controller struct {
	driver    camera.Driver
	store     *integrity.Store
	preflight Preflight
	player    audio.Player
	settings  *Settings
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	active *session
}

type session struct {
	id       string
	path     string
	start    time.Time
	selfTest bool
	stopping bool
}

// StartResult is returned to the caller for correlation.
type StartResult struct {
	SessionID string
	File      string
	StartTime time.Time
}

// StopResult describes a stop. Stopped is false when nothing was active.
type StopResult struct {
	Stopped      bool
	SessionID    string
	File         string
	Manifest     *integrity.Manifest
	ManifestPath string
	Duration     time.Duration
	Forced       bool
}

// New constructs a Controller.
func New(driver camera.Driver, store *integrity.Store, preflight Preflight, player audio.Player, settings *Settings, opts Options, logger *slog.Logger) *Controller {
	if opts.SelfTestDuration <= 0 {
		opts.SelfTestDuration = 10 * time.Second
	}
	return &Controller{
		driver:    driver,
		store:     store,
		preflight: preflight,
		player:    player,
		settings:  settings,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "recorder"),
		now:       time.Now,
	}
}

// Settings exposes the live capture settings.
func (c *Controller) Settings() *Settings { return c.settings }

// Capabilities reports the driver's capabilities.
func (c *Controller) Capabilities() camera.Capabilities { return c.driver.Capabilities() }

// ValidateSessionID rejects identifiers that cannot be embedded in a file name.
func ValidateSessionID(id string) error {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return services.Wrap(services.ErrValidation, "recorder", "start", "session_id is required", nil)
	case strings.ContainsAny(id, `/\`), strings.Contains(id, ".."):
		return services.Wrap(services.ErrValidation, "recorder", "start", "session_id must not contain path separators", nil)
	}
	return nil
}

// RecordingName builds the deterministic file name for a recording.
func RecordingName(sessionID, cameraID string, start time.Time) string {
	return fmt.Sprintf("%s_%s_%s%s", sessionID, cameraID, start.Format("20060102_150405"), VideoExt)
}

// StartSession moves Idle to Recording.
func (c *Controller) StartSession(ctx context.Context, sessionID string) (StartResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if err := ValidateSessionID(sessionID); err != nil {
		return StartResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx, sessionID, true)
}

func (c *Controller) startLocked(ctx context.Context, sessionID string, cue bool) (StartResult, error) {
	if c.active != nil {
		return StartResult{}, fmt.Errorf("%w (session %s)", ErrAlreadyRecording, c.active.id)
	}
	if c.preflight != nil {
		if err := c.preflight.Check(ctx); err != nil {
			logging.WarnWithContext(c.logger, "recording rejected by preflight", "preflight_rejected",
				logging.String(logging.FieldSessionID, sessionID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "free disk space or connect power"),
				logging.String(logging.FieldImpact, "this node is not recording"),
			)
			return StartResult{}, err
		}
	}
	if cue {
		audio.Async(c.player, audio.Sync, c.logger)
	}

	start := c.now()
	name := RecordingName(sessionID, c.settings.NodeID(), start)
	path := filepath.Join(c.opts.RecordingsDir, name)
	if err := c.driver.Start(ctx, path, c.settings.Capture()); err != nil {
		if _, stopErr := c.driver.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			c.logger.Debug("driver cleanup after failed start", logging.Error(stopErr))
		}
		logging.ErrorWithContext(c.logger, "camera failed to start", "recording_start_failed",
			logging.String(logging.FieldSessionID, sessionID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check camera connection and rpicam-vid"),
		)
		return StartResult{}, err
	}

	c.active = &session{id: sessionID, path: path, start: start}
	c.logger.Info("recording started",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String("file", name),
		logging.String(logging.FieldEventType, "recording_started"),
	)
	return StartResult{SessionID: sessionID, File: name, StartTime: start}, nil
}

// StopSession moves Recording to Idle and writes the manifest. Stopping
// while idle returns a result with Stopped=false and no error.
//
// The stop is detached from ctx cancellation: a caller that gives up still
// gets a graceful driver stop and a complete manifest.
func (c *Controller) StopSession(ctx context.Context) (StopResult, error) {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return StopResult{}, nil
	}
	if c.active.selfTest {
		c.mu.Unlock()
		return StopResult{}, services.Wrap(services.ErrConflict, "recorder", "stop", "self test in progress", nil)
	}
	if c.active.stopping {
		c.mu.Unlock()
		return StopResult{}, services.Wrap(services.ErrConflict, "recorder", "stop", "stop already in progress", nil)
	}
	sess := c.active
	sess.stopping = true
	c.mu.Unlock()

	return c.finish(context.WithoutCancel(ctx), sess)
}

// finish stops the driver and writes the manifest for sess, which must be
// marked stopping. The state returns to Idle only once both are done.
func (c *Controller) finish(ctx context.Context, sess *session) (StopResult, error) {
	defer c.release(sess)
	driverResult, err := c.driver.Stop(ctx)
	duration := c.now().Sub(sess.start)
	result := StopResult{
		Stopped:   true,
		SessionID: sess.id,
		File:      filepath.Base(sess.path),
		Duration:  duration,
		Forced:    driverResult.Forced,
	}
	if err != nil {
		logging.ErrorWithContext(c.logger, "camera failed to stop cleanly", "recording_stop_failed",
			logging.String(logging.FieldSessionID, sess.id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the recording; no manifest was written"),
		)
		return result, err
	}

	manifest, manifestPath, err := c.store.Create(ctx, integrity.RecordingInfo{
		SessionID:      sess.id,
		FilePath:       sess.path,
		StartTimeLocal: sess.start,
		Duration:       duration,
		DroppedFrames:  driverResult.DroppedFrames,
	})
	if err != nil {
		return result, err
	}
	result.Manifest = manifest
	result.ManifestPath = manifestPath
	c.logger.Info("recording stopped",
		logging.String(logging.FieldSessionID, sess.id),
		logging.String("file", result.File),
		logging.Duration("duration", duration),
		logging.Bool("forced", driverResult.Forced),
		logging.String(logging.FieldEventType, "recording_stopped"),
	)
	return result, nil
}

func (c *Controller) release(sess *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == sess {
		c.active = nil
	}
}

// Status snapshots the state machine.
func (c *Controller) Status() api.RecorderStatus {
	status := api.RecorderStatus{DriverAlive: c.driver.Recording()}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return status
	}
	status.IsRecording = !c.active.stopping
	status.Stopping = c.active.stopping
	status.SessionID = c.active.id
	status.File = filepath.Base(c.active.path)
	status.StartTime = float64(c.active.start.UnixNano()) / 1e9
	status.Duration = c.now().Sub(c.active.start).Seconds()
	return status
}

// Recording reports whether a session is capturing. A session that is
// being stopped no longer counts.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && !c.active.stopping
}

// Snapshot captures a still into the snapshot directory and returns its
// file name. Backends with exclusive capture refuse while recording.
func (c *Controller) Snapshot(ctx context.Context) (string, error) {
	c.mu.Lock()
	busy := c.active != nil
	c.mu.Unlock()
	if busy && c.driver.Capabilities().ExclusiveCapture {
		return "", services.Wrap(services.ErrConflict, "recorder", "snapshot", "camera busy recording", nil)
	}
	name := fmt.Sprintf("snap_%d.jpg", c.now().Unix())
	if err := c.driver.Snapshot(ctx, filepath.Join(c.opts.SnapshotDir, name)); err != nil {
		return "", err
	}
	return name, nil
}

// Shutdown stops an active recording so its manifest is written before the
// process exits.
func (c *Controller) Shutdown(ctx context.Context) error {
	result, err := c.StopSession(ctx)
	if err != nil {
		return err
	}
	if result.Stopped {
		c.logger.Info("active recording finalized on shutdown", logging.String(logging.FieldSessionID, result.SessionID))
	}
	return nil
}

// IsAlreadyRecording reports whether err is ErrAlreadyRecording.
func IsAlreadyRecording(err error) bool {
	return errors.Is(err, ErrAlreadyRecording)
}
