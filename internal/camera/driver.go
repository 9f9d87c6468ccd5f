// Package camera drives the capture hardware on a node.
//
// A Driver records to a single growing file at a time. Start while already
// recording is a logged no-op and Stop without a recording is a benign
// result, so the stricter session rules live in the recorder package. The
// rpicam backend shells out to rpicam-vid / rpicam-jpeg; the simulated
// backend writes zero-filled chunks so the whole pipeline can run on a laptop.
package camera

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"time"

	"pitchcam/internal/config"
	"pitchcam/internal/sysexec"
)

// Backend names reported in status.
const (
	BackendRpicam    = "rpicam"
	BackendSimulated = "simulated"
)

// CaptureOptions are the encoder settings for one recording.
type CaptureOptions struct {
	Width   int
	Height  int
	FPS     int
	Bitrate int
	Codec   string
}

// OptionsFromConfig copies capture settings out of configuration.
func OptionsFromConfig(c config.Capture) CaptureOptions {
	return CaptureOptions{Width: c.Width, Height: c.Height, FPS: c.FPS, Bitrate: c.Bitrate, Codec: c.Codec}
}

// StopResult describes how a recording ended.
type StopResult struct {
	WasRecording  bool
	Forced        bool
	DroppedFrames int
}

// Capabilities advertises backend constraints to the controller.
type Capabilities struct {
	Backend string
	// ExclusiveCapture means snapshots cannot be taken while recording.
	ExclusiveCapture bool
}

// Driver is the capture contract shared by all backends.
type Driver interface {
	Start(ctx context.Context, path string, opts CaptureOptions) error
	Stop(ctx context.Context) (StopResult, error)
	Snapshot(ctx context.Context, path string) error
	Recording() bool
	Capabilities() Capabilities
}

// ResolveMode turns the configured node mode into hardware or simulated.
// Auto selects hardware only on ARM boards with rpicam-vid installed.
func ResolveMode(mode string) string {
	switch mode {
	case config.ModeHardware, config.ModeSimulated:
		return mode
	}
	if runtime.GOARCH != "arm64" && runtime.GOARCH != "arm" {
		return config.ModeSimulated
	}
	if _, err := exec.LookPath("rpicam-vid"); err != nil {
		return config.ModeSimulated
	}
	return config.ModeHardware
}

// New builds the driver for a resolved mode.
func New(cfg *config.Config, mode string, runner sysexec.Runner, logger *slog.Logger) Driver {
	if mode == config.ModeHardware {
		return NewRpicam(runner, RpicamOptions{
			StopGrace:      time.Duration(cfg.Capture.StopGraceSeconds) * time.Second,
			SnapshotWidth:  cfg.Capture.SnapshotWidth,
			SnapshotHeight: cfg.Capture.SnapshotHeight,
		}, logger)
	}
	return NewSimulated(cfg.Capture.SimulatedChunkBytes, time.Second, logger)
}
