package recorder

import (
	"fmt"
	"sync"

	"pitchcam/internal/camera"
	"pitchcam/internal/config"
	"pitchcam/internal/integrity"
	"pitchcam/internal/services"
)

// Settings holds the live capture settings. Changes apply to the next
// recording; an active recording keeps the options it started with.
type Settings struct {
	mu      sync.RWMutex
	nodeID  string
	capture camera.CaptureOptions
	version string
}

// NewSettings seeds live settings from configuration.
func NewSettings(cfg *config.Config) *Settings {
	return &Settings{
		nodeID:  cfg.Node.ID,
		capture: camera.OptionsFromConfig(cfg.Capture),
		version: config.Version,
	}
}

// NodeID returns the camera role stamped into filenames and manifests.
func (s *Settings) NodeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeID
}

// Capture returns the current encoder settings.
func (s *Settings) Capture() camera.CaptureOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capture
}

// UpdateCapture replaces the encoder settings after validating them.
func (s *Settings) UpdateCapture(opts camera.CaptureOptions) error {
	err := config.ValidateCapture(config.Capture{Width: opts.Width, Height: opts.Height, FPS: opts.FPS, Bitrate: opts.Bitrate})
	if err != nil {
		return services.Wrap(services.ErrValidation, "recorder", "update capture", err.Error(), nil)
	}
	s.mu.Lock()
	s.capture = opts
	s.mu.Unlock()
	return nil
}

// Identity implements the manifest identity callback.
func (s *Settings) Identity() integrity.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return integrity.Identity{
		CameraID:        s.nodeID,
		Resolution:      fmt.Sprintf("%dx%d", s.capture.Width, s.capture.Height),
		FPS:             s.capture.FPS,
		Codec:           s.capture.Codec,
		SoftwareVersion: s.version,
	}
}
