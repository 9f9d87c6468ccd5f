package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateNode(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validatePreflight(); err != nil {
		return err
	}
	if err := c.validateMesh(); err != nil {
		return err
	}
	if err := c.validateNetwork(); err != nil {
		return err
	}
	if err := c.validateStation(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateNode() error {
	if c.Node.ID == "" {
		return errors.New("node.id must be set")
	}
	switch c.Node.Mode {
	case ModeAuto, ModeHardware, ModeSimulated:
	default:
		return fmt.Errorf("node.mode must be one of auto, hardware, simulated (got %q)", c.Node.Mode)
	}
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind must be host:port: %w", err)
	}
	return nil
}

// ValidateCapture checks capture parameters; exported for the node settings endpoint.
func ValidateCapture(capture Capture) error {
	if capture.Width <= 0 || capture.Height <= 0 {
		return errors.New("capture.width and capture.height must be positive")
	}
	if capture.FPS <= 0 || capture.FPS > 240 {
		return errors.New("capture.fps must be between 1 and 240")
	}
	if capture.Bitrate <= 0 {
		return errors.New("capture.bitrate must be positive")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if err := ValidateCapture(c.Capture); err != nil {
		return err
	}
	if c.Capture.StopGraceSeconds <= 0 {
		return errors.New("capture.stop_grace_seconds must be positive")
	}
	if c.Capture.SimulatedChunkBytes <= 0 {
		return errors.New("capture.simulated_chunk_bytes must be positive")
	}
	return nil
}

func (c *Config) validatePreflight() error {
	if c.Preflight.BatteryCriticalPercent < 0 || c.Preflight.BatteryCriticalPercent > 100 {
		return errors.New("preflight.battery_critical_percent must be between 0 and 100")
	}
	if c.Preflight.SelfTestSeconds <= 0 {
		return errors.New("preflight.self_test_seconds must be positive")
	}
	return nil
}

func (c *Config) validateMesh() error {
	if c.Mesh.Port <= 0 || c.Mesh.Port > 65535 {
		return errors.New("mesh.port must be a valid TCP port")
	}
	if c.Mesh.PeerTimeoutSeconds <= 0 {
		return errors.New("mesh.peer_timeout_seconds must be positive")
	}
	for role, host := range c.Mesh.Topology {
		if role == "" || host == "" {
			return errors.New("mesh.topology entries must map a role to a host")
		}
	}
	return nil
}

func (c *Config) validateNetwork() error {
	if c.Network.ClientConnection == "" || c.Network.HotspotConnection == "" {
		return errors.New("network.client_connection and network.hotspot_connection must be set")
	}
	if c.Network.ClientConnection == c.Network.HotspotConnection {
		return errors.New("network.client_connection must differ from network.hotspot_connection")
	}
	if c.Network.ConnectTimeoutSeconds <= 0 {
		return errors.New("network.connect_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateStation() error {
	for _, node := range c.Station.Nodes {
		parsed, err := url.Parse(node)
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("station.nodes entry %q must be an http URL", node)
		}
	}
	if c.Station.ScanIntervalSeconds <= 0 {
		return errors.New("station.scan_interval_seconds must be positive")
	}
	if c.Station.ListTimeoutSeconds <= 0 {
		return errors.New("station.list_timeout_seconds must be positive")
	}
	if c.Station.DownloadTimeoutSeconds < 0 {
		return errors.New("station.download_timeout_seconds must be >= 0")
	}
	if c.Station.StitchIdleSeconds <= 0 {
		return errors.New("station.stitch_idle_seconds must be positive")
	}
	if c.Station.StitchMaxAttempts < 0 {
		return errors.New("station.stitch_max_attempts must be >= 0")
	}
	if c.Station.OutputWidth <= 0 || c.Station.OutputWidth%2 != 0 {
		return errors.New("station.output_width must be a positive even number")
	}
	seen := make(map[string]struct{}, len(c.Station.RequiredRoles))
	for _, role := range c.Station.RequiredRoles {
		if _, dup := seen[role]; dup {
			return fmt.Errorf("station.required_roles contains %q twice", role)
		}
		seen[role] = struct{}{}
	}
	if c.Station.RawDir == c.Station.OutputDir {
		return errors.New("station.raw_dir and station.output_dir must differ")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"console", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout_seconds must be positive")
	}
	return nil
}
