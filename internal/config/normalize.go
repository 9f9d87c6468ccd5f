package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNode()
	c.normalizeMesh()
	if err := c.normalizeStation(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

// applyEnv lets environment variables (including ones loaded from the
// optional env file) override file values.
func (c *Config) applyEnv() {
	if value, ok := lookupEnv("PITCHCAM_NODE_ID"); ok {
		c.Node.ID = value
	}
	if value, ok := lookupEnv("PITCHCAM_MODE"); ok {
		c.Node.Mode = value
	}
	if value, ok := lookupEnv("DEV_MODE"); ok {
		if dev, err := strconv.ParseBool(value); err == nil && dev {
			c.Node.Mode = ModeSimulated
		}
	}
	if value, ok := lookupEnv("PITCHCAM_API_TOKEN"); ok {
		c.API.Token = value
	}
	if value, ok := lookupEnv("PITCHCAM_RECORDINGS_DIR"); ok {
		c.Paths.RecordingsDir = value
	}
	if value, ok := lookupEnv("PITCHCAM_RAW_DIR"); ok {
		c.Station.RawDir = value
	}
	if value, ok := lookupEnv("PITCHCAM_OUTPUT_DIR"); ok {
		c.Station.OutputDir = value
	}
	if value, ok := lookupEnv("VERIFY_CHECKSUMS"); ok {
		if verify, err := strconv.ParseBool(value); err == nil {
			c.Station.VerifyChecksums = verify
		}
	}
	if value, ok := lookupEnv("PITCHCAM_NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = value
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.recordings_dir", &c.Paths.RecordingsDir, defaultRecordingsDir},
		{"paths.snapshot_dir", &c.Paths.SnapshotDir, defaultSnapshotDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"station.raw_dir", &c.Station.RawDir, defaultRawDir},
		{"station.output_dir", &c.Station.OutputDir, defaultOutputDir},
		{"station.events_dir", &c.Station.EventsDir, defaultEventsDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.def
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeNode() {
	c.Node.ID = NormalizeNodeID(c.Node.ID)
	c.Node.Mode = strings.ToLower(strings.TrimSpace(c.Node.Mode))
	if c.Node.Mode == "" {
		c.Node.Mode = ModeAuto
	}
	c.Capture.Codec = strings.ToLower(strings.TrimSpace(c.Capture.Codec))
	if c.Capture.Codec == "" {
		c.Capture.Codec = defaultCodec
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	c.Network.Interface = strings.TrimSpace(c.Network.Interface)
	c.Network.ClientConnection = strings.TrimSpace(c.Network.ClientConnection)
	c.Network.HotspotConnection = strings.TrimSpace(c.Network.HotspotConnection)
}

func (c *Config) normalizeMesh() {
	if len(c.Mesh.Topology) == 0 {
		c.Mesh.Topology = Default().Mesh.Topology
		return
	}
	normalized := make(map[string]string, len(c.Mesh.Topology))
	for role, host := range c.Mesh.Topology {
		normalized[NormalizeNodeID(role)] = strings.TrimSpace(host)
	}
	c.Mesh.Topology = normalized
}

func (c *Config) normalizeStation() error {
	c.Station.Bind = strings.TrimSpace(c.Station.Bind)
	if c.Station.Bind == "" {
		c.Station.Bind = defaultStationBind
	}
	nodes := make([]string, 0, len(c.Station.Nodes))
	for _, node := range c.Station.Nodes {
		node = strings.TrimRight(strings.TrimSpace(node), "/")
		if node == "" {
			continue
		}
		if !strings.Contains(node, "://") {
			node = "http://" + node
		}
		nodes = append(nodes, node)
	}
	c.Station.Nodes = nodes
	if len(c.Station.RequiredRoles) == 0 {
		c.Station.RequiredRoles = DefaultRoles()
	}
	for i, role := range c.Station.RequiredRoles {
		c.Station.RequiredRoles[i] = NormalizeNodeID(role)
	}
	c.Station.FFmpegBinary = strings.TrimSpace(c.Station.FFmpegBinary)
	if c.Station.FFmpegBinary == "" {
		c.Station.FFmpegBinary = defaultFFmpegBinary
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// NormalizeNodeID canonicalizes role spellings such as "cam-l" to "CAM_L".
func NormalizeNodeID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	return strings.ReplaceAll(id, "-", "_")
}
