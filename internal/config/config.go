package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Version is the software version stamped into manifests and health replies.
// Overridden at build time with -ldflags "-X pitchcam/internal/config.Version=...".
var Version = "1.3.0"

// Paths contains directory configuration shared by both roles.
type Paths struct {
	RecordingsDir string `toml:"recordings_dir"`
	SnapshotDir   string `toml:"snapshot_dir"`
	StateDir      string `toml:"state_dir"`
	LogDir        string `toml:"log_dir"`
}

// Node identifies this camera rig and how its hardware is driven.
type Node struct {
	ID   string `toml:"id"`
	Mode string `toml:"mode"`
}

// Capture contains recording and snapshot parameters.
type Capture struct {
	Width               int    `toml:"width"`
	Height              int    `toml:"height"`
	FPS                 int    `toml:"fps"`
	Bitrate             int    `toml:"bitrate"`
	Codec               string `toml:"codec"`
	StopGraceSeconds    int    `toml:"stop_grace_seconds"`
	SnapshotWidth       int    `toml:"snapshot_width"`
	SnapshotHeight      int    `toml:"snapshot_height"`
	SimulatedChunkBytes int    `toml:"simulated_chunk_bytes"`
}

// Preflight contains the resource floors checked before a recording starts.
type Preflight struct {
	MinFreeBytes           uint64 `toml:"min_free_bytes"`
	BatteryCriticalPercent int    `toml:"battery_critical_percent"`
	SelfTestSeconds        int    `toml:"self_test_seconds"`
}

// Mesh contains the static peer topology.
type Mesh struct {
	Port               int               `toml:"port"`
	PeerTimeoutSeconds int               `toml:"peer_timeout_seconds"`
	Topology           map[string]string `toml:"topology"`
}

// Network contains NetworkManager connection names used for uplink changes.
type Network struct {
	Interface             string `toml:"interface"`
	ClientConnection      string `toml:"client_connection"`
	HotspotConnection     string `toml:"hotspot_connection"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	Beacon                bool   `toml:"beacon"`
}

// API contains the node HTTP surface settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Station contains central ingest and stitching settings.
type Station struct {
	Bind                   string   `toml:"bind"`
	RawDir                 string   `toml:"raw_dir"`
	OutputDir              string   `toml:"output_dir"`
	EventsDir              string   `toml:"events_dir"`
	Nodes                  []string `toml:"nodes"`
	VerifyChecksums        bool     `toml:"verify_checksums"`
	ScanIntervalSeconds    int      `toml:"scan_interval_seconds"`
	ListTimeoutSeconds     int      `toml:"list_timeout_seconds"`
	DownloadTimeoutSeconds int      `toml:"download_timeout_seconds"`
	StitchIdleSeconds      int      `toml:"stitch_idle_seconds"`
	StitchMaxAttempts      int      `toml:"stitch_max_attempts"`
	RequiredRoles          []string `toml:"required_roles"`
	OutputWidth            int      `toml:"output_width"`
	FFmpegBinary           string   `toml:"ffmpeg_binary"`
	WatchRawDir            bool     `toml:"watch_raw_dir"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for pitchcam.
//
// Configuration sections by subsystem:
//   - Paths: recordings, snapshots, state and logs
//   - Node: camera role and hardware mode
//   - Capture, Preflight: recording parameters and resource floors
//   - Mesh, Network, API: peer topology, uplink handling, node HTTP surface
//   - Station: ingest and stitching on the aggregation host
//   - Notifications, Logging
type Config struct {
	Paths         Paths         `toml:"paths"`
	Node          Node          `toml:"node"`
	Capture       Capture       `toml:"capture"`
	Preflight     Preflight     `toml:"preflight"`
	Mesh          Mesh          `toml:"mesh"`
	Network       Network       `toml:"network"`
	API           API           `toml:"api"`
	Station       Station       `toml:"station"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadEnvFile(filepath.Join(filepath.Dir(resolvedPath), envFileName)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile applies an optional dotenv file without overriding variables
// already present in the environment.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pitchcam.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureNodeDirectories creates the directories a camera node writes to.
func (c *Config) EnsureNodeDirectories() error {
	return ensureDirs(c.Paths.RecordingsDir, c.Paths.SnapshotDir, c.Paths.StateDir, c.Paths.LogDir)
}

// EnsureStationDirectories creates the directories the station writes to.
func (c *Config) EnsureStationDirectories() error {
	return ensureDirs(c.Station.RawDir, c.Station.OutputDir, c.Station.EventsDir, c.Paths.StateDir, c.Paths.LogDir)
}

func ensureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the single-instance lock file for a daemon role.
func (c *Config) LockPath(role string) string {
	return filepath.Join(c.Paths.StateDir, role+".lock")
}

// LedgerPath returns the station SQLite ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "station.db")
}

// Save writes the configuration back to path as TOML. Used when the node
// settings endpoint edits capture parameters.
func (c *Config) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
