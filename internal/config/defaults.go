package config

const (
	defaultConfigPath       = "~/.config/pitchcam/config.toml"
	envFileName             = "pitchcam.env"
	defaultRecordingsDir    = "~/.local/share/pitchcam/recordings"
	defaultSnapshotDir      = "~/.local/share/pitchcam/snapshots"
	defaultStateDir         = "~/.local/share/pitchcam/state"
	defaultLogDir           = "~/.local/share/pitchcam/logs"
	defaultLogRetentionDays = 30
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"

	defaultNodeID = "CAM_C"

	defaultWidth               = 3840
	defaultHeight              = 2160
	defaultFPS                 = 30
	defaultBitrate             = 30000000
	defaultCodec               = "h265"
	defaultStopGraceSeconds    = 5
	defaultSnapshotWidth       = 1920
	defaultSnapshotHeight      = 1080
	defaultSimulatedChunkBytes = 1024 * 1024

	defaultMinFreeBytes           = 1 << 30
	defaultBatteryCriticalPercent = 10
	defaultSelfTestSeconds        = 10

	defaultMeshPort           = 8000
	defaultPeerTimeoutSeconds = 2

	defaultInterface             = "wlan0"
	defaultClientConnection      = "HomeWifi"
	defaultHotspotConnection     = "Hotspot"
	defaultConnectTimeoutSeconds = 30

	defaultAPIBind = "0.0.0.0:8000"

	defaultStationBind         = "0.0.0.0:8080"
	defaultRawDir              = "~/SoccerFootage/Injest"
	defaultOutputDir           = "~/SoccerFootage/Processed"
	defaultEventsDir           = "~/SoccerFootage/Events"
	defaultScanIntervalSeconds = 10
	defaultListTimeoutSeconds  = 3
	defaultStitchIdleSeconds   = 5
	defaultStitchMaxAttempts   = 5
	defaultOutputWidth         = 3840
	defaultFFmpegBinary        = "ffmpeg"

	defaultNotifyTimeout = 10
)

// Role names used in topology, filenames and stitching.
const (
	RoleLeft   = "CAM_L"
	RoleCenter = "CAM_C"
	RoleRight  = "CAM_R"
)

// Node modes.
const (
	ModeAuto      = "auto"
	ModeHardware  = "hardware"
	ModeSimulated = "simulated"
)

// DefaultRoles returns the complete role set in stitch order.
func DefaultRoles() []string {
	return []string{RoleLeft, RoleCenter, RoleRight}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			SnapshotDir:   defaultSnapshotDir,
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
		},
		Node: Node{
			ID:   defaultNodeID,
			Mode: ModeAuto,
		},
		Capture: Capture{
			Width:               defaultWidth,
			Height:              defaultHeight,
			FPS:                 defaultFPS,
			Bitrate:             defaultBitrate,
			Codec:               defaultCodec,
			StopGraceSeconds:    defaultStopGraceSeconds,
			SnapshotWidth:       defaultSnapshotWidth,
			SnapshotHeight:      defaultSnapshotHeight,
			SimulatedChunkBytes: defaultSimulatedChunkBytes,
		},
		Preflight: Preflight{
			MinFreeBytes:           defaultMinFreeBytes,
			BatteryCriticalPercent: defaultBatteryCriticalPercent,
			SelfTestSeconds:        defaultSelfTestSeconds,
		},
		Mesh: Mesh{
			Port:               defaultMeshPort,
			PeerTimeoutSeconds: defaultPeerTimeoutSeconds,
			Topology: map[string]string{
				RoleLeft:   "soccer-cam-l.local",
				RoleCenter: "soccer-cam-c.local",
				RoleRight:  "soccer-cam-r.local",
			},
		},
		Network: Network{
			Interface:             defaultInterface,
			ClientConnection:      defaultClientConnection,
			HotspotConnection:     defaultHotspotConnection,
			ConnectTimeoutSeconds: defaultConnectTimeoutSeconds,
			Beacon:                true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Station: Station{
			Bind:      defaultStationBind,
			RawDir:    defaultRawDir,
			OutputDir: defaultOutputDir,
			EventsDir: defaultEventsDir,
			Nodes: []string{
				"http://soccer-cam-l.local:8000",
				"http://soccer-cam-c.local:8000",
				"http://soccer-cam-r.local:8000",
			},
			VerifyChecksums:     true,
			ScanIntervalSeconds: defaultScanIntervalSeconds,
			ListTimeoutSeconds:  defaultListTimeoutSeconds,
			StitchIdleSeconds:   defaultStitchIdleSeconds,
			StitchMaxAttempts:   defaultStitchMaxAttempts,
			RequiredRoles:       DefaultRoles(),
			OutputWidth:         defaultOutputWidth,
			FFmpegBinary:        defaultFFmpegBinary,
			WatchRawDir:         true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
