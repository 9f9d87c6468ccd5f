// Package deps describes the external binaries each pitchcam role shells out
// to and reports whether they can be found on PATH.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"pitchcam/internal/config"
)

// Requirement defines an external dependency a role relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Missing reports whether a required (non-optional) binary is absent.
func (s Status) Missing() bool {
	return !s.Available && !s.Optional
}

// NodeRequirements lists the binaries a camera node uses in hardware mode.
// Simulated nodes need none of them.
func NodeRequirements(cfg *config.Config) []Requirement {
	if cfg != nil && cfg.Node.Mode == config.ModeSimulated {
		return nil
	}
	return []Requirement{
		{Name: "rpicam-vid", Command: "rpicam-vid", Description: "Required for video capture"},
		{Name: "rpicam-jpeg", Command: "rpicam-jpeg", Description: "Required for snapshots"},
		{Name: "NetworkManager", Command: "nmcli", Description: "Required for uplink switching and hotspot fallback"},
		{Name: "chrony", Command: "chronyc", Description: "Reports clock offset for manifests", Optional: true},
		{Name: "speaker-test", Command: "speaker-test", Description: "Plays audible cues", Optional: true},
		{Name: "bluetoothctl", Command: "bluetoothctl", Description: "Advertises the network state beacon", Optional: true},
	}
}

// StationRequirements lists the binaries the aggregation station uses.
func StationRequirements(cfg *config.Config) []Requirement {
	ffmpeg := "ffmpeg"
	if cfg != nil && strings.TrimSpace(cfg.Station.FFmpegBinary) != "" {
		ffmpeg = strings.TrimSpace(cfg.Station.FFmpegBinary)
	}
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Required for panoramic stitching"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}
