package preflight

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"pitchcam/internal/config"
	"pitchcam/internal/deps"
	"pitchcam/internal/services"
	"pitchcam/internal/sysinfo"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Checker enforces the resource floors that gate a recording.
type Checker struct {
	Dir             string
	MinFreeBytes    uint64
	BatteryCritical int
	Info            sysinfo.Reader
}

// NewChecker builds a Checker from configuration.
func NewChecker(cfg *config.Config, info sysinfo.Reader) *Checker {
	return &Checker{
		Dir:             cfg.Paths.RecordingsDir,
		MinFreeBytes:    cfg.Preflight.MinFreeBytes,
		BatteryCritical: cfg.Preflight.BatteryCriticalPercent,
		Info:            info,
	}
}

// Check returns an ErrPrecondition error when recording must not start.
func (c *Checker) Check(ctx context.Context) error {
	if disk := c.Disk(ctx); !disk.Passed {
		return services.Wrap(services.ErrPrecondition, "preflight", "disk", disk.Detail, nil)
	}
	if battery := c.Battery(ctx); !battery.Passed {
		return services.Wrap(services.ErrPrecondition, "preflight", "battery", battery.Detail, nil)
	}
	return nil
}

// Disk checks free space on the recordings filesystem against the floor.
func (c *Checker) Disk(ctx context.Context) Result {
	const name = "Disk space"
	usage, err := c.Info.Disk(ctx, c.Dir)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unable to read disk usage: %v", err)}
	}
	if usage.FreeBytes < c.MinFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf(
			"insufficient disk space: %s free (%d bytes), need at least %s",
			humanize.IBytes(usage.FreeBytes), usage.FreeBytes, humanize.IBytes(c.MinFreeBytes),
		)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", humanize.IBytes(usage.FreeBytes))}
}

// Battery rejects only a known, critical, discharging battery. A percentage
// of 0 means no battery was detected.
func (c *Checker) Battery(ctx context.Context) Result {
	const name = "Battery"
	reading := c.Info.Battery(ctx)
	switch {
	case reading.Percent == 0:
		return Result{Name: name, Passed: true, Detail: "no battery detected"}
	case reading.Charging:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d%% (charging)", reading.Percent)}
	case reading.Percent < c.BatteryCritical:
		return Result{Name: name, Detail: fmt.Sprintf(
			"battery critical: %d%% and not charging (minimum %d%%)", reading.Percent, c.BatteryCritical,
		)}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d%%", reading.Percent)}
	}
}

// RunNode executes every node readiness check.
func RunNode(ctx context.Context, cfg *config.Config, info sysinfo.Reader) []Result {
	if cfg == nil {
		return nil
	}
	checker := NewChecker(cfg, info)
	results := []Result{
		CheckDirectoryAccess("Recordings directory", cfg.Paths.RecordingsDir),
		CheckDirectoryAccess("Snapshot directory", cfg.Paths.SnapshotDir),
		checker.Disk(ctx),
		checker.Battery(ctx),
	}
	return append(results, DependencyResults(deps.CheckBinaries(deps.NodeRequirements(cfg)))...)
}

// RunStation executes every station readiness check.
func RunStation(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Raw directory", cfg.Station.RawDir),
		CheckDirectoryAccess("Output directory", cfg.Station.OutputDir),
		CheckDirectoryAccess("Events directory", cfg.Station.EventsDir),
	}
	return append(results, DependencyResults(deps.CheckBinaries(deps.StationRequirements(cfg)))...)
}
