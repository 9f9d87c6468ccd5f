// Package timesync reports the node clock offset against the reference time
// source so manifests can be aligned across cameras.
package timesync

import (
	"bufio"
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"pitchcam/internal/logging"
	"pitchcam/internal/sysexec"
)

// Sync states reported alongside the offset.
const (
	StatusSynced     = "synced"
	StatusUnknown    = "unknown"
	StatusNoChrony   = "no_chrony"
	StatusError      = "error"
	StatusMockSynced = "mock_synced"
)

const queryTimeout = time.Second

// Reading is one offset observation.
type Reading struct {
	OffsetMS float64
	Status   string
}

// Source yields clock offset readings.
type Source interface {
	Read(ctx context.Context) Reading
	OffsetMS(ctx context.Context) float64
}

// Chrony queries chronyd through chronyc.
type Chrony struct {
	runner sysexec.Runner
	logger *slog.Logger
}

// NewChrony returns a chrony-backed source.
func NewChrony(runner sysexec.Runner, logger *slog.Logger) *Chrony {
	if runner == nil {
		runner = sysexec.CommandRunner{}
	}
	return &Chrony{runner: runner, logger: logging.NewComponentLogger(logger, "timesync")}
}

// Read runs `chronyc tracking` with a short timeout. The offset is zero
// unless the status is synced.
func (c *Chrony) Read(ctx context.Context) Reading {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	out, err := c.runner.Run(ctx, "chronyc", "tracking")
	if err != nil {
		if sysexec.IsNotFound(err) {
			return Reading{Status: StatusNoChrony}
		}
		c.logger.Debug("chronyc tracking failed", logging.Error(err))
		return Reading{Status: StatusError}
	}
	offset, ok := ParseTrackingOffset(string(out))
	if !ok {
		return Reading{Status: StatusUnknown}
	}
	return Reading{OffsetMS: offset, Status: StatusSynced}
}

// OffsetMS implements integrity.OffsetSource.
func (c *Chrony) OffsetMS(ctx context.Context) float64 {
	return c.Read(ctx).OffsetMS
}

// ParseTrackingOffset extracts the "Last offset" line of chronyc tracking
// output, converted to milliseconds and rounded to three decimals.
func ParseTrackingOffset(output string) (float64, bool) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "Last offset") {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			return 0, false
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return 0, false
		}
		seconds, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, false
		}
		return math.Round(seconds*1000*1000) / 1000, true
	}
	return 0, false
}

// Simulated is the development stand-in.
type Simulated struct{}

// Read implements Source.
func (Simulated) Read(context.Context) Reading {
	return Reading{OffsetMS: 0.02, Status: StatusMockSynced}
}

// OffsetMS implements integrity.OffsetSource.
func (s Simulated) OffsetMS(ctx context.Context) float64 {
	return s.Read(ctx).OffsetMS
}
