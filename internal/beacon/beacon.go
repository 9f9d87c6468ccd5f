// Package beacon advertises a node's network state in its Bluetooth name,
// e.g. "CAM_L-AP", so an operator can see it with a phone even when the
// node has no IP connectivity.
package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pitchcam/internal/logging"
	"pitchcam/internal/sysexec"
)

// Advertised states.
const (
	StatusHome = "HOME"
	StatusAP   = "AP"
	StatusErr  = "ERR"
)

// Beacon publishes a short state string.
type Beacon interface {
	Set(ctx context.Context, status string) error
}

// Bluetooth sets the adapter alias with bluetoothctl.
type Bluetooth struct {
	runner sysexec.Runner
	nodeID string
	logger *slog.Logger
}

// NewBluetooth returns the hardware beacon.
func NewBluetooth(runner sysexec.Runner, nodeID string, logger *slog.Logger) *Bluetooth {
	if runner == nil {
		runner = sysexec.CommandRunner{}
	}
	return &Bluetooth{runner: runner, nodeID: nodeID, logger: logging.NewComponentLogger(logger, "beacon")}
}

// Alias renders the advertised name.
func Alias(nodeID, status string) string {
	return nodeID + "-" + status
}

// Set implements Beacon.
func (b *Bluetooth) Set(ctx context.Context, status string) error {
	alias := Alias(b.nodeID, status)
	if _, err := b.runner.Run(ctx, "bluetoothctl", "system-alias", alias); err != nil {
		return fmt.Errorf("set bluetooth alias: %w", err)
	}
	if _, err := b.runner.Run(ctx, "bluetoothctl", "discoverable", "on"); err != nil {
		return fmt.Errorf("enable bluetooth discoverable: %w", err)
	}
	b.logger.Info("beacon updated", logging.String("alias", alias))
	return nil
}

// Logged records the state in memory and logs it.
type Logged struct {
	nodeID string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

// NewLogged returns the simulated beacon.
func NewLogged(nodeID string, logger *slog.Logger) *Logged {
	return &Logged{nodeID: nodeID, logger: logging.NewComponentLogger(logger, "beacon")}
}

// Set implements Beacon.
func (l *Logged) Set(_ context.Context, status string) error {
	l.mu.Lock()
	l.last = status
	l.mu.Unlock()
	l.logger.Info("beacon updated (simulated)", logging.String("alias", Alias(l.nodeID, status)))
	return nil
}

// Last returns the most recently advertised state.
func (l *Logged) Last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Disabled ignores every update.
type Disabled struct{}

// Set implements Beacon.
func (Disabled) Set(context.Context, string) error { return nil }
