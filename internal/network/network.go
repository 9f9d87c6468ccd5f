// Package network manages the node's Wi-Fi uplink through NetworkManager.
//
// Connect always leaves the node reachable: any failure, timeout or panic on
// the client-mode path falls through to bringing up the hotspot connection.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pitchcam/internal/api"
	"pitchcam/internal/audio"
	"pitchcam/internal/beacon"
	"pitchcam/internal/config"
	"pitchcam/internal/logging"
	"pitchcam/internal/services"
	"pitchcam/internal/sysexec"
)

// Connect outcomes.
const (
	StatusConnected = "connected"
	StatusAPMode    = "ap_mode"
	StatusFailed    = "failed"
)

// hotspotTimeout bounds the fallback independently of the caller.
const hotspotTimeout = 20 * time.Second

// Service is the uplink contract used by the node API.
type Service interface {
	Connect(ctx context.Context, ssid, psk string) (Result, error)
	EnableAPMode(ctx context.Context) error
	Status(ctx context.Context) (api.NetworkStatus, error)
}

// Result is the outcome of Connect.
type Result struct {
	Status string
	APMode bool
}

// Manager drives nmcli.
type Manager struct {
	cfg    config.Network
	runner sysexec.Runner
	player audio.Player
	beacon beacon.Beacon
	logger *slog.Logger

	mu     sync.Mutex
	apMode bool
}

// NewManager builds the hardware network service.
func NewManager(cfg config.Network, runner sysexec.Runner, player audio.Player, b beacon.Beacon, logger *slog.Logger) *Manager {
	if runner == nil {
		runner = sysexec.CommandRunner{}
	}
	if b == nil {
		b = beacon.Disabled{}
	}
	return &Manager{cfg: cfg, runner: runner, player: player, beacon: b, logger: logging.NewComponentLogger(logger, "network")}
}

// ValidateCredentials rejects requests before any network change is made.
func ValidateCredentials(ssid, psk string) error {
	if strings.TrimSpace(ssid) == "" {
		return services.Wrap(services.ErrValidation, "network", "connect", "ssid is required", nil)
	}
	if len(ssid) > 32 {
		return services.Wrap(services.ErrValidation, "network", "connect", "ssid must be at most 32 bytes", nil)
	}
	if psk != "" && (len(psk) < 8 || len(psk) > 63) {
		return services.Wrap(services.ErrValidation, "network", "connect", "psk must be 8 to 63 characters", nil)
	}
	return nil
}

// Connect joins ssid in client mode. On any failure the hotspot fallback
// runs and the returned error carries the original cause.
func (m *Manager) Connect(ctx context.Context, ssid, psk string) (result Result, err error) {
	if err := ValidateCredentials(ssid, psk); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("connecting to wifi", logging.String("ssid", ssid))
	audio.Async(m.player, audio.Switching, m.logger)

	connected := false
	defer func() {
		if connected {
			return
		}
		cause := err
		if cause == nil {
			cause = errors.New("client connection aborted")
		}
		result = m.fallbackLocked(cause)
		if err == nil {
			err = services.Wrap(services.ErrTransient, "network", "connect", ssid, cause)
		}
	}()

	timeout := time.Duration(m.cfg.ConnectTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := m.cfg.ClientConnection
	if _, delErr := m.runner.Run(connectCtx, "nmcli", "con", "delete", client); delErr != nil {
		m.logger.Debug("no previous client connection", logging.Error(delErr))
	}
	if _, err = m.runner.Run(connectCtx, "nmcli", "con", "add", "type", "wifi", "ifname", m.cfg.Interface, "con-name", client, "ssid", ssid); err != nil {
		err = services.Wrap(services.ErrExternalTool, "network", "add connection", client, err)
		return Result{}, err
	}
	if psk != "" {
		if _, err = m.runner.Run(connectCtx, "nmcli", "con", "modify", client, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", psk); err != nil {
			err = services.Wrap(services.ErrExternalTool, "network", "set credentials", client, err)
			return Result{}, err
		}
	}
	if _, err = m.runner.Run(connectCtx, "nmcli", "con", "up", client); err != nil {
		if connectCtx.Err() != nil {
			err = services.Wrap(services.ErrTimeout, "network", "connect", fmt.Sprintf("no connection after %s", timeout), err)
		} else {
			err = services.Wrap(services.ErrExternalTool, "network", "connect", client, err)
		}
		return Result{}, err
	}

	connected = true
	m.apMode = false
	m.setBeacon(beacon.StatusHome)
	audio.Async(m.player, audio.Success, m.logger)
	m.logger.Info("wifi connected",
		logging.String("ssid", ssid),
		logging.String(logging.FieldEventType, "network_connected"),
	)
	return Result{Status: StatusConnected}, nil
}

// fallbackLocked brings up the hotspot with a fresh context.
func (m *Manager) fallbackLocked(cause error) Result {
	logging.WarnWithContext(m.logger, "wifi connection failed; reverting to hotspot", "network_fallback",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check ssid and passphrase, then retry from the hotspot"),
		logging.String(logging.FieldImpact, "node reachable only through its hotspot"),
	)
	audio.Async(m.player, audio.Error, m.logger)
	if err := m.hotspotLocked(); err != nil {
		return Result{Status: StatusFailed}
	}
	return Result{Status: StatusAPMode, APMode: true}
}

// EnableAPMode switches to the hotspot connection.
func (m *Manager) EnableAPMode(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hotspotLocked()
}

func (m *Manager) hotspotLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), hotspotTimeout)
	defer cancel()
	if _, err := m.runner.Run(ctx, "nmcli", "con", "up", m.cfg.HotspotConnection); err != nil {
		logging.ErrorWithContext(m.logger, "hotspot failed to start", "network_ap_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the hotspot connection profile in NetworkManager"),
		)
		m.setBeacon(beacon.StatusErr)
		return services.Wrap(services.ErrExternalTool, "network", "enable ap", m.cfg.HotspotConnection, err)
	}
	m.apMode = true
	m.setBeacon(beacon.StatusAP)
	m.logger.Info("hotspot active", logging.String(logging.FieldEventType, "network_ap_mode"))
	return nil
}

// Status reports the active connection and first address.
func (m *Manager) Status(ctx context.Context) (api.NetworkStatus, error) {
	m.mu.Lock()
	ap := m.apMode
	m.mu.Unlock()

	out, err := m.runner.Run(ctx, "nmcli", "-t", "-f", "NAME", "connection", "show", "--active")
	if err != nil {
		return api.NetworkStatus{APMode: ap}, services.Wrap(services.ErrExternalTool, "network", "status", "nmcli", err)
	}
	status := api.NetworkStatus{SSID: firstActive(string(out)), APMode: ap}
	if status.SSID == m.cfg.HotspotConnection {
		status.APMode = true
	}
	if ipOut, err := m.runner.Run(ctx, "hostname", "-I"); err == nil {
		if fields := strings.Fields(string(ipOut)); len(fields) > 0 {
			status.IP = fields[0]
		}
	}
	return status, nil
}

func firstActive(output string) string {
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || name == "lo" {
			continue
		}
		return name
	}
	return ""
}

func (m *Manager) setBeacon(status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.beacon.Set(ctx, status); err != nil {
		m.logger.Debug("beacon update failed", logging.String("status", status), logging.Error(err))
	}
}
