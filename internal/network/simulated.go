package network

import (
	"context"
	"log/slog"
	"sync"

	"pitchcam/internal/api"
	"pitchcam/internal/audio"
	"pitchcam/internal/beacon"
	"pitchcam/internal/logging"
)

// Simulated pretends every connection succeeds.
type Simulated struct {
	player audio.Player
	beacon beacon.Beacon
	logger *slog.Logger

	mu     sync.Mutex
	ssid   string
	apMode bool
}

// NewSimulated returns the development network service.
func NewSimulated(player audio.Player, b beacon.Beacon, logger *slog.Logger) *Simulated {
	if b == nil {
		b = beacon.Disabled{}
	}
	return &Simulated{player: player, beacon: b, ssid: "MOCK_WIFI", logger: logging.NewComponentLogger(logger, "network")}
}

// Connect implements Service.
func (s *Simulated) Connect(ctx context.Context, ssid, psk string) (Result, error) {
	if err := ValidateCredentials(ssid, psk); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	s.ssid = ssid
	s.apMode = false
	s.mu.Unlock()
	_ = s.beacon.Set(ctx, beacon.StatusHome)
	audio.Async(s.player, audio.Success, s.logger)
	s.logger.Info("wifi connected (simulated)", logging.String("ssid", ssid))
	return Result{Status: StatusConnected}, nil
}

// EnableAPMode implements Service.
func (s *Simulated) EnableAPMode(ctx context.Context) error {
	s.mu.Lock()
	s.apMode = true
	s.mu.Unlock()
	_ = s.beacon.Set(ctx, beacon.StatusAP)
	s.logger.Info("hotspot active (simulated)")
	return nil
}

// Status implements Service.
func (s *Simulated) Status(context.Context) (api.NetworkStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return api.NetworkStatus{SSID: s.ssid, IP: "192.168.1.10", APMode: s.apMode}, nil
}
