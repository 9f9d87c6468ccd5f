package daemonrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"pitchcam/internal/beacon"
	"pitchcam/internal/config"
	"pitchcam/internal/hotplug"
	"pitchcam/internal/logging"
	"pitchcam/internal/sysexec"
	"pitchcam/internal/sysinfo"
	"pitchcam/internal/testsupport"
)

func cancelled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestRunNodeExitsOnCancelAndWritesRunLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := RunNode(cancelled(), cfg, Options{LogLevel: "error"}); err != nil {
		t.Fatalf("RunNode: %v", err)
	}
	logs, _ := filepath.Glob(filepath.Join(cfg.Paths.LogDir, "node-*.log"))
	if len(logs) != 1 {
		t.Fatalf("expected one run log, got %v", logs)
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "node.log")); err != nil {
		t.Fatalf("expected node.log pointer: %v", err)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureNodeDirectories(); err != nil {
		t.Fatalf("EnsureNodeDirectories: %v", err)
	}
	held := flock.New(cfg.LockPath("node"))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer held.Unlock()

	err := RunNode(cancelled(), cfg, Options{LogLevel: "error"})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestRunStationExitsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Station.Nodes = nil
	if err := RunStation(cancelled(), cfg, Options{LogLevel: "error"}); err != nil {
		t.Fatalf("RunStation: %v", err)
	}
	if _, err := os.Stat(cfg.LedgerPath()); err != nil {
		t.Fatalf("expected ledger to be created: %v", err)
	}
}

func TestBuildNodeServicesSimulated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := BuildNodeServices(cfg, config.ModeSimulated, sysexec.NewRecorder(), logging.NewNop())
	if svc.Driver.Capabilities().ExclusiveCapture {
		t.Fatal("simulated driver must not claim exclusive capture")
	}
	if _, ok := svc.Beacon.(*beacon.Logged); !ok {
		t.Fatalf("expected logged beacon, got %T", svc.Beacon)
	}
	if _, ok := svc.Info.(*sysinfo.Simulated); !ok {
		t.Fatalf("expected simulated sysinfo, got %T", svc.Info)
	}
}

type countingInfo struct {
	sysinfo.Simulated
	invalidated int
}

func (c *countingInfo) Invalidate() { c.invalidated++ }

func TestHotplugPowerEventInvalidatesBattery(t *testing.T) {
	info := &countingInfo{}
	handler := nodeHotplugHandler(logging.NewNop(), info, nil)
	handler(context.Background(), hotplug.Event{Kind: hotplug.KindPower, Action: "change", Device: "BAT0"})
	if info.invalidated != 1 {
		t.Fatalf("expected battery cache invalidation, got %d", info.invalidated)
	}
}
