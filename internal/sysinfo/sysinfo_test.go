package sysinfo_test

import (
	"context"
	"path/filepath"
	"testing"

	"pitchcam/internal/sysinfo"
	"pitchcam/internal/testsupport"
)

func writeSupply(t *testing.T, dir, name string, files map[string]string) {
	t.Helper()
	for file, content := range files {
		testsupport.WriteString(t, filepath.Join(dir, name, file), content+"\n")
	}
}

func TestHostBatteryReadsSysfs(t *testing.T) {
	dir := t.TempDir()
	writeSupply(t, dir, "BAT0", map[string]string{"type": "Battery", "capacity": "42", "status": "Discharging"})

	host := sysinfo.NewHost()
	host.PowerSupplyDir = dir
	got := host.Battery(context.Background())
	if got.Percent != 42 || got.Charging {
		t.Fatalf("unexpected battery %+v", got)
	}

	writeSupply(t, dir, "AC", map[string]string{"type": "Mains", "online": "1"})
	if cached := host.Battery(context.Background()); cached.Charging {
		t.Fatal("expected cached reading until invalidated")
	}
	host.Invalidate()
	if got := host.Battery(context.Background()); !got.Charging || got.Percent != 42 {
		t.Fatalf("expected mains to count as charging, got %+v", got)
	}
}

func TestHostBatteryUnknownWhenAbsent(t *testing.T) {
	host := sysinfo.NewHost()
	host.PowerSupplyDir = filepath.Join(t.TempDir(), "missing")
	if got := host.Battery(context.Background()); got.Percent != 0 {
		t.Fatalf("expected unknown battery, got %+v", got)
	}
}

func TestDiskReportsFreeSpace(t *testing.T) {
	usage, err := sysinfo.Disk(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Disk: %v", err)
	}
	if usage.TotalBytes == 0 || usage.FreeBytes > usage.TotalBytes {
		t.Fatalf("implausible usage %+v", usage)
	}
}

func TestFreeGBRounds(t *testing.T) {
	usage := sysinfo.DiskUsage{FreeBytes: 3 * 1024 * 1024 * 1024 / 2}
	if usage.FreeGB() != 1.5 {
		t.Fatalf("expected 1.5, got %v", usage.FreeGB())
	}
}

func TestSimulatedValues(t *testing.T) {
	sim := sysinfo.NewSimulated()
	if sim.TemperatureC(context.Background()) != 45.5 {
		t.Fatal("unexpected simulated temperature")
	}
	if b := sim.Battery(context.Background()); b.Percent != 95 || b.Charging {
		t.Fatalf("unexpected simulated battery %+v", b)
	}
}
