// Package sysinfo reads the host resources that gate recording and appear in
// node status: disk space, SoC temperature and battery state.
package sysinfo

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/sensors"
)

const bytesPerGB = 1024 * 1024 * 1024

// DiskUsage summarizes the filesystem holding a path.
type DiskUsage struct {
	TotalBytes  uint64
	UsedBytes   uint64
	FreeBytes   uint64
	UsedPercent float64
}

// FreeGB returns free space in GiB rounded to two decimals.
func (d DiskUsage) FreeGB() float64 {
	return math.Round(float64(d.FreeBytes)/bytesPerGB*100) / 100
}

// Battery is a battery reading. Percent 0 means unknown.
type Battery struct {
	Percent  int
	Charging bool
}

// Reader exposes host resource readings.
type Reader interface {
	Disk(ctx context.Context, path string) (DiskUsage, error)
	TemperatureC(ctx context.Context) float64
	Battery(ctx context.Context) Battery
}

// Disk reads filesystem usage for path with gopsutil.
func Disk(ctx context.Context, path string) (DiskUsage, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return DiskUsage{
		TotalBytes:  usage.Total,
		UsedBytes:   usage.Used,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// Host reads real hardware.
type Host struct {
	// PowerSupplyDir defaults to /sys/class/power_supply.
	PowerSupplyDir string
	// ThermalZone defaults to /sys/class/thermal/thermal_zone0/temp.
	ThermalZone string

	mu      sync.Mutex
	battery *Battery
}

// NewHost returns a Reader for the local machine.
func NewHost() *Host {
	return &Host{
		PowerSupplyDir: "/sys/class/power_supply",
		ThermalZone:    "/sys/class/thermal/thermal_zone0/temp",
	}
}

// Disk implements Reader.
func (h *Host) Disk(ctx context.Context, path string) (DiskUsage, error) {
	return Disk(ctx, path)
}

// TemperatureC prefers a CPU/SoC sensor reported by gopsutil and falls back
// to the first thermal zone. Zero means unavailable.
func (h *Host) TemperatureC(ctx context.Context) float64 {
	if temps, err := sensors.TemperaturesWithContext(ctx); err == nil {
		for _, t := range temps {
			key := strings.ToLower(t.SensorKey)
			if t.Temperature > 0 && (strings.Contains(key, "cpu") || strings.Contains(key, "soc")) {
				return math.Round(t.Temperature*10) / 10
			}
		}
	}
	data, err := os.ReadFile(h.ThermalZone)
	if err != nil {
		return 0
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0
	}
	return math.Round(milli/100) / 10
}

// Battery reads the first battery under PowerSupplyDir. Readings are cached
// until Invalidate is called by the hotplug monitor.
func (h *Host) Battery(context.Context) Battery {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.battery != nil {
		return *h.battery
	}
	reading := readPowerSupply(h.PowerSupplyDir)
	h.battery = &reading
	return reading
}

// Invalidate drops the cached battery reading.
func (h *Host) Invalidate() {
	h.mu.Lock()
	h.battery = nil
	h.mu.Unlock()
}

func readPowerSupply(dir string) Battery {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Battery{}
	}
	var reading Battery
	var mainsOnline bool
	for _, entry := range entries {
		base := filepath.Join(dir, entry.Name())
		switch readTrimmed(filepath.Join(base, "type")) {
		case "Battery":
			if reading.Percent != 0 {
				continue
			}
			if pct, err := strconv.Atoi(readTrimmed(filepath.Join(base, "capacity"))); err == nil {
				reading.Percent = pct
			}
			switch readTrimmed(filepath.Join(base, "status")) {
			case "Charging", "Full":
				reading.Charging = true
			}
		case "Mains", "USB":
			if readTrimmed(filepath.Join(base, "online")) == "1" {
				mainsOnline = true
			}
		}
	}
	if mainsOnline {
		reading.Charging = true
	}
	return reading
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Simulated reports fixed development values while still measuring the real
// disk so preflight behaves realistically.
type Simulated struct {
	Temp float64
	Bat  Battery
}

// NewSimulated returns the development reader.
func NewSimulated() *Simulated {
	return &Simulated{Temp: 45.5, Bat: Battery{Percent: 95, Charging: false}}
}

// Disk implements Reader.
func (s *Simulated) Disk(ctx context.Context, path string) (DiskUsage, error) {
	return Disk(ctx, path)
}

// TemperatureC implements Reader.
func (s *Simulated) TemperatureC(context.Context) float64 { return s.Temp }

// Battery implements Reader.
func (s *Simulated) Battery(context.Context) Battery { return s.Bat }
