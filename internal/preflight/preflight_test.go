package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pitchcam/internal/deps"
	"pitchcam/internal/services"
	"pitchcam/internal/sysinfo"
	"pitchcam/internal/testsupport"
)

type fakeInfo struct {
	free    uint64
	diskErr error
	battery sysinfo.Battery
}

func (f fakeInfo) Disk(context.Context, string) (sysinfo.DiskUsage, error) {
	return sysinfo.DiskUsage{FreeBytes: f.free, TotalBytes: f.free * 2}, f.diskErr
}
func (f fakeInfo) TemperatureC(context.Context) float64    { return 0 }
func (f fakeInfo) Battery(context.Context) sysinfo.Battery { return f.battery }

func newChecker(info fakeInfo) *Checker {
	return &Checker{Dir: "/tmp", MinFreeBytes: 1 << 30, BatteryCritical: 10, Info: info}
}

func TestCheckRejectsLowDisk(t *testing.T) {
	err := newChecker(fakeInfo{free: 512 << 20}).Check(context.Background())
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if !strings.Contains(err.Error(), "512 MiB") || !strings.Contains(err.Error(), "536870912 bytes") {
		t.Fatalf("expected exact free space in message, got %q", err)
	}
}

func TestCheckBatteryRules(t *testing.T) {
	cases := []struct {
		name    string
		battery sysinfo.Battery
		wantErr bool
	}{
		{"unknown battery never blocks", sysinfo.Battery{Percent: 0}, false},
		{"charging never blocks", sysinfo.Battery{Percent: 3, Charging: true}, false},
		{"critical discharging blocks", sysinfo.Battery{Percent: 5}, true},
		{"threshold itself passes", sysinfo.Battery{Percent: 10}, false},
		{"healthy passes", sysinfo.Battery{Percent: 80}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := newChecker(fakeInfo{free: 10 << 30, battery: tc.battery}).Check(context.Background())
			if tc.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v got %v", tc.wantErr, err)
			}
			if err != nil && !errors.Is(err, services.ErrPrecondition) {
				t.Fatalf("expected precondition marker, got %v", err)
			}
		})
	}
}

func TestDiskReadErrorFails(t *testing.T) {
	result := newChecker(fakeInfo{diskErr: errors.New("boom")}).Disk(context.Background())
	if result.Passed {
		t.Fatal("expected failure when disk usage is unavailable")
	}
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %#v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestDependencyResults(t *testing.T) {
	results := DependencyResults([]deps.Status{
		{Name: "ok", Command: "/bin/ok", Available: true},
		{Name: "opt", Optional: true, Detail: "binary \"x\" not found"},
		{Name: "req", Detail: "binary \"y\" not found"},
	})
	if !results[0].Passed || !results[1].Passed || results[2].Passed {
		t.Fatalf("unexpected results %#v", results)
	}
	if !strings.HasPrefix(results[1].Detail, "optional:") {
		t.Fatalf("expected optional note, got %q", results[1].Detail)
	}
}

func TestRunNodeSimulated(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunNode(context.Background(), cfg, sysinfo.NewSimulated())
	if len(results) != 4 {
		t.Fatalf("expected 4 results in simulated mode, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Fatalf("expected %s to pass, got %s", r.Name, r.Detail)
		}
	}
}

func TestRunStationReportsMissingFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Station.FFmpegBinary = "definitely-not-ffmpeg"
	results := RunStation(context.Background(), cfg)
	last := results[len(results)-1]
	if last.Passed {
		t.Fatalf("expected ffmpeg check to fail, got %#v", last)
	}
}
