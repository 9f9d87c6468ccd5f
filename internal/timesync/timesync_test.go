package timesync_test

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"pitchcam/internal/logging"
	"pitchcam/internal/sysexec"
	"pitchcam/internal/timesync"
)

const trackingOutput = `Reference ID    : C0A80101 (router.lan)
Stratum         : 3
Ref time (UTC)  : Sat Oct 17 10:00:00 2026
System time     : 0.000001234 seconds fast of NTP time
Last offset     : +0.000012345 seconds
RMS offset      : 0.000020000 seconds
`

func TestParseTrackingOffset(t *testing.T) {
	got, ok := timesync.ParseTrackingOffset(trackingOutput)
	if !ok {
		t.Fatal("expected offset to parse")
	}
	if got != 0.012 {
		t.Fatalf("expected 0.012 ms, got %v", got)
	}

	negative, ok := timesync.ParseTrackingOffset("Last offset     : -0.002500000 seconds\n")
	if !ok || negative != -2.5 {
		t.Fatalf("expected -2.5 ms, got %v %v", negative, ok)
	}

	if _, ok := timesync.ParseTrackingOffset("Stratum : 3\n"); ok {
		t.Fatal("expected missing line to fail")
	}
}

func TestChronyStatuses(t *testing.T) {
	cases := []struct {
		name   string
		resp   sysexec.Response
		status string
		offset float64
	}{
		{"synced", sysexec.Response{Output: trackingOutput}, timesync.StatusSynced, 0.012},
		{"unknown", sysexec.Response{Output: "506 Cannot talk to daemon"}, timesync.StatusUnknown, 0},
		{"missing", sysexec.Response{Err: &exec.Error{Name: "chronyc", Err: exec.ErrNotFound}}, timesync.StatusNoChrony, 0},
		{"error", sysexec.Response{Err: errors.New("boom")}, timesync.StatusError, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := sysexec.NewRecorder().On("chronyc tracking", tc.resp)
			reading := timesync.NewChrony(rec, logging.NewNop()).Read(context.Background())
			if reading.Status != tc.status || reading.OffsetMS != tc.offset {
				t.Fatalf("unexpected reading %+v", reading)
			}
		})
	}
}

func TestSimulatedSource(t *testing.T) {
	reading := timesync.Simulated{}.Read(context.Background())
	if reading.OffsetMS != 0.02 || reading.Status != timesync.StatusMockSynced {
		t.Fatalf("unexpected simulated reading %+v", reading)
	}
}
