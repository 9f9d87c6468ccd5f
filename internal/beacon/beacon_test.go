package beacon_test

import (
	"context"
	"errors"
	"testing"

	"pitchcam/internal/beacon"
	"pitchcam/internal/logging"
	"pitchcam/internal/sysexec"
)

func TestBluetoothSetsAliasThenDiscoverable(t *testing.T) {
	rec := sysexec.NewRecorder()
	if err := beacon.NewBluetooth(rec, "CAM_L", logging.NewNop()).Set(context.Background(), beacon.StatusAP); err != nil {
		t.Fatalf("Set: %v", err)
	}
	lines := rec.Lines()
	if len(lines) != 2 || lines[0] != "bluetoothctl system-alias CAM_L-AP" || lines[1] != "bluetoothctl discoverable on" {
		t.Fatalf("unexpected calls %v", lines)
	}
}

func TestBluetoothAliasFailureStops(t *testing.T) {
	rec := sysexec.NewRecorder().On("bluetoothctl system-alias", sysexec.Response{Err: errors.New("no adapter")})
	if err := beacon.NewBluetooth(rec, "CAM_R", logging.NewNop()).Set(context.Background(), beacon.StatusHome); err == nil {
		t.Fatal("expected error")
	}
	if len(rec.Calls()) != 1 {
		t.Fatalf("expected discoverable to be skipped, got %v", rec.Lines())
	}
}

func TestLoggedRemembersLastState(t *testing.T) {
	l := beacon.NewLogged("CAM_C", logging.NewNop())
	_ = l.Set(context.Background(), beacon.StatusErr)
	if l.Last() != beacon.StatusErr {
		t.Fatalf("unexpected last state %q", l.Last())
	}
}
