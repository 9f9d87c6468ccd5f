package hotplug

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"pitchcam/internal/logging"
)

func TestBuildMatcher(t *testing.T) {
	matcher := buildMatcher()
	cases := []struct {
		name  string
		event netlink.UEvent
		want  bool
	}{
		{"camera added", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "video4linux"}}, true},
		{"camera removed", netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "video4linux"}}, true},
		{"battery change", netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"SUBSYSTEM": "power_supply"}}, true},
		{"block device", netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}, false},
	}
	for _, tc := range cases {
		if got := matcher.Evaluate(tc.event); got != tc.want {
			t.Errorf("%s: Evaluate = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestHandleEventClassifies(t *testing.T) {
	var got []Event
	m := New(logging.NewNop(), func(_ context.Context, e Event) { got = append(got, e) })

	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.CHANGE,
		Env:    map[string]string{"SUBSYSTEM": "power_supply", "POWER_SUPPLY_NAME": "BAT0"},
	})
	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"SUBSYSTEM": "video4linux", "DEVPATH": "/devices/platform/video0"},
	})
	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"SUBSYSTEM": "usb"},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 classified events, got %+v", got)
	}
	if got[0].Kind != KindPower || got[0].Device != "BAT0" || got[0].Action != "change" {
		t.Fatalf("unexpected power event %+v", got[0])
	}
	if got[1].Kind != KindCamera || got[1].Device != "video0" {
		t.Fatalf("unexpected camera event %+v", got[1])
	}
}

func TestNilAndUnstartedMonitorAreSafe(t *testing.T) {
	var nilMonitor *Monitor
	nilMonitor.Stop()
	if nilMonitor.Running() {
		t.Fatal("nil monitor must not report running")
	}
	if err := nilMonitor.Start(context.Background()); err != nil {
		t.Fatalf("nil Start: %v", err)
	}

	m := New(logging.NewNop(), nil)
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("unstarted monitor must not report running")
	}
}
