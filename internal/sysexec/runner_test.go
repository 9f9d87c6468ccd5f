package sysexec_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pitchcam/internal/sysexec"
)

func TestCommandRunnerReportsExitStatus(t *testing.T) {
	_, err := sysexec.CommandRunner{}.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	var exitErr *sysexec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 || !strings.Contains(exitErr.Output, "broken") {
		t.Fatalf("unexpected exit error: %+v", exitErr)
	}
}

func TestCommandRunnerMissingBinary(t *testing.T) {
	_, err := sysexec.CommandRunner{}.Run(context.Background(), "pitchcam-definitely-missing")
	if !sysexec.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestRecorderMatchesLongestPrefix(t *testing.T) {
	rec := sysexec.NewRecorder().
		On("nmcli", sysexec.Response{Output: "generic"}).
		On("nmcli con up Hotspot", sysexec.Response{Output: "hotspot"})

	out, _ := rec.Run(context.Background(), "nmcli", "con", "up", "Hotspot")
	if string(out) != "hotspot" {
		t.Fatalf("expected longest prefix match, got %q", out)
	}
	out, _ = rec.Run(context.Background(), "nmcli", "con", "delete", "HomeWifi")
	if string(out) != "generic" {
		t.Fatalf("expected generic match, got %q", out)
	}
	if got := rec.Lines(); len(got) != 2 || got[1] != "nmcli con delete HomeWifi" {
		t.Fatalf("unexpected recorded lines: %v", got)
	}
}

func TestTail(t *testing.T) {
	if got := sysexec.Tail("  abcdef  ", 3); got != "...def" {
		t.Fatalf("unexpected tail: %q", got)
	}
	if got := sysexec.Tail("abc", 10); got != "abc" {
		t.Fatalf("unexpected tail: %q", got)
	}
}
