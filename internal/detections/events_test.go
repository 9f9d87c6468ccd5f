package detections

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendReadAndSummarize(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(dir, "G1")
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	events := []Event{
		{Timestamp: 0.0, Frame: 0, Players: 18},
		{Timestamp: 0.5, Frame: 15, Players: 21, BallDetected: true, Ball: &Ball{X: 1920, Y: 540}},
	}
	if err := w.Append(events...); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Append(Event{Timestamp: 1.0, Frame: 30, Players: 20, BallDetected: true, Ball: &Ball{X: 10, Y: 20}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !Exists(dir, "G1") || Exists(dir, "G2") {
		t.Fatal("Exists mismatch")
	}

	got, err := Read(LogPath(dir, "G1"), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 || got[1].Ball == nil || got[1].Ball.X != 1920 {
		t.Fatalf("unexpected events %+v", got)
	}
	summary := Summarize(got)
	if summary.Frames != 3 || summary.BallFrames != 2 || summary.MaxPlayers != 21 || summary.Last != 1.0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	limited, err := Read(LogPath(dir, "G1"), 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limit not applied: %d %v", len(limited), err)
	}
}

func TestReadIgnoresTrailingPartialLine(t *testing.T) {
	dir := t.TempDir()
	path := LogPath(dir, "G1")
	content := `{"timestamp":0,"frame":0,"players":5,"ball_detected":false}` + "\n" + `{"timestamp":0.5,"fra`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(path, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 || got[0].Players != 5 {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestReadRejectsCorruptCompleteLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "G1"+Suffix)
	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Read(path, 0); err == nil {
		t.Fatal("expected error for corrupt line")
	}
}

func TestReadMissingLog(t *testing.T) {
	_, err := Read(LogPath(t.TempDir(), "nope"), 0)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}

func TestOpenWriterRejectsPathSessionIDs(t *testing.T) {
	if _, err := OpenWriter(t.TempDir(), "../x"); err == nil {
		t.Fatal("expected invalid session id error")
	}
}
