// Package detections stores the per-frame detection events produced by the
// analysis stage for a stitched session. The log is append-only JSON Lines,
// one file per session, named after the stitched output it describes.
package detections

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Suffix is appended to the session id to form the log file name.
const Suffix = "_stitched_events.jsonl"

// Ball is the ball position in output-frame pixels.
type Ball struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is one analysed frame.
type Event struct {
	Timestamp    float64 `json:"timestamp"`
	Frame        int     `json:"frame"`
	Players      int     `json:"players"`
	BallDetected bool    `json:"ball_detected"`
	Ball         *Ball   `json:"ball,omitempty"`
}

// LogPath returns the event log location for a session.
func LogPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+Suffix)
}

// Exists reports whether a session has an event log.
func Exists(dir, sessionID string) bool {
	info, err := os.Stat(LogPath(dir, sessionID))
	return err == nil && !info.IsDir()
}

// Writer appends events to one session log.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// OpenWriter opens the session log for appending, creating it if needed.
func OpenWriter(dir, sessionID string) (*Writer, error) {
	if strings.TrimSpace(sessionID) == "" || strings.ContainsAny(sessionID, `/\`) {
		return nil, fmt.Errorf("invalid session id %q", sessionID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	f, err := os.OpenFile(LogPath(dir, sessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &Writer{file: f}, nil
}

// Append writes events as complete lines in a single write.
func (w *Writer) Append(events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, evt := range events {
		if err := enc.Encode(evt); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	return nil
}

// Close closes the log.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Read returns up to limit events from the log at path. A limit <= 0 reads
// everything. A trailing line without a newline is a write in progress and
// is ignored; a malformed complete line is an error.
func Read(path string, limit int) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("event log %s: %w", filepath.Base(path), fs.ErrNotExist)
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var events []Event
	for line := 1; limit <= 0 || len(events) < limit; line++ {
		raw, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return events, fmt.Errorf("read event log: %w", err)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return events, fmt.Errorf("event log line %d: %w", line, err)
		}
		events = append(events, evt)
	}
	return events, nil
}

// Summary aggregates a session's events.
type Summary struct {
	Frames     int     `json:"frames"`
	BallFrames int     `json:"ball_frames"`
	MaxPlayers int     `json:"max_players"`
	First      float64 `json:"first_timestamp"`
	Last       float64 `json:"last_timestamp"`
}

// Summarize counts frames and ball sightings and tracks the player peak.
func Summarize(events []Event) Summary {
	var s Summary
	for i, evt := range events {
		s.Frames++
		if evt.BallDetected {
			s.BallFrames++
		}
		s.MaxPlayers = max(s.MaxPlayers, evt.Players)
		if i == 0 || evt.Timestamp < s.First {
			s.First = evt.Timestamp
		}
		s.Last = max(s.Last, evt.Timestamp)
	}
	return s
}
