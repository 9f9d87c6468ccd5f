package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"os"
	"sync"
	"time"

	"pitchcam/internal/fileutil"
	"pitchcam/internal/logging"
)

// Simulated grows a file of zeros while "recording".
type Simulated struct {
	chunk    int
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	active *simRecording
}

type simRecording struct {
	path string
	stop chan struct{}
	done chan struct{}
	err  error
}

// NewSimulated returns the development backend.
func NewSimulated(chunkBytes int, interval time.Duration, logger *slog.Logger) *Simulated {
	if chunkBytes <= 0 {
		chunkBytes = 1024 * 1024
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulated{chunk: chunkBytes, interval: interval, logger: logging.NewComponentLogger(logger, "camera")}
}

// Capabilities implements Driver.
func (s *Simulated) Capabilities() Capabilities {
	return Capabilities{Backend: BackendSimulated}
}

// Recording implements Driver.
func (s *Simulated) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Start implements Driver.
func (s *Simulated) Start(_ context.Context, path string, _ CaptureOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		logging.WarnWithContext(s.logger, "simulated recording already in progress; ignoring start", "camera_start_ignored",
			logging.String("active_file", s.active.path),
			logging.String(logging.FieldImpact, "existing recording continues"),
		)
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create simulated recording: %w", err)
	}
	rec := &simRecording{path: path, stop: make(chan struct{}), done: make(chan struct{})}
	go s.grow(f, rec)
	s.active = rec
	s.logger.Info("simulated capture started", logging.String("file", path))
	return nil
}

func (s *Simulated) grow(f *os.File, rec *simRecording) {
	defer close(rec.done)
	defer func() {
		if err := f.Close(); err != nil && rec.err == nil {
			rec.err = err
		}
	}()
	chunk := make([]byte, s.chunk)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := f.Write(chunk); err != nil {
			rec.err = err
			return
		}
		select {
		case <-rec.stop:
			return
		case <-ticker.C:
		}
	}
}

// Stop implements Driver.
func (s *Simulated) Stop(context.Context) (StopResult, error) {
	s.mu.Lock()
	rec := s.active
	s.active = nil
	s.mu.Unlock()
	if rec == nil {
		return StopResult{}, nil
	}
	close(rec.stop)
	<-rec.done
	if rec.err != nil {
		return StopResult{WasRecording: true}, fmt.Errorf("simulated recording %s: %w", rec.path, rec.err)
	}
	s.logger.Info("simulated capture stopped", logging.String("file", rec.path))
	return StopResult{WasRecording: true}, nil
}

// Snapshot implements Driver by encoding a small test card.
func (s *Simulated) Snapshot(_ context.Context, path string) error {
	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for y := 0; y < 36; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: 140, B: uint8(y * 7), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}
