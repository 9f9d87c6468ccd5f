package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"pitchcam/internal/logging"
	"pitchcam/internal/services"
	"pitchcam/internal/sysexec"
)

const stderrTailBytes = 2048

// RpicamOptions tunes the hardware backend.
type RpicamOptions struct {
	StopGrace      time.Duration
	SnapshotWidth  int
	SnapshotHeight int
	// VideoBinary and JPEGBinary default to rpicam-vid and rpicam-jpeg.
	VideoBinary string
	JPEGBinary  string
}

// Rpicam records with rpicam-vid and snapshots with rpicam-jpeg.
type Rpicam struct {
	opts   RpicamOptions
	runner sysexec.Runner
	logger *slog.Logger

	mu   sync.Mutex
	proc *process
}

type process struct {
	cmd    *exec.Cmd
	path   string
	stderr *tailBuffer
	done   chan struct{}
	err    error
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// NewRpicam returns the hardware backend.
func NewRpicam(runner sysexec.Runner, opts RpicamOptions, logger *slog.Logger) *Rpicam {
	if runner == nil {
		runner = sysexec.CommandRunner{}
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.SnapshotWidth <= 0 {
		opts.SnapshotWidth = 1920
	}
	if opts.SnapshotHeight <= 0 {
		opts.SnapshotHeight = 1080
	}
	if opts.VideoBinary == "" {
		opts.VideoBinary = "rpicam-vid"
	}
	if opts.JPEGBinary == "" {
		opts.JPEGBinary = "rpicam-jpeg"
	}
	return &Rpicam{opts: opts, runner: runner, logger: logging.NewComponentLogger(logger, "camera")}
}

// Capabilities implements Driver. rpicam apps hold the sensor exclusively.
func (r *Rpicam) Capabilities() Capabilities {
	return Capabilities{Backend: BackendRpicam, ExclusiveCapture: true}
}

// Recording implements Driver.
func (r *Rpicam) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc != nil && !r.proc.exited()
}

// RecordArgs renders the rpicam-vid argument list. A zero timeout records
// until signalled.
func RecordArgs(path string, opts CaptureOptions) []string {
	codec := opts.Codec
	if codec == "" {
		codec = "h265"
	}
	return []string{
		"-o", path,
		"--width", strconv.Itoa(opts.Width),
		"--height", strconv.Itoa(opts.Height),
		"--framerate", strconv.Itoa(opts.FPS),
		"--bitrate", strconv.Itoa(opts.Bitrate),
		"--codec", codec,
		"--nopreview",
		"--timeout", "0",
	}
}

// Start implements Driver. The capture process outlives ctx.
func (r *Rpicam) Start(_ context.Context, path string, opts CaptureOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc != nil && !r.proc.exited() {
		logging.WarnWithContext(r.logger, "recording already in progress; ignoring start", "camera_start_ignored",
			logging.String("active_file", r.proc.path),
			logging.String("requested_file", path),
			logging.String(logging.FieldErrorHint, "check recorder status before starting"),
			logging.String(logging.FieldImpact, "existing recording continues"),
		)
		return nil
	}

	args := RecordArgs(path, opts)
	cmd := exec.Command(r.opts.VideoBinary, args...)
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stdout = stderr
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "camera", "start", r.opts.VideoBinary, err)
	}
	proc := &process{cmd: cmd, path: path, stderr: stderr, done: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		close(proc.done)
	}()
	r.proc = proc
	r.logger.Info("capture process started",
		logging.String("file", path),
		logging.Int("pid", cmd.Process.Pid),
		logging.String("command", sysexec.Call{Name: r.opts.VideoBinary, Args: args}.String()),
	)
	return nil
}

// Stop implements Driver. The process gets SIGTERM and the grace period to
// finalize the container before it is killed.
func (r *Rpicam) Stop(ctx context.Context) (StopResult, error) {
	r.mu.Lock()
	proc := r.proc
	r.proc = nil
	r.mu.Unlock()
	if proc == nil {
		return StopResult{}, nil
	}

	if proc.exited() {
		if proc.err != nil {
			return StopResult{WasRecording: true}, services.Wrap(services.ErrExternalTool, "camera", "stop",
				fmt.Sprintf("capture process exited early: %s", proc.stderr.String()), proc.err)
		}
		return StopResult{WasRecording: true}, nil
	}

	result := StopResult{WasRecording: true}
	if err := proc.cmd.Process.Signal(unix.SIGTERM); err != nil {
		r.logger.Debug("sigterm failed", logging.Error(err))
	}
	timer := time.NewTimer(r.opts.StopGrace)
	defer timer.Stop()
	select {
	case <-proc.done:
		r.logger.Info("capture process stopped", logging.String("file", proc.path))
		return result, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	result.Forced = true
	_ = proc.cmd.Process.Kill()
	<-proc.done
	logging.WarnWithContext(r.logger, "capture process killed after grace period", "camera_stop_forced",
		logging.String("file", proc.path),
		logging.Duration("grace", r.opts.StopGrace),
		logging.String(logging.FieldErrorHint, "recording tail may be truncated"),
		logging.String(logging.FieldImpact, "manifest still written for the captured data"),
	)
	return result, nil
}

// Snapshot implements Driver.
func (r *Rpicam) Snapshot(ctx context.Context, path string) error {
	if r.Recording() {
		return services.Wrap(services.ErrConflict, "camera", "snapshot", "camera busy recording", nil)
	}
	args := []string{
		"-o", path,
		"--width", strconv.Itoa(r.opts.SnapshotWidth),
		"--height", strconv.Itoa(r.opts.SnapshotHeight),
		"--nopreview",
		"--timeout", "1000",
	}
	if _, err := r.runner.Run(ctx, r.opts.JPEGBinary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "camera", "snapshot", r.opts.JPEGBinary, err)
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sysexec.Tail(string(t.buf), t.max)
}
