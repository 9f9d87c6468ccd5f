// Package daemonrun bootstraps the long-running pitchcam processes: the
// camera node daemon and the aggregation station daemon. It owns process
// concerns only (signals, per-run log files, log retention, the
// single-instance lock and dependency snapshots) and wires the services
// each role needs.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"pitchcam/internal/config"
	"pitchcam/internal/deps"
	"pitchcam/internal/logging"
)

// ErrAlreadyRunning is returned when another daemon of the same role holds
// the lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// ConfigPath is where node settings edits are persisted.
	ConfigPath string
}

// runtime is the process scaffolding shared by both roles.
type runtime struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	logPath string
	runID   string
	lock    *flock.Flock
}

func (r *runtime) close() {
	if r.lock != nil {
		_ = r.lock.Unlock()
	}
	r.cancel()
}

func start(cmdCtx context.Context, cfg *config.Config, role string, opts Options, dirs func() error) (*runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := dirs(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	lock := flock.New(cfg.LockPath(role))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s lock held at %s", ErrAlreadyRunning, role, cfg.LockPath(role))
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("%s-%s.log", role, runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		cancel()
		_ = lock.Unlock()
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", runID))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, role, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s.log link: %v\n", role, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: role + "-*.log", Exclude: []string{logPath}},
	)

	return &runtime{
		ctx:     signalCtx,
		cancel:  cancel,
		logger:  logger,
		logPath: logPath,
		runID:   runID,
		lock:    lock,
	}, nil
}

// ensureCurrentLogPointer keeps {role}.log pointing at the active run log.
func ensureCurrentLogPointer(logDir, role, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, role+".log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func logDependencySnapshot(logger *slog.Logger, requirements []deps.Requirement) {
	statuses := deps.CheckBinaries(requirements)
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(status.Command+"_available", status.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	for _, status := range statuses {
		if !status.Missing() {
			continue
		}
		logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", status.Name),
			logging.String("command", status.Command),
			logging.String(logging.FieldErrorHint, status.Description),
			logging.String(logging.FieldImpact, "features relying on it will fail"),
		)
	}
}
