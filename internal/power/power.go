// Package power performs node shutdown and reboot.
package power

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pitchcam/internal/logging"
	"pitchcam/internal/sysexec"
)

// Controller powers the node off or restarts it.
type Controller interface {
	Shutdown(ctx context.Context) error
	Reboot(ctx context.Context) error
}

// System runs shutdown/reboot through sudo.
type System struct {
	runner sysexec.Runner
	logger *slog.Logger
}

// NewSystem returns the hardware power controller.
func NewSystem(runner sysexec.Runner, logger *slog.Logger) *System {
	if runner == nil {
		runner = sysexec.CommandRunner{}
	}
	return &System{runner: runner, logger: logging.NewComponentLogger(logger, "power")}
}

// Shutdown implements Controller.
func (s *System) Shutdown(ctx context.Context) error {
	s.logger.Info("powering off", logging.String(logging.FieldEventType, "power_shutdown"))
	if _, err := s.runner.Run(ctx, "sudo", "shutdown", "-h", "now"); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Reboot implements Controller.
func (s *System) Reboot(ctx context.Context) error {
	s.logger.Info("rebooting", logging.String(logging.FieldEventType, "power_reboot"))
	if _, err := s.runner.Run(ctx, "sudo", "reboot"); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}

// Logged only logs power actions.
type Logged struct {
	logger *slog.Logger
}

// NewLogged returns the simulated power controller.
func NewLogged(logger *slog.Logger) *Logged {
	return &Logged{logger: logging.NewComponentLogger(logger, "power")}
}

// Shutdown implements Controller.
func (l *Logged) Shutdown(context.Context) error {
	l.logger.Info("shutdown requested (simulated)")
	return nil
}

// Reboot implements Controller.
func (l *Logged) Reboot(context.Context) error {
	l.logger.Info("reboot requested (simulated)")
	return nil
}

// After runs action in the background once delay has passed, giving the HTTP
// reply time to reach the caller.
func After(delay time.Duration, logger *slog.Logger, action func(context.Context) error) {
	go func() {
		time.Sleep(delay)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := action(ctx); err != nil {
			logging.ErrorWithContext(logger, "power action failed", "power_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check sudoers allows shutdown and reboot"),
			)
		}
	}()
}
