package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pitchcam/internal/logging"
)

// SelfTestResult reports an end-to-end capture check.
type SelfTestResult struct {
	Passed   bool
	Duration time.Duration
	File     string
	Bytes    int64
	Err      error
}

// SelfTest records for the configured duration, stops, verifies the output
// and manifest, then removes both. The driver is always forced back to a
// stopped state, even when the test fails midway.
func (c *Controller) SelfTest(ctx context.Context) SelfTestResult {
	began := c.now()
	sessionID := fmt.Sprintf("selftest-%d", began.Unix())

	c.mu.Lock()
	start, err := c.startLocked(ctx, sessionID, false)
	if err != nil {
		c.mu.Unlock()
		return c.selfTestFailed(SelfTestResult{Duration: c.now().Sub(began)}, err)
	}
	sess := c.active
	sess.selfTest = true
	c.mu.Unlock()

	result := SelfTestResult{File: start.File}
	videoPath := filepath.Join(c.opts.RecordingsDir, start.File)
	defer c.forceIdle(sessionID)

	timer := time.NewTimer(c.opts.SelfTestDuration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		result.Duration = c.now().Sub(began)
		return c.selfTestFailed(result, ctx.Err())
	case <-timer.C:
	}

	c.mu.Lock()
	sess.stopping = true
	c.mu.Unlock()
	stop, err := c.finish(context.WithoutCancel(ctx), sess)
	result.Duration = c.now().Sub(began)
	if err != nil {
		removeQuietly(videoPath)
		return c.selfTestFailed(result, err)
	}
	defer removeQuietly(videoPath)
	defer removeQuietly(stop.ManifestPath)

	info, err := os.Stat(videoPath)
	if err != nil {
		return c.selfTestFailed(result, fmt.Errorf("recording missing after stop: %w", err))
	}
	result.Bytes = info.Size()
	if result.Bytes == 0 {
		return c.selfTestFailed(result, errors.New("recording is empty"))
	}
	if stop.Manifest == nil || stop.Manifest.Checksum.Value == "" {
		return c.selfTestFailed(result, errors.New("manifest has no checksum"))
	}

	result.Passed = true
	c.logger.Info("self test passed",
		logging.Duration("duration", result.Duration),
		logging.Int64("bytes", result.Bytes),
		logging.String(logging.FieldEventType, "selftest_passed"),
	)
	return result
}

// forceIdle stops the driver if the given self-test session is still active.
func (c *Controller) forceIdle(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.id != sessionID {
		return
	}
	path := c.active.path
	c.active = nil
	if _, err := c.driver.Stop(context.Background()); err != nil {
		c.logger.Debug("forced self-test stop", logging.Error(err))
	}
	removeQuietly(path)
}

func (c *Controller) selfTestFailed(result SelfTestResult, err error) SelfTestResult {
	result.Err = err
	logging.ErrorWithContext(c.logger, "self test failed", "selftest_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run pitchcam node check for hardware readiness"),
	)
	return result
}

func removeQuietly(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
