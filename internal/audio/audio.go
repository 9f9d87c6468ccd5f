// Package audio plays the short tone patterns operators hear on the field:
// a sync beep when recording starts and cues for network transitions.
// Cues are informational; callers never wait on them.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"pitchcam/internal/logging"
	"pitchcam/internal/sysexec"
)

// Pattern names a cue.
type Pattern string

const (
	Sync      Pattern = "sync"
	Switching Pattern = "switching"
	Success   Pattern = "success"
	Error     Pattern = "error"
)

// asyncTimeout bounds a fire-and-forget cue.
const asyncTimeout = 5 * time.Second

type tone struct {
	freq    int
	repeats int
}

var patterns = map[Pattern]tone{
	Sync:      {freq: 1000, repeats: 1},
	Switching: {freq: 800, repeats: 1},
	Success:   {freq: 1200, repeats: 3},
	Error:     {freq: 400, repeats: 1},
}

// Player emits cues.
type Player interface {
	Play(ctx context.Context, pattern Pattern) error
}

// SpeakerTest plays sine tones through ALSA's speaker-test.
type SpeakerTest struct {
	runner sysexec.Runner
}

// NewSpeakerTest returns a hardware Player.
func NewSpeakerTest(runner sysexec.Runner) *SpeakerTest {
	if runner == nil {
		runner = sysexec.CommandRunner{}
	}
	return &SpeakerTest{runner: runner}
}

// Play implements Player.
func (p *SpeakerTest) Play(ctx context.Context, pattern Pattern) error {
	t, ok := patterns[pattern]
	if !ok {
		return fmt.Errorf("unknown audio pattern %q", pattern)
	}
	for i := 0; i < t.repeats; i++ {
		if _, err := p.runner.Run(ctx, "speaker-test", "-t", "sine", "-f", strconv.Itoa(t.freq), "-l", "1", "-s", "1"); err != nil {
			return fmt.Errorf("play %s cue: %w", pattern, err)
		}
	}
	return nil
}

// Logged stands in for a speaker in simulated mode.
type Logged struct {
	logger *slog.Logger
}

// NewLogged returns a Player that only logs.
func NewLogged(logger *slog.Logger) *Logged {
	return &Logged{logger: logging.NewComponentLogger(logger, "audio")}
}

// Play implements Player.
func (p *Logged) Play(_ context.Context, pattern Pattern) error {
	p.logger.Debug("audio cue", logging.String("pattern", string(pattern)))
	return nil
}

// Async plays a cue in the background with a bounded timeout. Failures are
// logged and otherwise ignored. The returned channel closes when playback ends.
func Async(player Player, pattern Pattern, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if player == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()
		if err := player.Play(ctx, pattern); err != nil {
			logging.WarnWithContext(logger, "audio cue failed", "audio_cue_failed",
				logging.String("pattern", string(pattern)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check speaker-test and ALSA output device"),
				logging.String(logging.FieldImpact, "no audible cue; operation continues"),
			)
		}
	}()
	return done
}
