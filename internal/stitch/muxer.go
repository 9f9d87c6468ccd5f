package stitch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"pitchcam/internal/fileutil"
	"pitchcam/internal/services"
	"pitchcam/internal/sysexec"
)

// Muxer combines per-camera inputs into one output file.
type Muxer interface {
	Mux(ctx context.Context, inputs []string, output string) error
}

// FFmpegMuxer tiles inputs side by side with ffmpeg's hstack filter and
// scales the result to Width so the output stays playable.
type FFmpegMuxer struct {
	Binary string
	Width  int
	Runner sysexec.Runner
}

// NewFFmpegMuxer returns a muxer using the system ffmpeg.
func NewFFmpegMuxer(binary string, width int) *FFmpegMuxer {
	return &FFmpegMuxer{Binary: binary, Width: width, Runner: sysexec.CommandRunner{}}
}

// Args renders the ffmpeg argument list for inputs and target.
func (m *FFmpegMuxer) Args(inputs []string, target string) []string {
	width := m.Width
	if width <= 0 {
		width = 3840
	}
	args := []string{"-y"}
	var labels strings.Builder
	for i, input := range inputs {
		args = append(args, "-i", input)
		fmt.Fprintf(&labels, "[%d:v]", i)
	}
	filter := fmt.Sprintf("%shstack=inputs=%d,scale=%d:-1[v]", labels.String(), len(inputs), width)
	return append(args,
		"-filter_complex", filter,
		"-map", "[v]",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "23",
		"-g", "30",
		"-movflags", "+faststart",
		"-f", "mp4",
		target,
	)
}

// Mux writes to output+".part" and renames it into place only when ffmpeg
// succeeds, so output never names a partial file.
func (m *FFmpegMuxer) Mux(ctx context.Context, inputs []string, output string) error {
	if len(inputs) < 2 {
		return services.Wrap(services.ErrValidation, "stitch", "mux", "at least two inputs are required", nil)
	}
	binary := m.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	runner := m.Runner
	if runner == nil {
		runner = sysexec.CommandRunner{}
	}

	part := output + fileutil.PartialSuffix
	_ = os.Remove(part)
	if _, err := runner.Run(ctx, binary, m.Args(inputs, part)...); err != nil {
		_ = os.Remove(part)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if sysexec.IsNotFound(err) {
			return services.Wrap(services.ErrConfiguration, "stitch", "mux", binary+" not found", err)
		}
		return services.Wrap(services.ErrExternalTool, "stitch", "mux", binary+" failed", err)
	}
	if !fileutil.Exists(part) {
		return services.Wrap(services.ErrExternalTool, "stitch", "mux", binary+" produced no output", nil)
	}
	if err := os.Rename(part, output); err != nil {
		_ = os.Remove(part)
		return services.Wrap(services.ErrTransient, "stitch", "mux", "rename output", err)
	}
	return nil
}
