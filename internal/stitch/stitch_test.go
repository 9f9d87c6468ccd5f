package stitch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"pitchcam/internal/fileutil"
	"pitchcam/internal/integrity"
	"pitchcam/internal/ledger"
	"pitchcam/internal/logging"
	"pitchcam/internal/notifications"
	"pitchcam/internal/services"
	"pitchcam/internal/sysexec"
	"pitchcam/internal/testsupport"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		name    string
		ok      bool
		session string
		role    string
	}{
		{"G1_CAM_L_20260101_120000.mp4", true, "G1", "CAM_L"},
		{"G1_CAM-L_20260101_120000.mp4", true, "G1", "CAM_L"},
		{"match_7_cam_r_20260101_120000.mkv", true, "match_7", "CAM_R"},
		{"G1_CAM_C_20260101_120000.H265", true, "G1", "CAM_C"},
		{"G1_CAM_L_20260101_120000.mp4.bad", false, "", ""},
		{"G1_CAM_L_20260101_120000.mp4.part", false, "", ""},
		{"G1_CAM_L.json", false, "", ""},
		{"G1_CAM_L_2026_120000.mp4", false, "", ""},
		{"random.mp4", false, "", ""},
	}
	for _, tc := range cases {
		rec, ok := ParseName(tc.name)
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v, want %v", tc.name, ok, tc.ok)
		}
		if ok && (rec.SessionID != tc.session || rec.Role != tc.role) {
			t.Fatalf("%s: parsed %+v", tc.name, rec)
		}
	}
}

func writeRole(t *testing.T, raw, session, role string, manifest bool) {
	t.Helper()
	testsupport.WriteString(t, filepath.Join(raw, session+"_"+role+"_20260101_120000.mp4"), "video-"+role)
	if manifest {
		testsupport.WriteString(t, filepath.Join(raw, integrity.ManifestName(session, role)), "{}")
	}
}

func writeSession(t *testing.T, raw, session string) {
	t.Helper()
	for _, role := range []string{"CAM_L", "CAM_C", "CAM_R"} {
		writeRole(t, raw, session, role, true)
	}
}

func TestScanSessionsRequiresManifest(t *testing.T) {
	raw := t.TempDir()
	writeRole(t, raw, "G1", "CAM_L", true)
	writeRole(t, raw, "G1", "CAM_C", true)
	writeRole(t, raw, "G1", "CAM_R", false)
	writeSession(t, raw, "G2")

	sessions, err := ScanSessions(raw, []string{"CAM_L", "CAM_C", "CAM_R"})
	if err != nil {
		t.Fatalf("ScanSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	roles := []string{"CAM_L", "CAM_C", "CAM_R"}
	if sessions[0].ID != "G1" || sessions[0].Complete(roles) {
		t.Fatalf("G1 should be incomplete without the CAM_R manifest: %+v", sessions[0])
	}
	if !sessions[1].Complete(roles) {
		t.Fatalf("G2 should be complete: %+v", sessions[1])
	}
	ordered := sessions[1].Ordered(roles)
	if !strings.Contains(ordered[0], "CAM_L") || !strings.Contains(ordered[2], "CAM_R") {
		t.Fatalf("inputs not in role order: %v", ordered)
	}
}

func TestScanSessionsFindsManifestUnderRawRole(t *testing.T) {
	raw := t.TempDir()
	writeRole(t, raw, "match_7", "cam_l", true)
	writeRole(t, raw, "match_7", "cam-c", true)
	writeRole(t, raw, "match_7", "CAM_R", true)

	sessions, err := ScanSessions(raw, []string{"CAM_L", "CAM_C", "CAM_R"})
	if err != nil {
		t.Fatalf("ScanSessions: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].Complete([]string{"CAM_L", "CAM_C", "CAM_R"}) {
		t.Fatalf("lower-case camera ids should still match their manifests: %+v", sessions)
	}
}

func TestFFmpegMuxerCommand(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "G1"+OutputSuffix)
	runner := sysexec.NewRecorder()
	runner.Hook = func(_ context.Context, call sysexec.Call) (sysexec.Response, bool) {
		target := call.Args[len(call.Args)-1]
		if err := os.WriteFile(target, []byte("mp4"), 0o644); err != nil {
			return sysexec.Response{Err: err}, true
		}
		return sysexec.Response{}, true
	}
	muxer := &FFmpegMuxer{Binary: "ffmpeg", Width: 3840, Runner: runner}

	if err := muxer.Mux(context.Background(), []string{"l.mp4", "c.mp4", "r.mp4"}, output); err != nil {
		t.Fatalf("Mux: %v", err)
	}
	want := "ffmpeg -y -i l.mp4 -i c.mp4 -i r.mp4 -filter_complex [0:v][1:v][2:v]hstack=inputs=3,scale=3840:-1[v] -map [v] -c:v libx264 -preset ultrafast -crf 23 -g 30 -movflags +faststart -f mp4 " + output + fileutil.PartialSuffix
	if lines := runner.Lines(); len(lines) != 1 || lines[0] != want {
		t.Fatalf("unexpected command:\n got %v\nwant %s", lines, want)
	}
	if !fileutil.Exists(output) || fileutil.Exists(output+fileutil.PartialSuffix) {
		t.Fatal("output should be renamed into place")
	}
}

func TestFFmpegMuxerFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "G1"+OutputSuffix)
	runner := sysexec.NewRecorder()
	runner.Hook = func(_ context.Context, call sysexec.Call) (sysexec.Response, bool) {
		_ = os.WriteFile(call.Args[len(call.Args)-1], []byte("half"), 0o644)
		return sysexec.Response{Err: &sysexec.ExitError{Command: "ffmpeg", Code: 1, Output: "Invalid data"}}, true
	}
	muxer := &FFmpegMuxer{Binary: "ffmpeg", Runner: runner}

	err := muxer.Mux(context.Background(), []string{"l.mp4", "c.mp4"}, output)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if fileutil.Exists(output) || fileutil.Exists(output+fileutil.PartialSuffix) {
		t.Fatal("failed mux must not leave output or partial files")
	}
	if err := muxer.Mux(context.Background(), []string{"l.mp4"}, output); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for one input, got %v", err)
	}
}

type fakeMuxer struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	// interrupt, when set, is called mid-encode as a shutdown would.
	interrupt context.CancelFunc
}

func (m *fakeMuxer) Mux(ctx context.Context, inputs []string, output string) error {
	m.mu.Lock()
	m.calls = append(m.calls, inputs)
	err := m.err
	interrupt := m.interrupt
	m.mu.Unlock()
	if interrupt != nil {
		interrupt()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	return os.WriteFile(output, []byte("stitched"), 0o644)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

type harness struct {
	raw      string
	out      string
	muxer    *fakeMuxer
	ledger   *ledger.Store
	notifier *recordingNotifier
	service  *Service
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		raw:      t.TempDir(),
		out:      t.TempDir(),
		muxer:    &fakeMuxer{},
		ledger:   testsupport.MustOpenLedger(t, cfg),
		notifier: &recordingNotifier{},
	}
	h.service = New(Options{
		RawDir:      h.raw,
		OutputDir:   h.out,
		MaxAttempts: maxAttempts,
	}, h.muxer, h.ledger, h.notifier, nil, logging.NewNop())
	return h
}

func TestServiceStitchesCompleteSession(t *testing.T) {
	h := newHarness(t, 5)
	ctx := context.Background()
	writeSession(t, h.raw, "G1")
	writeRole(t, h.raw, "G2", "CAM_L", true)

	if err := h.service.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if status := h.service.Status(); status.QueueLength != 1 {
		t.Fatalf("expected one queued session, got %+v", status)
	}
	if !h.service.ProcessNext(ctx) {
		t.Fatal("expected a job to run")
	}
	if h.service.ProcessNext(ctx) {
		t.Fatal("queue should be empty")
	}
	if !fileutil.Exists(OutputPath(h.out, "G1")) {
		t.Fatal("expected stitched output")
	}
	if len(h.muxer.calls) != 1 || len(h.muxer.calls[0]) != 3 {
		t.Fatalf("unexpected mux calls %v", h.muxer.calls)
	}
	job, err := h.ledger.Get(ctx, "G1")
	if err != nil || job == nil || job.Status != ledger.JobDone || job.Attempts != 1 {
		t.Fatalf("unexpected ledger row %+v %v", job, err)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0] != notifications.EventStitchCompleted {
		t.Fatalf("expected completion notification, got %v", h.notifier.events)
	}

	if err := h.service.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if status := h.service.Status(); status.QueueLength != 0 || status.Done != 1 {
		t.Fatalf("stitched session must not be requeued: %+v", status)
	}
}

func TestExistingOutputIsNeverReprocessed(t *testing.T) {
	h := newHarness(t, 5)
	writeSession(t, h.raw, "G1")
	testsupport.WriteString(t, OutputPath(h.out, "G1"), "done earlier")

	if err := h.service.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if h.service.ProcessNext(context.Background()) {
		t.Fatal("session with an existing output must not be queued")
	}
}

func TestScanDoesNotDuplicateQueuedSession(t *testing.T) {
	h := newHarness(t, 5)
	writeSession(t, h.raw, "G1")
	writeSession(t, h.raw, "G2")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.service.ScanOnce(ctx); err != nil {
			t.Fatalf("ScanOnce: %v", err)
		}
	}
	if status := h.service.Status(); status.QueueLength != 2 {
		t.Fatalf("expected 2 queued sessions, got %+v", status)
	}
	h.service.ProcessNext(ctx)
	if got := filepath.Base(h.muxer.calls[0][0]); !strings.HasPrefix(got, "G1_") {
		t.Fatalf("queue is not FIFO, first job used %s", got)
	}
}

func TestRepeatedFailureDeadLettersUntilRetry(t *testing.T) {
	h := newHarness(t, 2)
	h.muxer.err = services.Wrap(services.ErrExternalTool, "stitch", "mux", "ffmpeg failed", nil)
	writeSession(t, h.raw, "G1")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := h.service.ScanOnce(ctx); err != nil {
			t.Fatalf("ScanOnce: %v", err)
		}
		if !h.service.ProcessNext(ctx) {
			t.Fatalf("attempt %d: expected the failed session to be rediscovered", i+1)
		}
	}
	if err := h.service.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if h.service.ProcessNext(ctx) {
		t.Fatal("dead-lettered session must be skipped")
	}
	status := h.service.Status()
	if len(status.DeadLettered) != 1 || status.DeadLettered[0] != "G1" {
		t.Fatalf("expected G1 dead-lettered, got %+v", status)
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0] != notifications.EventStitchDeadLettered {
		t.Fatalf("expected dead-letter notification, got %v", h.notifier.events)
	}

	h.muxer.err = nil
	ok, err := h.service.Retry(ctx, "G1")
	if err != nil || !ok {
		t.Fatalf("Retry: %v %v", ok, err)
	}
	if len(h.service.Status().DeadLettered) != 0 {
		t.Fatal("retry should clear the dead letter")
	}
	if err := h.service.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if !h.service.ProcessNext(ctx) || !fileutil.Exists(OutputPath(h.out, "G1")) {
		t.Fatal("retried session should stitch")
	}
	if _, err := h.service.Retry(ctx, " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestShutdownInterruptionsDoNotCountTowardDeadLetter(t *testing.T) {
	h := newHarness(t, 2)
	writeSession(t, h.raw, "G1")

	for i := 0; i < 4; i++ {
		if err := h.service.ScanOnce(context.Background()); err != nil {
			t.Fatalf("ScanOnce: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		h.muxer.interrupt = cancel
		if !h.service.ProcessNext(ctx) {
			t.Fatalf("run %d: expected the interrupted session to be rediscovered", i+1)
		}
		cancel()
	}
	job, err := h.ledger.Get(context.Background(), "G1")
	if err != nil || job == nil {
		t.Fatalf("Get: %+v %v", job, err)
	}
	if job.Status != ledger.JobQueued || job.Attempts != 0 {
		t.Fatalf("interrupted runs must not consume attempts: %+v", job)
	}

	h.muxer.interrupt = nil
	h.muxer.err = services.Wrap(services.ErrExternalTool, "stitch", "mux", "ffmpeg failed", nil)
	if err := h.service.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	h.service.ProcessNext(context.Background())
	job, _ = h.ledger.Get(context.Background(), "G1")
	if job.Status != ledger.JobFailed || job.Attempts != 1 {
		t.Fatalf("first genuine failure should be attempt 1, got %+v", job)
	}
	if len(h.service.Status().DeadLettered) != 0 || len(h.notifier.events) != 0 {
		t.Fatalf("session dead-lettered too early: %+v %v", h.service.Status(), h.notifier.events)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.service.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
