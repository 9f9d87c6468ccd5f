package integrity_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pitchcam/internal/integrity"
	"pitchcam/internal/logging"
	"pitchcam/internal/testsupport"
)

type fixedOffset float64

func (f fixedOffset) OffsetMS(context.Context) float64 { return float64(f) }

func newStore(t *testing.T) (*integrity.Store, string) {
	t.Helper()
	dir := t.TempDir()
	identity := func() integrity.Identity {
		return integrity.Identity{CameraID: "CAM_C", Resolution: "3840x2160", FPS: 30, Codec: "h265", SoftwareVersion: "1.3.0"}
	}
	return integrity.NewStore(dir, identity, fixedOffset(12.5), logging.NewNop()), dir
}

func writeRecording(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testsupport.WriteString(t, path, content)
	return path
}

func TestComputeChecksumMatchesSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	testsupport.WriteFile(t, path, integrity.ChunkSize*3+17)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(data)

	got, err := integrity.ComputeChecksum(context.Background(), path)
	if err != nil {
		t.Fatalf("ComputeChecksum: %v", err)
	}
	if got.Algo != "sha256" || got.Value != hex.EncodeToString(want[:]) {
		t.Fatalf("unexpected checksum %+v", got)
	}
}

func TestComputeChecksumHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	testsupport.WriteFile(t, path, 1024)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := integrity.ComputeChecksum(ctx, path); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestCreateManifestPersistsAllFields(t *testing.T) {
	store, dir := newStore(t)
	video := writeRecording(t, dir, "G1_CAM_C_20260101_120000.mp4", "video-bytes")
	start := time.Unix(1767268800, 500_000_000)

	manifest, path, err := store.Create(context.Background(), integrity.RecordingInfo{
		SessionID:      "G1",
		FilePath:       video,
		StartTimeLocal: start,
		Duration:       90*time.Second + 1234*time.Millisecond,
		DroppedFrames:  2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if filepath.Base(path) != "G1_CAM_C.json" {
		t.Fatalf("unexpected manifest path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"session_id\"") {
		t.Fatalf("expected indented JSON, got %s", data)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"session_id", "camera_id", "file", "start_time_local", "start_time_master", "offset_ms", "duration", "resolution", "fps", "codec", "dropped_frames", "checksum", "offloaded", "software_version", "created_at"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("manifest missing %q: %s", key, data)
		}
	}
	if manifest.File != "G1_CAM_C_20260101_120000.mp4" || manifest.Offloaded {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	if manifest.StartTimeLocal != 1767268800.5 {
		t.Fatalf("unexpected local start %v", manifest.StartTimeLocal)
	}
	if want := 1767268800.5 - 0.0125; manifest.StartTimeMaster != want {
		t.Fatalf("unexpected master start %v want %v", manifest.StartTimeMaster, want)
	}
	if manifest.Duration != 91.234 || manifest.DroppedFrames != 2 {
		t.Fatalf("unexpected duration/drops %+v", manifest)
	}
	sum := sha256.Sum256([]byte("video-bytes"))
	if manifest.Checksum.Value != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected checksum %s", manifest.Checksum.Value)
	}
}

func TestMarkOffloadedRequiresManifestAndIsIdempotent(t *testing.T) {
	store, dir := newStore(t)

	ok, err := store.MarkOffloaded("missing", "CAM_C")
	if err != nil || ok {
		t.Fatalf("expected false without manifest, got %v %v", ok, err)
	}
	if _, err := os.Stat(store.Path("missing", "CAM_C")); !os.IsNotExist(err) {
		t.Fatal("MarkOffloaded must not create a manifest")
	}

	video := writeRecording(t, dir, "G2_CAM_C_20260101_120000.mp4", "x")
	if _, _, err := store.Create(context.Background(), integrity.RecordingInfo{SessionID: "G2", FilePath: video, StartTimeLocal: time.Now()}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 2; i++ {
		ok, err := store.MarkOffloaded("G2", "CAM_C")
		if err != nil || !ok {
			t.Fatalf("call %d: expected true, got %v %v", i, ok, err)
		}
	}
	loaded, err := store.Load("G2", "CAM_C")
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Offloaded {
		t.Fatal("expected offloaded flag persisted")
	}
}

func TestListOffloadableOnlyReturnsConfirmedRecordings(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()
	for _, sid := range []string{"A", "B"} {
		video := writeRecording(t, dir, sid+"_CAM_C_20260101_120000.mp4", sid)
		if _, _, err := store.Create(ctx, integrity.RecordingInfo{SessionID: sid, FilePath: video, StartTimeLocal: time.Now()}); err != nil {
			t.Fatalf("Create %s: %v", sid, err)
		}
	}
	if _, err := store.MarkOffloaded("B", "CAM_C"); err != nil {
		t.Fatal(err)
	}

	paths, err := store.ListOffloadable()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected video+manifest for B only, got %v", paths)
	}
	for _, p := range paths {
		if !strings.HasPrefix(filepath.Base(p), "B_") {
			t.Fatalf("unconfirmed artifact listed: %s", p)
		}
	}

	result, err := store.PurgeOffloaded()
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Deleted) != 2 || len(result.Errors) != 0 {
		t.Fatalf("unexpected purge result %+v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, "A_CAM_C_20260101_120000.mp4")); err != nil {
		t.Fatal("unconfirmed recording must survive cleanup")
	}
	files, err := store.Artifacts(".mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected A video and manifest to remain, got %v", files)
	}
}

func TestPurgeRemovesManifestByItsFileName(t *testing.T) {
	store, dir := newStore(t)
	video := writeRecording(t, dir, "G9_CAM_OLD_20260101_120000.mp4", "old")
	manifest := `{"session_id":"G9","camera_id":"CAM_OLD","file":"G9_CAM_OLD_20260101_120000.mp4","offloaded":true}`
	testsupport.WriteString(t, filepath.Join(dir, "G9_cam_old.json"), manifest)

	result, err := store.PurgeOffloaded()
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Deleted) != 2 || len(result.Errors) != 0 {
		t.Fatalf("unexpected purge result %+v", result)
	}
	for _, path := range []string{video, filepath.Join(dir, "G9_cam_old.json")} {
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("%s should be removed, stat err %v", filepath.Base(path), err)
		}
	}
}

func TestListSkipsCorruptManifest(t *testing.T) {
	store, dir := newStore(t)
	testsupport.WriteString(t, filepath.Join(dir, "broken_CAM_C.json"), "{not json")
	manifests, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(manifests) != 0 {
		t.Fatalf("expected corrupt manifest skipped, got %d", len(manifests))
	}
}
