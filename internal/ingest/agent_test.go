package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"pitchcam/internal/api"
	"pitchcam/internal/fileutil"
	"pitchcam/internal/integrity"
	"pitchcam/internal/ledger"
	"pitchcam/internal/logging"
	"pitchcam/internal/notifications"
	"pitchcam/internal/services"
)

const videoName = "G1_CAM_C_20260101_120000.mp4"

type fakeNode struct {
	mu           sync.Mutex
	files        map[string][]byte
	listErr      error
	failDownload map[string]bool
	downloads    map[string]int
	confirms     []api.ConfirmRequest
}

func newFakeNode() *fakeNode {
	return &fakeNode{files: map[string][]byte{}, failDownload: map[string]bool{}, downloads: map[string]int{}}
}

func (n *fakeNode) BaseURL() string { return "http://cam-c:8000" }

func (n *fakeNode) ListRecordings(context.Context) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listErr != nil {
		return nil, n.listErr
	}
	names := make([]string, 0, len(n.files))
	for name := range n.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (n *fakeNode) Download(_ context.Context, name string, w io.Writer) (int64, error) {
	n.mu.Lock()
	data, ok := n.files[name]
	fail := n.failDownload[name]
	n.downloads[name]++
	n.mu.Unlock()
	if !ok {
		return 0, services.Wrap(services.ErrNotFound, "fake", "download", name, nil)
	}
	if fail {
		_, _ = w.Write(data[:len(data)/2])
		return 0, services.Wrap(services.ErrTransient, "fake", "download", "connection reset", nil)
	}
	written, err := io.Copy(w, bytes.NewReader(data))
	return written, err
}

func (n *fakeNode) Confirm(_ context.Context, req api.ConfirmRequest) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirms = append(n.confirms, req)
	return nil
}

func (n *fakeNode) addRecording(t *testing.T, content []byte, checksum string) {
	t.Helper()
	if checksum == "" {
		sum := sha256.Sum256(content)
		checksum = hex.EncodeToString(sum[:])
	}
	manifest := &integrity.Manifest{
		SessionID: "G1",
		CameraID:  "CAM_C",
		File:      videoName,
		Checksum:  integrity.Checksum{Algo: integrity.AlgoSHA256, Value: checksum},
	}
	data, err := manifest.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n.files[integrity.ManifestName("G1", "CAM_C")] = data
	n.files[videoName] = content
}

type fakeHistory struct {
	rows []ledger.Offload
}

func (h *fakeHistory) RecordOffload(_ context.Context, o ledger.Offload) error {
	h.rows = append(h.rows, o)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (f *fakeNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func newAgent(t *testing.T, verify bool, node *fakeNode) (*Agent, string, *fakeHistory, *fakeNotifier) {
	t.Helper()
	raw := t.TempDir()
	history := &fakeHistory{}
	notifier := &fakeNotifier{}
	agent := New(Options{RawDir: raw, Verify: verify}, []Node{node}, history, notifier, nil, logging.NewNop())
	return agent, raw, history, notifier
}

func TestScanDownloadsVerifiesAndConfirms(t *testing.T) {
	node := newFakeNode()
	content := []byte("camera-c footage")
	node.addRecording(t, content, "")
	agent, raw, history, _ := newAgent(t, true, node)

	result := agent.ScanOnce(context.Background())
	if result.NodesOnline != 1 || result.Downloaded != 1 || result.Confirmed != 1 {
		t.Fatalf("unexpected scan result %+v", result)
	}
	got, err := os.ReadFile(filepath.Join(raw, videoName))
	if err != nil || !bytes.Equal(got, content) {
		t.Fatalf("video not ingested: %v", err)
	}
	if len(node.confirms) != 1 || node.confirms[0].File != videoName || node.confirms[0].Checksum.Algo != integrity.AlgoSHA256 {
		t.Fatalf("unexpected confirms %+v", node.confirms)
	}
	if len(history.rows) != 1 || history.rows[0].Bytes != int64(len(content)) {
		t.Fatalf("offload not recorded: %+v", history.rows)
	}

	data, _ := os.ReadFile(filepath.Join(raw, integrity.ManifestName("G1", "CAM_C")))
	local, err := integrity.ParseManifest(data)
	if err != nil || !local.Offloaded {
		t.Fatalf("local manifest should be marked offloaded: %+v %v", local, err)
	}

	second := agent.ScanOnce(context.Background())
	if second.Confirmed != 0 || second.Skipped != 1 {
		t.Fatalf("second scan should skip the offloaded recording: %+v", second)
	}
	if node.downloads[videoName] != 1 {
		t.Fatalf("video downloaded %d times", node.downloads[videoName])
	}
	if status := agent.Status(); status.Status != StatusIdle || status.NodesOnline != 1 || status.LastScan == 0 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestChecksumMismatchQuarantinesWithoutConfirm(t *testing.T) {
	node := newFakeNode()
	node.addRecording(t, []byte("tampered"), "abc")
	agent, raw, _, notifier := newAgent(t, true, node)

	result := agent.ScanOnce(context.Background())
	if result.Quarantined != 1 || result.Confirmed != 0 {
		t.Fatalf("unexpected scan result %+v", result)
	}
	if fileutil.Exists(filepath.Join(raw, videoName)) {
		t.Fatal("unverified video must not appear under its final name")
	}
	if !fileutil.Exists(filepath.Join(raw, videoName+QuarantineSuffix)) {
		t.Fatal("expected quarantined .bad file")
	}
	if len(node.confirms) != 0 {
		t.Fatalf("no confirm may be sent for a mismatch, got %+v", node.confirms)
	}
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventChecksumQuarantine {
		t.Fatalf("expected quarantine notification, got %v", notifier.events)
	}

	agent.ScanOnce(context.Background())
	if node.downloads[videoName] != 1 {
		t.Fatalf("quarantined video must not be re-downloaded, got %d downloads", node.downloads[videoName])
	}
}

func TestInterruptedDownloadResumesNextScan(t *testing.T) {
	node := newFakeNode()
	node.addRecording(t, []byte("0123456789abcdef"), "")
	node.failDownload[videoName] = true
	agent, raw, _, _ := newAgent(t, true, node)

	result := agent.ScanOnce(context.Background())
	if result.Downloaded != 0 || len(node.confirms) != 0 {
		t.Fatalf("failed download should not confirm: %+v", result)
	}
	if fileutil.Exists(filepath.Join(raw, videoName)) || fileutil.Exists(filepath.Join(raw, videoName+fileutil.PartialSuffix)) {
		t.Fatal("partial download must not remain")
	}
	if !fileutil.Exists(filepath.Join(raw, integrity.ManifestName("G1", "CAM_C"))) {
		t.Fatal("manifest step should have completed")
	}

	node.failDownload[videoName] = false
	result = agent.ScanOnce(context.Background())
	if result.Downloaded != 1 || result.Confirmed != 1 {
		t.Fatalf("expected resume on second scan: %+v", result)
	}
}

func TestVerificationDisabledAcceptsContent(t *testing.T) {
	node := newFakeNode()
	node.addRecording(t, []byte("whatever"), "abc")
	agent, raw, _, _ := newAgent(t, false, node)

	result := agent.ScanOnce(context.Background())
	if result.Confirmed != 1 || !fileutil.Exists(filepath.Join(raw, videoName)) {
		t.Fatalf("unexpected scan result %+v", result)
	}
}

func TestUnreachableNodeIsSkipped(t *testing.T) {
	node := newFakeNode()
	node.listErr = errors.New("connection refused")
	agent, _, _, _ := newAgent(t, true, node)

	result := agent.ScanOnce(context.Background())
	if result.NodesOnline != 0 {
		t.Fatalf("unexpected scan result %+v", result)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	agent, _, _, _ := newAgent(t, true, newFakeNode())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := agent.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
