package station

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/detections"
	"pitchcam/internal/ledger"
	"pitchcam/internal/logging"
	"pitchcam/internal/nodeclient"
	"pitchcam/internal/services"
	"pitchcam/internal/stitch"
	"pitchcam/internal/sysinfo"
	"pitchcam/internal/testsupport"
)

type fakeIngest struct{ status api.IngestStatus }

func (f *fakeIngest) Status() api.IngestStatus { return f.status }

type fakePipeline struct {
	ledger *ledger.Store
	status api.PipelineStatus
}

func (f *fakePipeline) Status() api.PipelineStatus { return f.status }

func (f *fakePipeline) Retry(ctx context.Context, sessionID string) (bool, error) {
	return f.ledger.Reset(ctx, sessionID)
}

type harness struct {
	cfg    *config.Config
	ledger *ledger.Store
	client *Client
}

func newHarness(t *testing.T, token string) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.API.Token = token
	store := testsupport.MustOpenLedger(t, cfg)

	srv, err := New(Deps{
		Config:   cfg,
		Ingest:   &fakeIngest{status: api.IngestStatus{Status: "idle", NodesOnline: 3}},
		Pipeline: &fakePipeline{ledger: store, status: api.PipelineStatus{QueueLength: 1, ActiveJob: "G2"}},
		History:  store,
		Info:     sysinfo.NewSimulated(),
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return &harness{
		cfg:    cfg,
		ledger: store,
		client: NewClient(ts.URL, nodeclient.Options{Token: token}),
	}
}

func TestStatusAggregatesLoops(t *testing.T) {
	h := newHarness(t, "")
	status, err := h.client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != "online" || status.Ingest.NodesOnline != 3 || status.Pipeline.ActiveJob != "G2" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.DiskFreeGB <= 0 {
		t.Fatalf("expected disk free to be reported, got %v", status.DiskFreeGB)
	}
}

func TestJobsAndRetry(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	if _, err := h.ledger.MarkRunning(ctx, "G1"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if _, err := h.ledger.MarkFailed(ctx, "G1", "ffmpeg exited 1", 1); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	jobs, err := h.client.Jobs(ctx)
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != string(ledger.JobDead) || jobs[0].LastError != "ffmpeg exited 1" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	resp, err := h.client.Retry(ctx, "G1")
	if err != nil || resp.Status != "queued" {
		t.Fatalf("Retry: %+v %v", resp, err)
	}
	if dead, _ := h.ledger.IsDeadLettered(ctx, "G1"); dead {
		t.Fatal("retry should clear the dead letter")
	}
	if _, err := h.client.Retry(ctx, "unknown"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionsAndEvents(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	st := h.cfg.Station
	testsupport.WriteString(t, stitch.OutputPath(st.OutputDir, "G1"), "mp4")
	testsupport.WriteString(t, stitch.OutputPath(st.OutputDir, "G2"), "mp4!")

	writer, err := detections.OpenWriter(st.EventsDir, "G1")
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if err := writer.Append(
		detections.Event{Timestamp: 1, Frame: 0, Players: 10},
		detections.Event{Timestamp: 2, Frame: 1, Players: 14, BallDetected: true, Ball: &detections.Ball{X: 0.5, Y: 0.4}},
		detections.Event{Timestamp: 3, Frame: 2, Players: 12},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = writer.Close()

	sessions, err := h.client.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "G1" || !sessions[0].HasEvents || sessions[1].HasEvents || sessions[1].SizeBytes != 4 {
		t.Fatalf("unexpected sessions %+v", sessions)
	}

	events, err := h.client.Events(ctx, "G1", 2)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events.Events) != 2 || events.Summary.BallFrames != 1 || events.Summary.MaxPlayers != 14 {
		t.Fatalf("unexpected events %+v", events)
	}
	if _, err := h.client.Events(ctx, "G2", 0); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing log, got %v", err)
	}
	if _, err := h.client.Events(ctx, "G1", -1); err != nil {
		t.Fatalf("non-positive limit is omitted by the client: %v", err)
	}
}

func TestOffloadsLimit(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	for _, role := range []string{"CAM_L", "CAM_C", "CAM_R"} {
		if err := h.ledger.RecordOffload(ctx, ledger.Offload{Node: "http://n", SessionID: "G1", CameraID: role, File: role + ".mp4", Bytes: 1}); err != nil {
			t.Fatalf("RecordOffload: %v", err)
		}
	}
	rows, err := h.client.Offloads(ctx, 2)
	if err != nil || len(rows) != 2 {
		t.Fatalf("Offloads: %d rows, %v", len(rows), err)
	}
}

func TestInvalidLimitRejected(t *testing.T) {
	h := newHarness(t, "")
	resp, err := http.Get(h.client.http.BaseURL() + "/api/offloads?limit=abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestTokenGuardsAPIButNotHealth(t *testing.T) {
	h := newHarness(t, "secret")
	base := h.client.http.BaseURL()

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp, err = http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected health to stay open, got %d", resp.StatusCode)
	}
	if _, err := h.client.Status(context.Background()); err != nil {
		t.Fatalf("authorized Status: %v", err)
	}
}
