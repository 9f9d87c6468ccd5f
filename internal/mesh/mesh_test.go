package mesh_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/logging"
	"pitchcam/internal/mesh"
	"pitchcam/internal/services"
)

type peerServer struct {
	mu       sync.Mutex
	sources  []api.Source
	ids      []string
	delay    time.Duration
	failWith int
	srv      *httptest.Server
}

func newPeer(t *testing.T) *peerServer {
	t.Helper()
	p := &peerServer{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-r.Context().Done():
				return
			}
		}
		if p.failWith != 0 {
			w.WriteHeader(p.failWith)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "refused"})
			return
		}
		switch r.URL.Path {
		case "/api/v1/record/start":
			var req api.StartRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			p.record(req.Source, r.Header.Get(api.RequestIDHeader))
			_ = json.NewEncoder(w).Encode(api.StartResponse{SessionID: req.SessionID, Status: "recording"})
		case "/api/v1/record/stop", "/api/v1/system/shutdown":
			var req api.StopRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			p.record(req.Source, r.Header.Get(api.RequestIDHeader))
			_ = json.NewEncoder(w).Encode(api.StopResponse{Status: "stopped"})
		case "/api/v1/status":
			_ = json.NewEncoder(w).Encode(api.NodeStatus{NodeID: "peer", Recorder: api.RecorderStatus{IsRecording: true}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *peerServer) record(source api.Source, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = append(p.sources, source)
	p.ids = append(p.ids, id)
}

func (p *peerServer) host() string {
	return strings.TrimPrefix(p.srv.URL, "http://")
}

type countingObserver struct {
	mu   sync.Mutex
	fail int
	ok   int
}

func (o *countingObserver) MeshPeerResult(_ string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.ok++
	} else {
		o.fail++
	}
}

func newCoordinator(self string, topology map[string]string, opts ...mesh.Option) *mesh.Coordinator {
	cfg := config.Default()
	cfg.Node.ID = self
	cfg.Mesh.Topology = topology
	return mesh.New(&cfg, logging.NewNop(), opts...)
}

func TestPeersExcludeSelfAndSort(t *testing.T) {
	cfg := config.Default()
	peers := mesh.Peers(cfg.Mesh, config.RoleCenter)
	if len(peers) != 2 || peers[0].Role != config.RoleLeft || peers[1].Role != config.RoleRight {
		t.Fatalf("unexpected peers %+v", peers)
	}
	if peers[0].URL != "http://soccer-cam-l.local:8000" {
		t.Fatalf("unexpected peer url %s", peers[0].URL)
	}
}

func TestPeerURLForms(t *testing.T) {
	cases := map[string]string{
		"cam.local":           "http://cam.local:8000",
		"10.0.0.5:9000":       "http://10.0.0.5:9000",
		"https://cam.example": "https://cam.example",
	}
	for in, want := range cases {
		if got := mesh.PeerURL(in, 8000); got != want {
			t.Fatalf("PeerURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBroadcastStartTagsMeshAndToleratesFailures(t *testing.T) {
	left := newPeer(t)
	right := newPeer(t)
	right.failWith = http.StatusConflict
	obs := &countingObserver{}
	coord := newCoordinator(config.RoleCenter, map[string]string{
		config.RoleLeft:   left.host(),
		config.RoleCenter: "unused",
		config.RoleRight:  right.host(),
	}, mesh.WithObserver(obs))

	results := coord.BroadcastStart(context.Background(), "m1")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].OK || results[0].Role != config.RoleLeft {
		t.Fatalf("expected left to succeed, got %+v", results[0])
	}
	if results[1].OK || results[1].Error == "" {
		t.Fatalf("expected right failure with error, got %+v", results[1])
	}
	if len(left.sources) != 1 || left.sources[0] != api.SourceMesh {
		t.Fatalf("peer must receive source=mesh, got %v", left.sources)
	}
	if left.ids[0] == "" {
		t.Fatal("expected correlation id header")
	}
	if obs.ok != 1 || obs.fail != 1 {
		t.Fatalf("unexpected observer counts ok=%d fail=%d", obs.ok, obs.fail)
	}
}

func TestSlowPeerDoesNotDelayOthers(t *testing.T) {
	fast := newPeer(t)
	slow := newPeer(t)
	slow.delay = 2 * time.Second
	coord := newCoordinator(config.RoleCenter, map[string]string{
		config.RoleLeft:  fast.host(),
		config.RoleRight: slow.host(),
	}, mesh.WithTimeout(150*time.Millisecond))

	began := time.Now()
	results := coord.BroadcastStop(context.Background())
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Fatalf("broadcast waited on slow peer: %s", elapsed)
	}
	if !results[0].OK || results[1].OK {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestStatusReportsOfflinePeers(t *testing.T) {
	online := newPeer(t)
	gone := httptest.NewServer(http.NotFoundHandler())
	goneHost := strings.TrimPrefix(gone.URL, "http://")
	gone.Close()

	coord := newCoordinator(config.RoleLeft, map[string]string{
		config.RoleCenter: online.host(),
		config.RoleRight:  goneHost,
	})
	statuses := coord.Status(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("expected every peer reported, got %d", len(statuses))
	}
	if !statuses[0].Online || statuses[0].Status == nil || !statuses[0].Status.Recorder.IsRecording {
		t.Fatalf("unexpected online status %+v", statuses[0])
	}
	if statuses[1].Online || statuses[1].Error == "" {
		t.Fatalf("offline peer must carry an error, got %+v", statuses[1])
	}
}

func TestBroadcastReusesIncomingCorrelationID(t *testing.T) {
	peer := newPeer(t)
	coord := newCoordinator(config.RoleLeft, map[string]string{config.RoleCenter: peer.host()})
	ctx := servicesCtx("corr-42")
	coord.BroadcastShutdown(ctx)
	if len(peer.ids) != 1 || peer.ids[0] != "corr-42" {
		t.Fatalf("expected correlation id propagated, got %v", peer.ids)
	}
}

func servicesCtx(id string) context.Context {
	return services.WithRequestID(context.Background(), id)
}
