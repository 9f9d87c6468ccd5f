package api_test

import (
	"encoding/json"
	"testing"

	"pitchcam/internal/api"
)

func TestSourceWireForm(t *testing.T) {
	data, err := json.Marshal(api.StartRequest{SessionID: "G1", Source: api.SourceMesh})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"session_id":"G1","source":"mesh"}` {
		t.Fatalf("unexpected wire form %s", data)
	}
}

func TestSourceDefaultsToUser(t *testing.T) {
	var req api.StartRequest
	if err := json.Unmarshal([]byte(`{"session_id":"G1"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Source != api.SourceUser || !req.Source.Relays() {
		t.Fatalf("expected missing source to mean user, got %v", req.Source)
	}
}

func TestMeshSourceDoesNotRelay(t *testing.T) {
	var req api.StopRequest
	if err := json.Unmarshal([]byte(`{"source":"MESH"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Source != api.SourceMesh || req.Source.Relays() {
		t.Fatalf("expected mesh source without relay, got %v", req.Source)
	}
}

func TestSourceRejectsUnknown(t *testing.T) {
	var req api.StopRequest
	if err := json.Unmarshal([]byte(`{"source":"robot"}`), &req); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
