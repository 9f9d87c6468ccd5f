package nodeclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"pitchcam/internal/api"
	"pitchcam/internal/integrity"
	"pitchcam/internal/nodeclient"
	"pitchcam/internal/services"
)

func TestStartRecordingSendsSourceAndToken(t *testing.T) {
	var got api.StartRequest
	var auth, requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/record/start" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		requestID = r.Header.Get(api.RequestIDHeader)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(api.StartResponse{SessionID: got.SessionID, Status: "recording", File: "f.mp4"})
	}))
	defer srv.Close()

	client := nodeclient.New(srv.URL+"/", nodeclient.Options{Token: "secret"})
	ctx := services.WithRequestID(context.Background(), "req-1")
	resp, err := client.StartRecording(ctx, "m1", api.SourceMesh)
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if got.SessionID != "m1" || got.Source != api.SourceMesh {
		t.Fatalf("unexpected request body %+v", got)
	}
	if auth != "Bearer secret" || requestID != "req-1" {
		t.Fatalf("unexpected headers auth=%q id=%q", auth, requestID)
	}
	if resp.Status != "recording" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestStatusCodesMapToMarkers(t *testing.T) {
	cases := []struct {
		code   int
		marker error
	}{
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusConflict, services.ErrConflict},
		{http.StatusPreconditionFailed, services.ErrPrecondition},
		{http.StatusInternalServerError, services.ErrTransient},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.code)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "nope"})
		}))
		err := nodeclient.New(srv.URL, nodeclient.Options{}).Confirm(context.Background(), api.ConfirmRequest{})
		srv.Close()
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.code, tc.marker, err)
		}
	}
}

func TestUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	if _, err := nodeclient.New(url, nodeclient.Options{}).Status(context.Background()); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDownloadStreamsStaticFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/static/s1_CAM_L_20260101_120000.mp4" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := nodeclient.New(srv.URL, nodeclient.Options{}).Download(context.Background(), "s1_CAM_L_20260101_120000.mp4", &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != int64(len("video-bytes")) || buf.String() != "video-bytes" {
		t.Fatalf("unexpected download %d %q", n, buf.String())
	}
	if _, err := nodeclient.New(srv.URL, nodeclient.Options{}).Download(context.Background(), "missing.mp4", &buf); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConfirmSendsChecksum(t *testing.T) {
	var got api.ConfirmRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(api.StatusResponse{Status: "confirmed"})
	}))
	defer srv.Close()
	req := api.ConfirmRequest{SessionID: "s", CameraID: "CAM_R", File: "f.mp4", Checksum: integrity.Checksum{Algo: "sha256", Value: "abc"}}
	if err := nodeclient.New(srv.URL, nodeclient.Options{}).Confirm(context.Background(), req); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got != req {
		t.Fatalf("unexpected confirm body %+v", got)
	}
}
