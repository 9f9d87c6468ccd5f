package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "manifest.json")

	if err := WriteFileAtomic(dst, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("content mismatch: %q", got)
	}
	if Exists(dst + PartialSuffix) {
		t.Fatal("expected temporary file to be renamed away")
	}
}

func TestPendingHashesAndCommits(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "video.mp4")
	pending, err := CreatePending(dst, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pending.ReadFrom(strings.NewReader("frame data")); err != nil {
		t.Fatal(err)
	}
	if Exists(dst) {
		t.Fatal("final path must not exist before commit")
	}
	sum := sha256.Sum256([]byte("frame data"))
	if pending.SHA256() != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected digest %s", pending.SHA256())
	}
	if pending.Written() != int64(len("frame data")) {
		t.Fatalf("unexpected byte count %d", pending.Written())
	}
	if err := pending.Commit(); err != nil {
		t.Fatal(err)
	}
	if !Exists(dst) || Exists(pending.TempPath()) {
		t.Fatal("expected commit to move the temporary file into place")
	}
}

func TestPendingCommitAsAndAbort(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "video.mp4")

	pending, err := CreatePending(dst, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = pending.Write([]byte("corrupt"))
	if err := pending.CommitAs(dst + ".bad"); err != nil {
		t.Fatal(err)
	}
	if Exists(dst) || !Exists(dst+".bad") {
		t.Fatal("expected content under the quarantine name only")
	}

	pending, err = CreatePending(dst, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = pending.Write([]byte("partial"))
	pending.Abort()
	if Exists(dst) || Exists(dst+PartialSuffix) {
		t.Fatal("expected abort to leave nothing behind")
	}
}
