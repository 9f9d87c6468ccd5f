package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

// PartialSuffix marks files that are still being written. Readers that scan
// directories must ignore names carrying it.
const PartialSuffix = ".part"

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteFileAtomic writes data to a temporary sibling and renames it over path,
// so readers observe either the old content or the complete new content.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	pending, err := CreatePending(path, mode)
	if err != nil {
		return err
	}
	if _, err := pending.Write(data); err != nil {
		pending.Abort()
		return err
	}
	return pending.Commit()
}

// Pending is a file being written under a temporary name. Every byte written
// is hashed with SHA-256 so callers can verify content before committing.
type Pending struct {
	final   string
	temp    string
	file    *os.File
	hasher  hash.Hash
	written int64
	closed  bool
}

// CreatePending opens path+PartialSuffix for writing, truncating leftovers
// from an earlier interrupted attempt.
func CreatePending(path string, mode os.FileMode) (*Pending, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	temp := path + PartialSuffix
	file, err := os.OpenFile(temp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", temp, err)
	}
	return &Pending{final: path, temp: temp, file: file, hasher: sha256.New()}, nil
}

// Write implements io.Writer.
func (p *Pending) Write(b []byte) (int, error) {
	n, err := p.file.Write(b)
	p.hasher.Write(b[:n])
	p.written += int64(n)
	return n, err
}

// ReadFrom streams r into the pending file.
func (p *Pending) ReadFrom(r io.Reader) (int64, error) {
	return io.Copy(struct{ io.Writer }{p}, r)
}

// Written returns the number of bytes written so far.
func (p *Pending) Written() int64 { return p.written }

// SHA256 returns the hex digest of everything written so far.
func (p *Pending) SHA256() string {
	return hex.EncodeToString(p.hasher.Sum(nil))
}

// TempPath returns the temporary file name.
func (p *Pending) TempPath() string { return p.temp }

func (p *Pending) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.file.Sync(); err != nil {
		_ = p.file.Close()
		return err
	}
	return p.file.Close()
}

// Commit flushes the temporary file and renames it to the final path.
func (p *Pending) Commit() error {
	if err := p.close(); err != nil {
		_ = os.Remove(p.temp)
		return fmt.Errorf("flush %s: %w", p.temp, err)
	}
	if err := os.Rename(p.temp, p.final); err != nil {
		_ = os.Remove(p.temp)
		return fmt.Errorf("rename %s: %w", p.temp, err)
	}
	return nil
}

// CommitAs closes the temporary file and renames it to an alternative path.
// Used to quarantine content that failed verification.
func (p *Pending) CommitAs(path string) error {
	if err := p.close(); err != nil {
		_ = os.Remove(p.temp)
		return fmt.Errorf("flush %s: %w", p.temp, err)
	}
	if err := os.Rename(p.temp, path); err != nil {
		return fmt.Errorf("rename %s: %w", p.temp, err)
	}
	return nil
}

// Abort discards the temporary file.
func (p *Pending) Abort() {
	_ = p.close()
	_ = os.Remove(p.temp)
}
