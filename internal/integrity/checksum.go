package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ChunkSize is the read size used when hashing recordings.
const ChunkSize = 4096

// AlgoSHA256 is the only checksum algorithm written to manifests.
const AlgoSHA256 = "sha256"

// Checksum is an algorithm tag plus hex digest.
type Checksum struct {
	Algo  string `json:"algo"`
	Value string `json:"value"`
}

func (c Checksum) String() string {
	if c.Value == "" {
		return ""
	}
	return c.Algo + ":" + c.Value
}

// Equal compares two checksums, ignoring digest case.
func (c Checksum) Equal(other Checksum) bool {
	return strings.EqualFold(c.Algo, other.Algo) && strings.EqualFold(c.Value, other.Value)
}

// ComputeChecksum hashes the whole file at path in ChunkSize reads. It must
// only be called on a finished recording.
func ComputeChecksum(ctx context.Context, path string) (Checksum, error) {
	file, err := os.Open(path)
	if err != nil {
		return Checksum{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return Checksum{}, err
		}
		n, err := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Checksum{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return Checksum{Algo: AlgoSHA256, Value: hex.EncodeToString(hasher.Sum(nil))}, nil
}
