package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pitchcam/internal/fileutil"
	"pitchcam/internal/logging"
	"pitchcam/internal/services"
)

// ManifestExt is the manifest file extension.
const ManifestExt = ".json"

// Manifest is the integrity and metadata record for one recording.
type Manifest struct {
	SessionID       string   `json:"session_id"`
	CameraID        string   `json:"camera_id"`
	File            string   `json:"file"`
	StartTimeLocal  float64  `json:"start_time_local"`
	StartTimeMaster float64  `json:"start_time_master"`
	OffsetMS        float64  `json:"offset_ms"`
	Duration        float64  `json:"duration"`
	Resolution      string   `json:"resolution"`
	FPS             int      `json:"fps"`
	Codec           string   `json:"codec"`
	DroppedFrames   int      `json:"dropped_frames"`
	Checksum        Checksum `json:"checksum"`
	Offloaded       bool     `json:"offloaded"`
	SoftwareVersion string   `json:"software_version"`
	CreatedAt       float64  `json:"created_at"`

	// source is the file the manifest was read from.
	source string
}

// ManifestName returns the manifest file name for a session and camera.
func ManifestName(sessionID, cameraID string) string {
	return sessionID + "_" + cameraID + ManifestExt
}

// ParseManifest decodes manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.SessionID == "" || m.CameraID == "" || m.File == "" {
		return nil, errors.New("manifest is missing session_id, camera_id or file")
	}
	return &m, nil
}

// OffsetSource supplies the node clock offset against the reference clock.
type OffsetSource interface {
	OffsetMS(ctx context.Context) float64
}

// Identity carries the per-node attributes stamped into every manifest.
type Identity struct {
	CameraID        string
	Resolution      string
	FPS             int
	Codec           string
	SoftwareVersion string
}

// RecordingInfo is what the recorder knows about a finished recording.
type RecordingInfo struct {
	SessionID      string
	FilePath       string
	StartTimeLocal time.Time
	Duration       time.Duration
	DroppedFrames  int
}

// Store persists manifests next to the recordings they describe.
type Store struct {
	dir      string
	identity func() Identity
	offsets  OffsetSource
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewStore constructs a manifest store rooted at dir. identity is consulted
// at manifest creation so capture setting changes apply to later recordings.
func NewStore(dir string, identity func() Identity, offsets OffsetSource, logger *slog.Logger) *Store {
	return &Store{
		dir:      dir,
		identity: identity,
		offsets:  offsets,
		logger:   logging.NewComponentLogger(logger, "integrity"),
		now:      time.Now,
	}
}

// Dir returns the directory manifests and recordings live in.
func (s *Store) Dir() string { return s.dir }

// Create checksums the finished recording, captures the current clock offset
// and persists the manifest. It returns the manifest and its path.
func (s *Store) Create(ctx context.Context, info RecordingInfo) (*Manifest, string, error) {
	id := s.identity()
	if strings.TrimSpace(info.SessionID) == "" {
		return nil, "", services.Wrap(services.ErrValidation, "integrity", "create manifest", "session id is required", nil)
	}

	checksum, err := ComputeChecksum(ctx, info.FilePath)
	if err != nil {
		return nil, "", services.Wrap(services.ErrTransient, "integrity", "checksum", filepath.Base(info.FilePath), err)
	}

	var offset float64
	if s.offsets != nil {
		offset = s.offsets.OffsetMS(ctx)
	}
	local := epochSeconds(info.StartTimeLocal)

	manifest := &Manifest{
		SessionID:       info.SessionID,
		CameraID:        id.CameraID,
		File:            filepath.Base(info.FilePath),
		StartTimeLocal:  local,
		StartTimeMaster: local - offset/1000,
		OffsetMS:        offset,
		Duration:        round(info.Duration.Seconds(), 3),
		Resolution:      id.Resolution,
		FPS:             id.FPS,
		Codec:           id.Codec,
		DroppedFrames:   info.DroppedFrames,
		Checksum:        checksum,
		SoftwareVersion: id.SoftwareVersion,
		CreatedAt:       float64(s.now().Unix()),
	}

	path := s.Path(info.SessionID, id.CameraID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(path, manifest); err != nil {
		return nil, "", err
	}

	s.logger.Info("manifest written",
		logging.String(logging.FieldSessionID, manifest.SessionID),
		logging.String(logging.FieldCameraID, manifest.CameraID),
		logging.String("file", manifest.File),
		logging.String("checksum", manifest.Checksum.String()),
		logging.Float64("offset_ms", manifest.OffsetMS),
		logging.String(logging.FieldEventType, "manifest_created"),
	)
	return manifest, path, nil
}

// Path returns where the manifest for a session/camera pair lives.
func (s *Store) Path(sessionID, cameraID string) string {
	return filepath.Join(s.dir, ManifestName(sessionID, cameraID))
}

// Load reads the manifest for a session/camera pair.
func (s *Store) Load(sessionID, cameraID string) (*Manifest, error) {
	return readManifest(s.Path(sessionID, cameraID))
}

// MarkOffloaded flips the offloaded flag of an existing manifest. It returns
// false, without creating anything, when no manifest exists. Marking an
// already offloaded manifest is a successful no-op.
func (s *Store) MarkOffloaded(sessionID, cameraID string) (bool, error) {
	path := s.Path(sessionID, cameraID)

	s.mu.Lock()
	defer s.mu.Unlock()

	manifest, err := readManifest(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if manifest.Offloaded {
		return true, nil
	}
	manifest.Offloaded = true
	if err := s.write(path, manifest); err != nil {
		return false, err
	}
	s.logger.Info("recording marked offloaded",
		logging.String(logging.FieldSessionID, sessionID),
		logging.String(logging.FieldCameraID, cameraID),
		logging.String(logging.FieldEventType, "offload_confirmed"),
	)
	return true, nil
}

// List returns every readable manifest in the store, sorted by name.
// Unreadable manifests are logged and skipped.
func (s *Store) List() ([]*Manifest, error) {
	names, err := s.manifestNames()
	if err != nil {
		return nil, err
	}
	out := make([]*Manifest, 0, len(names))
	for _, name := range names {
		manifest, err := readManifest(filepath.Join(s.dir, name))
		if err != nil {
			logging.WarnWithContext(s.logger, "skipping unreadable manifest", "manifest_unreadable",
				logging.String("manifest", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect or remove the manifest file"),
				logging.String(logging.FieldImpact, "recording cannot be offloaded or cleaned up"),
			)
			continue
		}
		out = append(out, manifest)
	}
	return out, nil
}

// ListOffloadable returns the video and manifest paths of every recording
// whose manifest says offloaded=true. This is the only set cleanup may delete.
func (s *Store) ListOffloadable() ([]string, error) {
	manifests, err := s.List()
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, m := range manifests {
		if !m.Offloaded {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, filepath.Base(m.File)), m.source)
	}
	return paths, nil
}

// PurgeResult reports a cleanup pass.
type PurgeResult struct {
	Deleted []string
	Errors  []PurgeError
}

// PurgeError pairs a path with the reason it could not be removed.
type PurgeError struct {
	Path  string
	Error error
}

// PurgeOffloaded deletes everything ListOffloadable reports. Videos are
// removed before their manifest so a partial failure never leaves a video
// without the manifest that authorizes its deletion.
func (s *Store) PurgeOffloaded() (PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.ListOffloadable()
	if err != nil {
		return PurgeResult{}, err
	}
	var result PurgeResult
	for i := 0; i+1 < len(paths); i += 2 {
		video, manifest := paths[i], paths[i+1]
		if err := os.Remove(video); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, PurgeError{Path: video, Error: err})
			continue
		} else if err == nil {
			result.Deleted = append(result.Deleted, video)
		}
		if err := os.Remove(manifest); err != nil {
			result.Errors = append(result.Errors, PurgeError{Path: manifest, Error: err})
			continue
		}
		result.Deleted = append(result.Deleted, manifest)
	}
	for _, e := range result.Errors {
		logging.WarnWithContext(s.logger, "cleanup could not remove file", "cleanup_failed",
			logging.String("path", e.Path),
			logging.Error(e.Error),
			logging.String(logging.FieldErrorHint, "check recordings_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
	}
	if len(result.Deleted) > 0 {
		s.logger.Info("offloaded recordings removed",
			logging.Int("deleted", len(result.Deleted)),
			logging.Int("errors", len(result.Errors)),
			logging.String(logging.FieldEventType, "cleanup_completed"),
		)
	}
	return result, nil
}

// Artifacts lists recording and manifest file names in the store directory.
func (s *Store) Artifacts(videoExt string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read recordings dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, videoExt) || strings.HasSuffix(name, ManifestExt) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *Store) manifestNames() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recordings dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ManifestExt) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Encode renders the manifest as indented JSON with a trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

func (s *Store) write(path string, manifest *Manifest) error {
	data, err := manifest.Encode()
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "integrity", "write manifest", filepath.Base(path), err)
	}
	return nil
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	m.source = path
	return m, nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
