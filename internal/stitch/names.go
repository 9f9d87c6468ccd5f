package stitch

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pitchcam/internal/fileutil"
	"pitchcam/internal/integrity"
)

// OutputSuffix is appended to the session id to name a stitched output.
const OutputSuffix = "_stitched.mp4"

// VideoExtensions lists the recording containers the scanner considers.
var VideoExtensions = []string{".mp4", ".mkv", ".mov", ".h264", ".h265"}

var (
	recordingPattern = regexp.MustCompile(`^(.+)_([A-Za-z]+[_-][A-Za-z])_(\d{8})_(\d{6})$`)
	upper            = cases.Upper(language.Und)
)

// Recording is a raw file name broken into its parts.
type Recording struct {
	SessionID string
	Role      string
	// RawRole is the role as spelled in the file name, which is also how
	// the node names the manifest.
	RawRole string
	Date    string
	Time    string
	Ext     string
	Name    string
}

// NormalizeRole canonicalizes role spellings: "cam-l" and "CAM-L" both
// become "CAM_L".
func NormalizeRole(role string) string {
	return strings.ReplaceAll(upper.String(strings.TrimSpace(role)), "-", "_")
}

// ParseName parses `{session}_{role}_{YYYYMMDD}_{HHMMSS}.{ext}`. Quarantined,
// partial and non-video files are rejected.
func ParseName(name string) (Recording, bool) {
	name = filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(name))
	if !isVideoExt(ext) {
		return Recording{}, false
	}
	match := recordingPattern.FindStringSubmatch(strings.TrimSuffix(name, filepath.Ext(name)))
	if match == nil {
		return Recording{}, false
	}
	return Recording{
		SessionID: match[1],
		Role:      NormalizeRole(match[2]),
		RawRole:   match[2],
		Date:      match[3],
		Time:      match[4],
		Ext:       ext,
		Name:      name,
	}, true
}

func hasManifest(rawDir string, rec Recording) bool {
	for _, role := range []string{rec.RawRole, rec.Role} {
		if fileutil.Exists(filepath.Join(rawDir, integrity.ManifestName(rec.SessionID, role))) {
			return true
		}
	}
	return false
}

func isVideoExt(ext string) bool {
	for _, candidate := range VideoExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// Session groups the raw recordings that share a session id.
type Session struct {
	ID     string
	Inputs map[string]string
}

// Complete reports whether every role in roles has an input.
func (s Session) Complete(roles []string) bool {
	for _, role := range roles {
		if _, ok := s.Inputs[role]; !ok {
			return false
		}
	}
	return true
}

// Ordered returns the input paths in role order.
func (s Session) Ordered(roles []string) []string {
	paths := make([]string, 0, len(roles))
	for _, role := range roles {
		if path, ok := s.Inputs[role]; ok {
			paths = append(paths, path)
		}
	}
	return paths
}

// OutputPath returns where the stitched output for sessionID lives.
func OutputPath(outputDir, sessionID string) string {
	return filepath.Join(outputDir, sessionID+OutputSuffix)
}

// ScanSessions groups the recordings in rawDir by session. A role only
// counts once its manifest sits next to the video, which ingest writes
// before the video. Roles outside roles are ignored; when a role has several
// files the lexically last one wins.
func ScanSessions(rawDir string, roles []string) ([]Session, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(roles))
	for _, role := range roles {
		wanted[role] = true
	}

	bySession := make(map[string]*Session)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rec, ok := ParseName(entry.Name())
		if !ok || !wanted[rec.Role] {
			continue
		}
		if !hasManifest(rawDir, rec) {
			continue
		}
		session := bySession[rec.SessionID]
		if session == nil {
			session = &Session{ID: rec.SessionID, Inputs: make(map[string]string)}
			bySession[rec.SessionID] = session
		}
		session.Inputs[rec.Role] = filepath.Join(rawDir, rec.Name)
	}

	sessions := make([]Session, 0, len(bySession))
	for _, session := range bySession {
		sessions = append(sessions, *session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}
