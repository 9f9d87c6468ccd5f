// Package ingest pulls finished recordings from camera nodes into the
// station's raw directory.
//
// Each scan walks the static node list. Per manifest it downloads the
// manifest, then the video it names, verifies the video's SHA-256 against
// the manifest, and finally confirms the offload back to the node. Every
// step leaves an observable file behind, so an interrupted scan resumes
// where it stopped on the next pass. Downloads land under a ".part" name and
// are renamed only once complete (and verified), so other station services
// never see a partial file under its final name.
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/fileutil"
	"pitchcam/internal/integrity"
	"pitchcam/internal/ledger"
	"pitchcam/internal/logging"
	"pitchcam/internal/mesh"
	"pitchcam/internal/metrics"
	"pitchcam/internal/nodeclient"
	"pitchcam/internal/notifications"
	"pitchcam/internal/services"
)

// Loop states reported through Status.
const (
	StatusIdle                = "idle"
	StatusScanning            = "scanning"
	StatusDownloadingManifest = "downloading_manifest"
	StatusDownloadingVideo    = "downloading_video"
	StatusVerifying           = "verifying"
	StatusConfirming          = "confirming"
)

// QuarantineSuffix marks a video that failed verification. It is never
// retried automatically; an operator must remove it.
const QuarantineSuffix = ".bad"

// Node is the subset of the node API the agent needs.
type Node interface {
	BaseURL() string
	ListRecordings(ctx context.Context) ([]string, error)
	Download(ctx context.Context, name string, w io.Writer) (int64, error)
	Confirm(ctx context.Context, req api.ConfirmRequest) error
}

// OffloadRecorder keeps offload history.
type OffloadRecorder interface {
	RecordOffload(ctx context.Context, o ledger.Offload) error
}

// Options configures the agent.
type Options struct {
	RawDir          string
	Verify          bool
	ScanInterval    time.Duration
	ListTimeout     time.Duration
	DownloadTimeout time.Duration
}

// Agent is the ingest loop.
type Agent struct {
	opts     Options
	nodes    []Node
	history  OffloadRecorder
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	status api.IngestStatus
}

// ScanResult summarises one pass over all nodes.
type ScanResult struct {
	NodesOnline int
	Downloaded  int
	Confirmed   int
	Quarantined int
	Skipped     int
}

// New builds an agent over explicit node clients.
func New(opts Options, nodes []Node, history OffloadRecorder, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger) *Agent {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = 10 * time.Second
	}
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = 3 * time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	return &Agent{
		opts:     opts,
		nodes:    nodes,
		history:  history,
		notifier: notifier,
		metrics:  m,
		logger:   logging.NewComponentLogger(logger, "ingest"),
		status:   api.IngestStatus{Status: StatusIdle},
	}
}

// FromConfig builds an agent for the configured station node list.
func FromConfig(cfg *config.Config, history OffloadRecorder, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger) *Agent {
	nodes := make([]Node, 0, len(cfg.Station.Nodes))
	for _, address := range cfg.Station.Nodes {
		nodes = append(nodes, nodeclient.New(mesh.PeerURL(address, cfg.Mesh.Port), nodeclient.Options{Token: cfg.API.Token}))
	}
	return New(Options{
		RawDir:          cfg.Station.RawDir,
		Verify:          cfg.Station.VerifyChecksums,
		ScanInterval:    time.Duration(cfg.Station.ScanIntervalSeconds) * time.Second,
		ListTimeout:     time.Duration(cfg.Station.ListTimeoutSeconds) * time.Second,
		DownloadTimeout: time.Duration(cfg.Station.DownloadTimeoutSeconds) * time.Second,
	}, nodes, history, notifier, m, logger)
}

// Status returns a snapshot of the loop state.
func (a *Agent) Status() api.IngestStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Agent) setStatus(state, node, file string) {
	a.mu.Lock()
	a.status.Status = state
	a.status.Node = node
	a.status.File = file
	switch state {
	case StatusIdle, StatusScanning:
		a.status.Progress = 0
	case StatusConfirming:
		a.status.Progress = 100
	}
	a.mu.Unlock()
}

// Run scans until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("ingest loop started",
		logging.Int("nodes", len(a.nodes)),
		logging.Bool("verify_checksums", a.opts.Verify),
		logging.Duration("interval", a.opts.ScanInterval),
	)
	for {
		a.ScanOnce(ctx)
		select {
		case <-ctx.Done():
			a.setStatus(StatusIdle, "", "")
			return nil
		case <-time.After(a.opts.ScanInterval):
		}
	}
}

// ScanOnce makes one pass over every node. Failures are logged and left
// for the next pass.
func (a *Agent) ScanOnce(ctx context.Context) ScanResult {
	var result ScanResult
	a.setStatus(StatusScanning, "", "")
	for _, node := range a.nodes {
		if ctx.Err() != nil {
			break
		}
		listCtx, cancel := context.WithTimeout(ctx, a.opts.ListTimeout)
		files, err := node.ListRecordings(listCtx)
		cancel()
		if err != nil {
			a.logger.Debug("node unreachable", logging.String(logging.FieldPeer, node.BaseURL()), logging.Error(err))
			continue
		}
		result.NodesOnline++
		for _, name := range files {
			if !strings.HasSuffix(name, integrity.ManifestExt) || ctx.Err() != nil {
				continue
			}
			a.processManifest(ctx, node, name, &result)
		}
	}

	a.mu.Lock()
	a.status.NodesOnline = result.NodesOnline
	a.status.LastScan = float64(time.Now().UnixNano()) / 1e9
	a.mu.Unlock()
	a.metrics.SetNodesOnline(result.NodesOnline)
	a.setStatus(StatusIdle, "", "")

	if result.Downloaded > 0 || result.Confirmed > 0 || result.Quarantined > 0 {
		a.logger.Info("ingest scan complete",
			logging.Int("nodes_online", result.NodesOnline),
			logging.Int("downloaded", result.Downloaded),
			logging.Int("confirmed", result.Confirmed),
			logging.Int("quarantined", result.Quarantined),
			logging.String(logging.FieldEventType, "ingest_scan"),
		)
	}
	return result
}

func (a *Agent) processManifest(ctx context.Context, node Node, name string, result *ScanResult) {
	name = filepath.Base(name)
	manifestPath := filepath.Join(a.opts.RawDir, name)
	logger := a.logger.With(logging.String(logging.FieldPeer, node.BaseURL()), logging.String("manifest", name))

	if !fileutil.Exists(manifestPath) {
		a.setStatus(StatusDownloadingManifest, node.BaseURL(), name)
		if _, err := a.download(ctx, node, name, manifestPath); err != nil {
			a.transientFailure(logger, "manifest download failed", err)
			return
		}
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		a.transientFailure(logger, "manifest unreadable", err)
		return
	}
	manifest, err := integrity.ParseManifest(data)
	if err != nil {
		logging.WarnWithContext(logger, "manifest is invalid", "manifest_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the local copy to download it again"),
			logging.String(logging.FieldImpact, "recording is not ingested"),
		)
		return
	}
	if manifest.Offloaded {
		result.Skipped++
		return
	}
	logger = logger.With(
		logging.String(logging.FieldSessionID, manifest.SessionID),
		logging.String(logging.FieldCameraID, manifest.CameraID),
	)

	video := filepath.Base(manifest.File)
	videoPath := filepath.Join(a.opts.RawDir, video)
	if fileutil.Exists(videoPath + QuarantineSuffix) {
		logger.Debug("video quarantined; skipping", logging.String("file", video+QuarantineSuffix))
		result.Skipped++
		return
	}

	if !fileutil.Exists(videoPath) {
		ok, err := a.fetchVideo(ctx, node, manifest, video, videoPath, logger)
		if err != nil {
			a.transientFailure(logger, "video download failed", err)
			return
		}
		if !ok {
			result.Quarantined++
			return
		}
		result.Downloaded++
	}

	a.setStatus(StatusConfirming, node.BaseURL(), video)
	if err := node.Confirm(ctx, api.ConfirmRequest{
		SessionID: manifest.SessionID,
		CameraID:  manifest.CameraID,
		File:      video,
		Checksum:  manifest.Checksum,
	}); err != nil {
		a.transientFailure(logger, "offload confirmation failed", err)
		return
	}
	result.Confirmed++
	a.metrics.IncConfirms()

	manifest.Offloaded = true
	if err := writeManifest(manifestPath, manifest); err != nil {
		logger.Warn("local manifest not updated after confirm", logging.Error(err))
	}
	if a.history != nil {
		var size int64
		if info, err := os.Stat(videoPath); err == nil {
			size = info.Size()
		}
		if err := a.history.RecordOffload(ctx, ledger.Offload{
			Node:      node.BaseURL(),
			SessionID: manifest.SessionID,
			CameraID:  manifest.CameraID,
			File:      video,
			Checksum:  manifest.Checksum.String(),
			Bytes:     size,
		}); err != nil {
			logger.Warn("offload history not recorded", logging.Error(err))
		}
	}
	logger.Info("recording offloaded",
		logging.String("file", video),
		logging.String(logging.FieldEventType, "offload_confirmed"),
	)
}

// fetchVideo streams the video into a pending file. It returns false when
// the content failed verification and was quarantined.
func (a *Agent) fetchVideo(ctx context.Context, node Node, manifest *integrity.Manifest, video, videoPath string, logger *slog.Logger) (bool, error) {
	a.setStatus(StatusDownloadingVideo, node.BaseURL(), video)
	dlCtx := ctx
	if a.opts.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, a.opts.DownloadTimeout)
		defer cancel()
	}

	pending, err := fileutil.CreatePending(videoPath, 0o644)
	if err != nil {
		return false, err
	}
	started := time.Now()
	n, err := node.Download(dlCtx, video, pending)
	if err != nil {
		pending.Abort()
		return false, err
	}
	a.metrics.IngestDownloaded(n)

	if a.opts.Verify {
		a.setStatus(StatusVerifying, node.BaseURL(), video)
		got := integrity.Checksum{Algo: integrity.AlgoSHA256, Value: pending.SHA256()}
		if !got.Equal(manifest.Checksum) {
			quarantine := videoPath + QuarantineSuffix
			if err := pending.CommitAs(quarantine); err != nil {
				return false, err
			}
			a.metrics.IncChecksumMismatch()
			logging.ErrorWithContext(logger, "checksum mismatch; video quarantined", "checksum_mismatch",
				logging.String("file", video),
				logging.String("expected", manifest.Checksum.String()),
				logging.String("actual", got.String()),
				logging.String("quarantine", filepath.Base(quarantine)),
				logging.String(logging.FieldErrorHint, "inspect the node copy; delete the .bad file to retry"),
				logging.String(logging.FieldImpact, "session cannot be stitched and the node keeps its copy"),
			)
			if a.notifier != nil {
				if err := a.notifier.Publish(ctx, notifications.EventChecksumQuarantine, notifications.Payload{
					"file":       video,
					"node":       node.BaseURL(),
					"quarantine": filepath.Base(quarantine),
				}); err != nil {
					logger.Warn("quarantine notification failed", logging.Error(err))
				}
			}
			return false, nil
		}
	}
	if err := pending.Commit(); err != nil {
		return false, err
	}
	logger.Info("video downloaded",
		logging.String("file", video),
		logging.Int64("bytes", n),
		logging.Duration("elapsed", time.Since(started)),
		logging.Bool("verified", a.opts.Verify),
	)
	return true, nil
}

func (a *Agent) download(ctx context.Context, node Node, name, dest string) (int64, error) {
	pending, err := fileutil.CreatePending(dest, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := node.Download(ctx, name, pending)
	if err != nil {
		pending.Abort()
		return 0, err
	}
	if err := pending.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (a *Agent) transientFailure(logger *slog.Logger, msg string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	logging.WarnWithContext(logger, msg, "ingest_transient",
		logging.Error(err),
		logging.Bool("retryable", services.Retryable(err)),
		logging.String(logging.FieldErrorHint, "the next scan retries automatically"),
		logging.String(logging.FieldImpact, "offload delayed"),
	)
}

func writeManifest(path string, manifest *integrity.Manifest) error {
	data, err := manifest.Encode()
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}
