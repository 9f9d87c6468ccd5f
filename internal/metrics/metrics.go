// Package metrics exposes Prometheus counters and gauges for the node and
// station daemons.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stitch outcome labels.
const (
	StitchDone   = "done"
	StitchFailed = "failed"
	StitchDead   = "dead_lettered"
)

// Metrics holds the pitchcam collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	recordingsTotal  *prometheus.CounterVec
	manifestsTotal   prometheus.Counter
	recording        prometheus.Gauge
	meshPeerCalls    *prometheus.CounterVec
	ingestDownloads  prometheus.Counter
	ingestBytes      prometheus.Counter
	ingestMismatches prometheus.Counter
	ingestConfirms   prometheus.Counter
	nodesOnline      prometheus.Gauge
	stitchResults    *prometheus.CounterVec
	stitchQueue      prometheus.Gauge
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitchcam_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitchcam_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		recordingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitchcam_recordings_total",
			Help: "Recording state transitions by event (started, stopped, rejected)",
		}, []string{"event"}),
		manifestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitchcam_manifests_written_total",
			Help: "Total number of manifests written",
		}),
		recording: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pitchcam_recording",
			Help: "1 while the node is recording",
		}),
		meshPeerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitchcam_mesh_peer_calls_total",
			Help: "Peer calls by operation and result",
		}, []string{"operation", "result"}),
		ingestDownloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitchcam_ingest_downloads_total",
			Help: "Total number of recordings downloaded by the station",
		}),
		ingestBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitchcam_ingest_bytes_total",
			Help: "Total bytes of video downloaded by the station",
		}),
		ingestMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitchcam_ingest_checksum_mismatches_total",
			Help: "Downloads quarantined because their checksum did not match the manifest",
		}),
		ingestConfirms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pitchcam_ingest_confirms_total",
			Help: "Offload confirmations acknowledged by nodes",
		}),
		nodesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pitchcam_ingest_nodes_online",
			Help: "Nodes that answered during the last ingest scan",
		}),
		stitchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pitchcam_stitch_results_total",
			Help: "Stitch attempts by result",
		}, []string{"result"}),
		stitchQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pitchcam_stitch_queue_length",
			Help: "Sessions waiting to be stitched",
		}),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.recordingsTotal,
		m.manifestsTotal,
		m.recording,
		m.meshPeerCalls,
		m.ingestDownloads,
		m.ingestBytes,
		m.ingestMismatches,
		m.ingestConfirms,
		m.nodesOnline,
		m.stitchResults,
		m.stitchQueue,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() { m.requestsTotal.Inc() }

// IncErrors increments the error response counter.
func (m *Metrics) IncErrors() { m.errorsTotal.Inc() }

// RecordingEvent counts a recorder transition.
func (m *Metrics) RecordingEvent(event string) { m.recordingsTotal.WithLabelValues(event).Inc() }

// IncManifests counts a written manifest.
func (m *Metrics) IncManifests() { m.manifestsTotal.Inc() }

// SetRecording sets the recording gauge.
func (m *Metrics) SetRecording(active bool) {
	if active {
		m.recording.Set(1)
		return
	}
	m.recording.Set(0)
}

// MeshPeerResult implements mesh.Observer.
func (m *Metrics) MeshPeerResult(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.meshPeerCalls.WithLabelValues(op, result).Inc()
}

// IngestDownloaded counts a completed video download.
func (m *Metrics) IngestDownloaded(bytes int64) {
	m.ingestDownloads.Inc()
	m.ingestBytes.Add(float64(bytes))
}

// IncChecksumMismatch counts a quarantined download.
func (m *Metrics) IncChecksumMismatch() { m.ingestMismatches.Inc() }

// IncConfirms counts an acknowledged offload confirmation.
func (m *Metrics) IncConfirms() { m.ingestConfirms.Inc() }

// SetNodesOnline sets the reachable node gauge.
func (m *Metrics) SetNodesOnline(n int) { m.nodesOnline.Set(float64(n)) }

// StitchResult counts a stitch attempt outcome.
func (m *Metrics) StitchResult(result string) { m.stitchResults.WithLabelValues(result).Inc() }

// SetStitchQueue sets the queue depth gauge.
func (m *Metrics) SetStitchQueue(n int) { m.stitchQueue.Set(float64(n)) }

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}
