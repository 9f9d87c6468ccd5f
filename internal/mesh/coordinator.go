// Package mesh relays operator commands between the camera nodes.
//
// Every node knows the full static topology. A command that arrives with
// source=user runs locally and is then fanned out to every peer tagged
// source=mesh; peers never relay a mesh command again, which keeps a fully
// connected topology loop free. Peer failures are logged per peer and never
// fail the broadcast as a whole.
package mesh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pitchcam/internal/api"
	"pitchcam/internal/config"
	"pitchcam/internal/logging"
	"pitchcam/internal/nodeclient"
	"pitchcam/internal/services"
)

// Broadcast operation names, also used as metric labels.
const (
	OpStart    = "start"
	OpStop     = "stop"
	OpShutdown = "shutdown"
	OpStatus   = "status"
)

// Observer is told the outcome of each peer call.
type Observer interface {
	MeshPeerResult(op string, ok bool)
}

// Coordinator fans commands out to peers.
type Coordinator struct {
	self     string
	peers    []Peer
	timeout  time.Duration
	token    string
	logger   *slog.Logger
	observer Observer
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithObserver reports per-peer outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithTimeout overrides the per-peer timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New builds a Coordinator from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Coordinator {
	timeout := time.Duration(cfg.Mesh.PeerTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	c := &Coordinator{
		self:    cfg.Node.ID,
		peers:   Peers(cfg.Mesh, cfg.Node.ID),
		timeout: timeout,
		token:   cfg.API.Token,
		logger:  logging.NewComponentLogger(logger, "mesh"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Self returns this node's role.
func (c *Coordinator) Self() string { return c.self }

// Peers returns the sibling nodes.
func (c *Coordinator) Peers() []Peer { return append([]Peer(nil), c.peers...) }

// BroadcastStart relays a session start to every peer.
func (c *Coordinator) BroadcastStart(ctx context.Context, sessionID string) []api.PeerResult {
	return c.broadcast(ctx, OpStart, func(ctx context.Context, client *nodeclient.Client) error {
		_, err := client.StartRecording(ctx, sessionID, api.SourceMesh)
		return err
	})
}

// BroadcastStop relays a session stop to every peer.
func (c *Coordinator) BroadcastStop(ctx context.Context) []api.PeerResult {
	return c.broadcast(ctx, OpStop, func(ctx context.Context, client *nodeclient.Client) error {
		_, err := client.StopRecording(ctx, api.SourceMesh)
		return err
	})
}

// BroadcastShutdown relays a power-off to every peer.
func (c *Coordinator) BroadcastShutdown(ctx context.Context) []api.PeerResult {
	return c.broadcast(ctx, OpShutdown, func(ctx context.Context, client *nodeclient.Client) error {
		return client.Shutdown(ctx, api.SourceMesh)
	})
}

func (c *Coordinator) broadcast(ctx context.Context, op string, call func(context.Context, *nodeclient.Client) error) []api.PeerResult {
	correlation, ok := services.RequestIDFromContext(ctx)
	if !ok {
		correlation = uuid.NewString()
		ctx = services.WithRequestID(ctx, correlation)
	}
	results := make([]api.PeerResult, len(c.peers))
	var wg sync.WaitGroup
	for i, peer := range c.peers {
		wg.Add(1)
		go func(i int, peer Peer) {
			defer wg.Done()
			peerCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			err := call(peerCtx, c.client(peer))
			results[i] = api.PeerResult{Role: peer.Role, URL: peer.URL, OK: err == nil}
			if err != nil {
				results[i].Error = err.Error()
				logging.WarnWithContext(c.logger, "peer command failed", "mesh_peer_failed",
					logging.String("operation", op),
					logging.String(logging.FieldPeer, peer.Role),
					logging.String("url", peer.URL),
					logging.String(logging.FieldCorrelationID, correlation),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check the peer is powered and on the network"),
					logging.String(logging.FieldImpact, "peer did not receive the command"),
				)
			}
			c.observe(op, err == nil)
		}(i, peer)
	}
	wg.Wait()

	okCount := 0
	for _, r := range results {
		if r.OK {
			okCount++
		}
	}
	c.logger.Info("mesh broadcast complete",
		logging.String("operation", op),
		logging.Int("peers", len(results)),
		logging.Int("ok", okCount),
		logging.String(logging.FieldCorrelationID, correlation),
		logging.String(logging.FieldEventType, "mesh_broadcast"),
	)
	return results
}

// Status queries every peer concurrently. Unreachable peers are reported
// with Online=false and the error instead of being omitted.
func (c *Coordinator) Status(ctx context.Context) []api.PeerStatus {
	results := make([]api.PeerStatus, len(c.peers))
	var wg sync.WaitGroup
	for i, peer := range c.peers {
		wg.Add(1)
		go func(i int, peer Peer) {
			defer wg.Done()
			peerCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			status, err := c.client(peer).Status(peerCtx)
			results[i] = api.PeerStatus{Role: peer.Role, URL: peer.URL}
			if err != nil {
				results[i].Error = err.Error()
				c.logger.Debug("peer status unavailable", logging.String(logging.FieldPeer, peer.Role), logging.Error(err))
			} else {
				results[i].Online = true
				results[i].Status = status
			}
			c.observe(OpStatus, err == nil)
		}(i, peer)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) client(peer Peer) *nodeclient.Client {
	return nodeclient.New(peer.URL, nodeclient.Options{Token: c.token})
}

func (c *Coordinator) observe(op string, ok bool) {
	if c.observer != nil {
		c.observer.MeshPeerResult(op, ok)
	}
}
