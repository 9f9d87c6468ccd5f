package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pitchcam/internal/audio"
	"pitchcam/internal/beacon"
	"pitchcam/internal/camera"
	"pitchcam/internal/config"
	"pitchcam/internal/deps"
	"pitchcam/internal/hotplug"
	"pitchcam/internal/integrity"
	"pitchcam/internal/logging"
	"pitchcam/internal/mesh"
	"pitchcam/internal/metrics"
	"pitchcam/internal/network"
	"pitchcam/internal/nodeapi"
	"pitchcam/internal/power"
	"pitchcam/internal/preflight"
	"pitchcam/internal/recorder"
	"pitchcam/internal/sysexec"
	"pitchcam/internal/sysinfo"
	"pitchcam/internal/timesync"
)

// NodeServices are the mode-dependent services behind a camera node.
type NodeServices struct {
	Mode    string
	Driver  camera.Driver
	Player  audio.Player
	Beacon  beacon.Beacon
	Network network.Service
	Power   power.Controller
	Clock   timesync.Source
	Info    sysinfo.Reader
}

// BuildNodeServices picks hardware services or their logging stand-ins.
func BuildNodeServices(cfg *config.Config, mode string, runner sysexec.Runner, logger *slog.Logger) NodeServices {
	svc := NodeServices{Mode: mode, Driver: camera.New(cfg, mode, runner, logger)}
	if mode != config.ModeHardware {
		svc.Player = audio.NewLogged(logger)
		svc.Beacon = beacon.NewLogged(cfg.Node.ID, logger)
		svc.Network = network.NewSimulated(svc.Player, svc.Beacon, logger)
		svc.Power = power.NewLogged(logger)
		svc.Clock = timesync.Simulated{}
		svc.Info = sysinfo.NewSimulated()
		return svc
	}
	svc.Player = audio.NewSpeakerTest(runner)
	if cfg.Network.Beacon {
		svc.Beacon = beacon.NewBluetooth(runner, cfg.Node.ID, logger)
	} else {
		svc.Beacon = beacon.Disabled{}
	}
	svc.Network = network.NewManager(cfg.Network, runner, svc.Player, svc.Beacon, logger)
	svc.Power = power.NewSystem(runner, logger)
	svc.Clock = timesync.NewChrony(runner, logger)
	svc.Info = sysinfo.NewHost()
	return svc
}

// RunNode runs the camera node daemon until a signal arrives.
func RunNode(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	rt, err := start(cmdCtx, cfg, "node", opts, cfg.EnsureNodeDirectories)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger.With(logging.String(logging.FieldNodeID, cfg.Node.ID))

	mode := camera.ResolveMode(cfg.Node.Mode)
	svc := BuildNodeServices(cfg, mode, sysexec.CommandRunner{}, logger)
	if mode == config.ModeHardware {
		logDependencySnapshot(logger, deps.NodeRequirements(cfg))
	}
	m := metrics.New()

	settings := recorder.NewSettings(cfg)
	store := integrity.NewStore(cfg.Paths.RecordingsDir, settings.Identity, svc.Clock, logger)
	rec := recorder.New(svc.Driver, store, preflight.NewChecker(cfg, svc.Info), svc.Player, settings, recorder.Options{
		RecordingsDir:    cfg.Paths.RecordingsDir,
		SnapshotDir:      cfg.Paths.SnapshotDir,
		SelfTestDuration: time.Duration(cfg.Preflight.SelfTestSeconds) * time.Second,
	}, logger)
	coordinator := mesh.New(cfg, logger, mesh.WithObserver(m))

	server, err := nodeapi.New(nodeapi.Deps{
		Config:     cfg,
		ConfigPath: opts.ConfigPath,
		Mode:       mode,
		Recorder:   rec,
		Store:      store,
		Mesh:       coordinator,
		Network:    svc.Network,
		Power:      svc.Power,
		Info:       svc.Info,
		Clock:      svc.Clock,
		Metrics:    m,
	}, logger)
	if err != nil {
		return fmt.Errorf("create node api: %w", err)
	}
	if err := server.Start(rt.ctx); err != nil {
		return err
	}
	defer server.Stop()

	if mode == config.ModeHardware {
		monitor := hotplug.New(logger, nodeHotplugHandler(logger, svc.Info, rec))
		if err := monitor.Start(rt.ctx); err != nil {
			logger.Debug("hotplug monitor unavailable", logging.Error(err))
		}
		defer monitor.Stop()
	}
	announceNetwork(rt.ctx, logger, svc.Network, svc.Beacon)

	logger.Info("camera node started",
		logging.String("mode", mode),
		logging.String("backend", svc.Driver.Capabilities().Backend),
		logging.String("address", server.Addr()),
		logging.String(logging.FieldEventType, "node_started"),
	)

	<-rt.ctx.Done()
	logger.Info("camera node shutting down")
	// Finalizing hashes the whole recording; it is not bounded by a deadline.
	if err := rec.Shutdown(context.WithoutCancel(rt.ctx)); err != nil {
		logging.ErrorWithContext(logger, "active recording not finalized", "shutdown_finalize_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the video file is kept; checksum it manually"),
			logging.String(logging.FieldImpact, "recording has no manifest and will not be ingested"),
		)
	}
	return nil
}

type invalidator interface {
	Invalidate()
}

func nodeHotplugHandler(logger *slog.Logger, info sysinfo.Reader, rec *recorder.Controller) hotplug.Handler {
	return func(_ context.Context, event hotplug.Event) {
		switch event.Kind {
		case hotplug.KindPower:
			if inv, ok := info.(invalidator); ok {
				inv.Invalidate()
			}
		case hotplug.KindCamera:
			if event.Action == "remove" && rec.Recording() {
				logging.ErrorWithContext(logger, "camera removed while recording", "camera_removed",
					logging.String("device", event.Device),
					logging.String(logging.FieldErrorHint, "reseat the camera ribbon and restart the session"),
					logging.String(logging.FieldImpact, "current recording is likely truncated"),
				)
				return
			}
			logger.Info("camera device event",
				logging.String("action", event.Action),
				logging.String("device", event.Device),
			)
		}
	}
}

// announceNetwork publishes the boot-time uplink state on the beacon.
func announceNetwork(ctx context.Context, logger *slog.Logger, net network.Service, b beacon.Beacon) {
	statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	status, err := net.Status(statusCtx)
	if err != nil {
		logger.Debug("network status unavailable at boot", logging.Error(err))
		return
	}
	state := beacon.StatusHome
	if status.APMode {
		state = beacon.StatusAP
	}
	if err := b.Set(statusCtx, state); err != nil {
		logger.Debug("beacon update failed", logging.Error(err))
	}
	logger.Info("network state",
		logging.String("ssid", status.SSID),
		logging.String("ip", status.IP),
		logging.Bool("ap_mode", status.APMode),
	)
}
