package daemonrun

import (
	"context"
	"fmt"
	"sync"

	"pitchcam/internal/config"
	"pitchcam/internal/deps"
	"pitchcam/internal/ingest"
	"pitchcam/internal/ledger"
	"pitchcam/internal/logging"
	"pitchcam/internal/metrics"
	"pitchcam/internal/notifications"
	"pitchcam/internal/station"
	"pitchcam/internal/stitch"
	"pitchcam/internal/sysinfo"
)

// RunStation runs the ingest and stitch loops plus the station API until a
// signal arrives.
func RunStation(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	rt, err := start(cmdCtx, cfg, "station", opts, cfg.EnsureStationDirectories)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger
	logDependencySnapshot(logger, deps.StationRequirements(cfg))

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		logger.Error("open ledger", logging.Error(err))
		return err
	}
	defer store.Close()

	m := metrics.New()
	notifier := notifications.NewService(cfg)
	agent := ingest.FromConfig(cfg, store, notifier, m, logger)
	pipeline := stitch.FromConfig(cfg, store, notifier, m, logger)

	server, err := station.New(station.Deps{
		Config:   cfg,
		Ingest:   agent,
		Pipeline: pipeline,
		History:  store,
		Info:     sysinfo.NewHost(),
		Metrics:  m,
	}, logger)
	if err != nil {
		return fmt.Errorf("create station api: %w", err)
	}
	if err := server.Start(rt.ctx); err != nil {
		return err
	}
	defer server.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := agent.Run(rt.ctx); err != nil {
			logger.Error("ingest loop stopped", logging.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := pipeline.Run(rt.ctx); err != nil {
			logger.Error("stitch loop stopped", logging.Error(err))
		}
	}()

	logger.Info("station started",
		logging.Int("nodes", len(cfg.Station.Nodes)),
		logging.String("raw_dir", cfg.Station.RawDir),
		logging.String("output_dir", cfg.Station.OutputDir),
		logging.String("ledger", store.Path()),
		logging.String("address", server.Addr()),
		logging.String(logging.FieldEventType, "station_started"),
	)

	<-rt.ctx.Done()
	logger.Info("station shutting down")
	wg.Wait()
	return nil
}
