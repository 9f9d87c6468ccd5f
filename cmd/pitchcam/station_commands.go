package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pitchcam/internal/api"
	"pitchcam/internal/daemonrun"
	"pitchcam/internal/preflight"
)

func newStationCommand(ctx *commandContext) *cobra.Command {
	stationCmd := &cobra.Command{
		Use:   "station",
		Short: "Aggregation station daemon and status",
	}

	var opts daemonrun.Options
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run ingest and stitching in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts.ConfigPath = ctx.configPath
			return daemonrun.RunStation(cmd.Context(), cfg, opts)
		},
	}
	newDaemonRunFlags(runCmd, &opts)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run the station readiness checks without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureStationDirectories(); err != nil {
				return err
			}
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			return printCheckResults(cmd.OutOrStdout(), "Station preflight", preflight.RunStation(reqCtx, cfg))
		},
	}

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show ingest progress and the stitch queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.stationClient()
			status, err := client.Status(reqCtx)
			if err != nil {
				return wrapConnError(err, ctx.stationURL(), "station")
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			printLines(out, stationStatusLines(status, shouldColorize(out))...)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stitched sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			sessions, err := ctx.stationClient().Sessions(reqCtx)
			if err != nil {
				return wrapConnError(err, ctx.stationURL(), "station")
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No stitched sessions")
				return nil
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{s.SessionID, s.File, humanize.IBytes(uint64(max(s.SizeBytes, 0))), yesNo(s.HasEvents)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Session", "File", "Size", "Events"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	var limit int
	offloadsCmd := &cobra.Command{
		Use:   "offloads",
		Short: "Show recently confirmed offloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			offloads, err := ctx.stationClient().Offloads(reqCtx, limit)
			if err != nil {
				return wrapConnError(err, ctx.stationURL(), "station")
			}
			out := cmd.OutOrStdout()
			if len(offloads) == 0 {
				fmt.Fprintln(out, "No offloads recorded")
				return nil
			}
			fmt.Fprintln(out, renderOffloadTable(offloads))
			return nil
		},
	}
	offloadsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to show")

	stationCmd.AddCommand(runCmd, checkCmd, statusCmd, sessionsCmd, offloadsCmd)
	return stationCmd
}

func stationStatusLines(status *api.StationStatus, colorize bool) []string {
	lines := renderSectionHeader("Station", colorize)
	lines = append(lines, renderStatusLine("Version", statusInfo, status.Version, colorize))
	lines = append(lines, renderStatusLine("Disk free", statusInfo, formatGB(status.DiskFreeGB), colorize))

	ingest := status.Ingest
	ingestMsg := ingest.Status
	if ingest.File != "" {
		ingestMsg = fmt.Sprintf("%s %s from %s (%d%%)", ingest.Status, ingest.File, ingest.Node, ingest.Progress)
	}
	lines = append(lines, renderStatusLine("Ingest", statusInfo, ingestMsg, colorize))
	nodesKind := statusOK
	if ingest.NodesOnline == 0 {
		nodesKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Nodes online", nodesKind, strconv.Itoa(ingest.NodesOnline), colorize))
	lines = append(lines, renderStatusLine("Last scan", statusInfo, formatEpoch(ingest.LastScan), colorize))

	pipeline := status.Pipeline
	active := pipeline.ActiveJob
	if active == "" {
		active = "none"
	}
	lines = append(lines, renderStatusLine("Stitching", statusInfo,
		fmt.Sprintf("active %s, %d queued, %d done", active, pipeline.QueueLength, pipeline.Done), colorize))
	if len(pipeline.DeadLettered) > 0 {
		lines = append(lines, renderStatusLine("Dead-lettered", statusError,
			fmt.Sprintf("%v (retry with `pitchcam stitch retry <session>`)", pipeline.DeadLettered), colorize))
	}
	return lines
}

func renderOffloadTable(offloads []api.Offload) string {
	rows := make([][]string, 0, len(offloads))
	for _, o := range offloads {
		rows = append(rows, []string{
			o.Node,
			o.SessionID,
			o.CameraID,
			humanize.IBytes(uint64(max(o.Bytes, 0))),
			formatStamp(o.ConfirmedAt),
		})
	}
	return renderTable(
		[]string{"Node", "Session", "Camera", "Size", "Confirmed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
