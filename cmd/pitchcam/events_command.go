package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pitchcam/internal/api"
	"pitchcam/internal/detections"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Read per-frame detection event logs",
	}

	var limit int
	var local bool
	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Summarize a session's detection events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := strings.TrimSpace(args[0])
			var resp *api.SessionEventsResponse
			if local {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				events, err := detections.Read(detections.LogPath(cfg.Station.EventsDir, sessionID), limit)
				if err != nil {
					return err
				}
				resp = &api.SessionEventsResponse{SessionID: sessionID, Summary: detections.Summarize(events), Events: events}
			} else {
				reqCtx, cancel := requestContext(cmd, 0)
				defer cancel()
				var err error
				resp, err = ctx.stationClient().Events(reqCtx, sessionID, limit)
				if err != nil {
					return wrapConnError(err, ctx.stationURL(), "station")
				}
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			printEventSummary(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	showCmd.Flags().IntVar(&limit, "limit", 1000, "Maximum events to read")
	showCmd.Flags().BoolVar(&local, "local", false, "Read the log from station.events_dir instead of the station API")
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Output events as JSON")

	eventsCmd.AddCommand(showCmd)
	return eventsCmd
}

func printEventSummary(out io.Writer, resp *api.SessionEventsResponse) {
	colorize := shouldColorize(out)
	s := resp.Summary
	lines := renderSectionHeader("Session "+resp.SessionID, colorize)
	lines = append(lines,
		renderStatusLine("Frames", statusInfo, fmt.Sprintf("%d", s.Frames), colorize),
		renderStatusLine("Ball visible", statusInfo, fmt.Sprintf("%d frames (%s)", s.BallFrames, percent(s.BallFrames, s.Frames)), colorize),
		renderStatusLine("Max players", statusInfo, fmt.Sprintf("%d", s.MaxPlayers), colorize),
		renderStatusLine("Span", statusInfo, fmt.Sprintf("%.2fs to %.2fs", s.First, s.Last), colorize),
	)
	printLines(out, lines...)
}

func percent(part, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(part)*100/float64(total))
}
