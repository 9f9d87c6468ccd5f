package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pitchcam/internal/api"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Start or stop a recording session across the mesh",
	}

	startCmd := &cobra.Command{
		Use:   "start <session-id>",
		Short: "Start recording on the target node and relay to its peers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := strings.TrimSpace(args[0])
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			resp, err := client.StartRecording(reqCtx, sessionID, api.SourceUser)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recording session %s to %s\n", resp.SessionID, resp.File)
			return printMeshResults(out, resp.Mesh)
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop recording on the target node and relay to its peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := stopContext(cmd)
			defer cancel()
			client := ctx.nodeClient()
			resp, err := client.StopRecording(reqCtx, api.SourceUser)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			out := cmd.OutOrStdout()
			if resp.Status == "idle" {
				fmt.Fprintln(out, resp.Message)
			} else {
				fmt.Fprintf(out, "Stopped session %s after %s\n", resp.SessionID, formatSeconds(resp.Duration))
				fmt.Fprintf(out, "Video:    %s\nManifest: %s\n", resp.File, resp.Manifest)
			}
			return printMeshResults(out, resp.Mesh)
		},
	}

	sessionCmd.AddCommand(startCmd, stopCmd)
	return sessionCmd
}

// printMeshResults lists per-peer relay outcomes. A peer failure is
// reported but does not fail the command.
func printMeshResults(out io.Writer, results []api.PeerResult) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		state := "ok"
		if !result.OK {
			state = "FAILED"
		}
		rows = append(rows, []string{result.Role, result.URL, state, result.Error})
	}
	fmt.Fprintln(out, renderTable([]string{"Peer", "URL", "Result", "Error"}, rows, nil))
	return nil
}

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a framing snapshot on the target node",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			resp, err := client.Snapshot(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s available at %s%s\n", resp.File, client.BaseURL(), resp.URL)
			return nil
		},
	}
}

func newMeshCommand(ctx *commandContext) *cobra.Command {
	meshCmd := &cobra.Command{
		Use:   "mesh",
		Short: "Inspect the camera mesh",
	}

	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show every peer as seen from the target node",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			resp, err := client.MeshStatus(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMeshTable(resp))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	meshCmd.AddCommand(statusCmd)
	return meshCmd
}

func renderMeshTable(resp *api.MeshStatusResponse) string {
	rows := make([][]string, 0, len(resp.Peers))
	for _, peer := range resp.Peers {
		if !peer.Online || peer.Status == nil {
			rows = append(rows, []string{peer.Role, "offline", "-", "-", "-", peer.Error})
			continue
		}
		state := "idle"
		if peer.Status.Recorder.IsRecording {
			state = "recording " + peer.Status.Recorder.SessionID
		}
		rows = append(rows, []string{
			peer.Role,
			"online",
			state,
			fmt.Sprintf("%d%%", peer.Status.BatteryPercent),
			fmt.Sprintf("%.2f ms", peer.Status.SyncOffsetMS),
			"",
		})
	}
	return renderTable(
		[]string{"Peer", "Link", "Recorder", "Battery", "Sync", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
