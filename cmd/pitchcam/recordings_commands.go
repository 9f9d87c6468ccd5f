package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"pitchcam/internal/integrity"
)

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	recordingsCmd := &cobra.Command{
		Use:   "recordings",
		Short: "Inspect and clean up recordings held on a node",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List videos and manifests on the target node",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			files, err := client.ListRecordings(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No recordings on node")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"File", "Kind"}, recordingRows(files), nil))
			return nil
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete recordings the station has confirmed as offloaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			resp, err := client.Cleanup(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d offloaded files (%d errors)\n", resp.Deleted, resp.Errors)
			if resp.Errors > 0 {
				return fmt.Errorf("%d files could not be deleted; see node log", resp.Errors)
			}
			return nil
		},
	}

	recordingsCmd.AddCommand(listCmd, cleanupCmd)
	return recordingsCmd
}

func recordingRows(files []string) [][]string {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	rows := make([][]string, 0, len(sorted))
	for _, name := range sorted {
		kind := "video"
		if filepath.Ext(name) == integrity.ManifestExt {
			kind = "manifest"
		}
		rows = append(rows, []string{name, kind})
	}
	return rows
}
