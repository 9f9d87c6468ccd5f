package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pitchcam/internal/api"
)

func newStitchCommand(ctx *commandContext) *cobra.Command {
	stitchCmd := &cobra.Command{
		Use:   "stitch",
		Short: "Inspect and retry stitch jobs on the station",
	}

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stitch jobs with their attempts and last error",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			jobs, err := ctx.stationClient().Jobs(reqCtx)
			if err != nil {
				return wrapConnError(err, ctx.stationURL(), "station")
			}
			if asJSON {
				return writeJSON(cmd, jobs)
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No stitch jobs")
				return nil
			}
			fmt.Fprintln(out, renderJobTable(jobs))
			return nil
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	retryCmd := &cobra.Command{
		Use:   "retry <session-id>",
		Short: "Clear a dead-lettered session's attempts and queue it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			resp, err := ctx.stationClient().Retry(reqCtx, strings.TrimSpace(args[0]))
			if err != nil {
				return wrapConnError(err, ctx.stationURL(), "station")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s %s\n", resp.SessionID, resp.Status)
			return nil
		},
	}

	stitchCmd.AddCommand(listCmd, retryCmd)
	return stitchCmd
}

func renderJobTable(jobs []api.StitchJob) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.SessionID,
			job.Status,
			strconv.Itoa(job.Attempts),
			formatStamp(job.UpdatedAt),
			truncateText(job.LastError, 60),
		})
	}
	return renderTable(
		[]string{"Session", "Status", "Attempts", "Updated", "Last error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func truncateText(value string, limit int) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	runes := []rune(value)
	if limit <= 3 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
