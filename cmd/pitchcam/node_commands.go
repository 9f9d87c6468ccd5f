package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"pitchcam/internal/api"
	"pitchcam/internal/camera"
	"pitchcam/internal/config"
	"pitchcam/internal/daemonrun"
	"pitchcam/internal/preflight"
	"pitchcam/internal/sysinfo"
	"pitchcam/internal/timesync"
)

func newNodeCommand(ctx *commandContext) *cobra.Command {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Camera node daemon and diagnostics",
	}
	nodeCmd.AddCommand(newNodeRunCommand(ctx))
	nodeCmd.AddCommand(newNodeStatusCommand(ctx))
	nodeCmd.AddCommand(newNodeCheckCommand(ctx))
	nodeCmd.AddCommand(newNodeSelfTestCommand(ctx))
	nodeCmd.AddCommand(newNodePingCommand(ctx))
	nodeCmd.AddCommand(newNodeSettingsCommand(ctx))
	nodeCmd.AddCommand(newNodePowerCommands(ctx)...)
	return nodeCmd
}

func newDaemonRunFlags(cmd *cobra.Command, opts *daemonrun.Options) {
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&opts.Development, "verbose", false, "Include source locations in log output")
}

func newNodeRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the camera node daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts.ConfigPath = ctx.configPath
			return daemonrun.RunNode(cmd.Context(), cfg, opts)
		},
	}
	newDaemonRunFlags(cmd, &opts)
	return cmd
}

func newNodeStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorder, sync and resource status of a node",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			status, err := client.Status(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			printLines(out, nodeStatusLines(status, shouldColorize(out))...)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func nodeStatusLines(status *api.NodeStatus, colorize bool) []string {
	lines := renderSectionHeader(fmt.Sprintf("Node %s", status.NodeID), colorize)

	rec := status.Recorder
	if rec.IsRecording {
		lines = append(lines, renderStatusLine("Recorder", statusOK,
			fmt.Sprintf("recording %s (%s)", rec.SessionID, formatSeconds(rec.Duration)), colorize))
	} else {
		lines = append(lines, renderStatusLine("Recorder", statusInfo, "idle", colorize))
	}

	lines = append(lines, renderStatusLine("Mode", statusInfo, fmt.Sprintf("%s (%s)", status.Mode, status.Backend), colorize))

	syncKind := statusWarn
	switch status.SyncStatus {
	case timesync.StatusSynced, timesync.StatusMockSynced:
		syncKind = statusOK
	}
	lines = append(lines, renderStatusLine("Clock sync", syncKind,
		fmt.Sprintf("%s, offset %.2f ms", status.SyncStatus, status.SyncOffsetMS), colorize))

	lines = append(lines, renderStatusLine("Disk free", statusInfo, formatGB(status.DiskFreeGB), colorize))

	batteryKind := statusOK
	if status.BatteryPercent < 20 && !status.Charging {
		batteryKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Battery", batteryKind,
		fmt.Sprintf("%d%% (charging: %s)", status.BatteryPercent, yesNo(status.Charging)), colorize))
	lines = append(lines, renderStatusLine("Temperature", statusInfo, fmt.Sprintf("%.1f C", status.TempC), colorize))
	lines = append(lines, renderStatusLine("Version", statusInfo, status.Version, colorize))
	return lines
}

func newNodeCheckCommand(ctx *commandContext) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the readiness checks locally, or on the target node with --remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				reqCtx, cancel := requestContext(cmd, 0)
				defer cancel()
				client := ctx.nodeClient()
				resp, err := client.Preflight(reqCtx)
				if err != nil {
					return wrapConnError(err, client.BaseURL(), "node")
				}
				results := make([]preflight.Result, 0, len(resp.Checks))
				for _, check := range resp.Checks {
					results = append(results, preflight.Result{Name: check.Name, Passed: check.Passed, Detail: check.Detail})
				}
				return printCheckResults(cmd.OutOrStdout(), "Preflight on "+client.BaseURL(), results)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureNodeDirectories(); err != nil {
				return err
			}
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			results := preflight.RunNode(reqCtx, cfg, checkInfo(cfg))
			return printCheckResults(cmd.OutOrStdout(), fmt.Sprintf("Node %s preflight", cfg.Node.ID), results)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Ask the running node daemon instead of checking this host")
	return cmd
}

func checkInfo(cfg *config.Config) sysinfo.Reader {
	if camera.ResolveMode(cfg.Node.Mode) == config.ModeHardware {
		return sysinfo.NewHost()
	}
	return sysinfo.NewSimulated()
}

func printCheckResults(out io.Writer, title string, results []preflight.Result) error {
	colorize := shouldColorize(out)
	lines := renderSectionHeader(title, colorize)
	failed := 0
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
			failed++
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	printLines(out, lines...)
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(results))
	}
	fmt.Fprintln(out, "All checks passed")
	return nil
}

func newNodeSelfTestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Record a short clip on the node and report whether it worked",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := defaultRequestTimeout
			if cfg := ctx.configValue(); cfg != nil {
				timeout += time.Duration(cfg.Preflight.SelfTestSeconds) * time.Second
			}
			reqCtx, cancel := requestContext(cmd, timeout)
			defer cancel()
			client := ctx.nodeClient()
			fmt.Fprintf(cmd.OutOrStdout(), "Running self test on %s...\n", client.BaseURL())
			result, err := client.SelfTest(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			return printSelfTest(cmd.OutOrStdout(), result)
		},
	}
}

func printSelfTest(out io.Writer, result *api.SelfTestResponse) error {
	colorize := shouldColorize(out)
	if !result.Passed {
		printLines(out, renderStatusLine("Self test", statusError, result.Error, colorize))
		return fmt.Errorf("self test failed: %s", result.Error)
	}
	printLines(out, renderStatusLine("Self test", statusOK,
		fmt.Sprintf("%s, %d bytes in %s", result.File, result.Bytes, formatSeconds(result.Duration)), colorize))
	return nil
}

// stopContext outlives a cancelled command so a stop request still lands.
func stopContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := context.Background()
	if cmd.Context() != nil {
		parent = context.WithoutCancel(cmd.Context())
	}
	return context.WithTimeout(parent, defaultRequestTimeout)
}

func newNodePingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the node daemon answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			health, err := client.Health(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (version %s, %s mode)\n", client.BaseURL(), health.Status, health.Version, health.Mode)
			return nil
		},
	}
}

func newNodeSettingsCommand(ctx *commandContext) *cobra.Command {
	var update api.NodeSettings
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the node's capture settings, or change them with flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			current, err := client.Settings(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			out := cmd.OutOrStdout()
			flags := cmd.Flags()
			if !flags.Changed("id") && !flags.Changed("width") && !flags.Changed("height") &&
				!flags.Changed("fps") && !flags.Changed("bitrate") {
				printSettings(out, *current)
				return nil
			}

			next := *current
			if flags.Changed("id") {
				next.NodeID = update.NodeID
			}
			if flags.Changed("width") {
				next.Width = update.Width
			}
			if flags.Changed("height") {
				next.Height = update.Height
			}
			if flags.Changed("fps") {
				next.FPS = update.FPS
			}
			if flags.Changed("bitrate") {
				next.Bitrate = update.Bitrate
			}
			resp, err := client.SaveSettings(reqCtx, next)
			if err != nil {
				return err
			}
			printSettings(out, resp.Config)
			if resp.RestartRequired {
				fmt.Fprintln(out, "Node id changed; restart the node daemon to apply it")
			} else {
				fmt.Fprintln(out, "Saved; applies to the next recording")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&update.NodeID, "id", "", "Camera role (CAM_L, CAM_C, CAM_R)")
	cmd.Flags().IntVar(&update.Width, "width", 0, "Capture width")
	cmd.Flags().IntVar(&update.Height, "height", 0, "Capture height")
	cmd.Flags().IntVar(&update.FPS, "fps", 0, "Capture frame rate")
	cmd.Flags().IntVar(&update.Bitrate, "bitrate", 0, "Encoder bitrate in bits per second")
	return cmd
}

func printSettings(out io.Writer, s api.NodeSettings) {
	fmt.Fprintln(out, renderTable(
		[]string{"Node", "Resolution", "FPS", "Bitrate"},
		[][]string{{s.NodeID, fmt.Sprintf("%dx%d", s.Width, s.Height), fmt.Sprintf("%d", s.FPS), fmt.Sprintf("%d", s.Bitrate)}},
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
	))
}

func newNodePowerCommands(ctx *commandContext) []*cobra.Command {
	shutdownCmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Power off the target node and relay to its peers",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			if err := client.Shutdown(reqCtx, api.SourceUser); err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Shutdown requested")
			return nil
		},
	}
	rebootCmd := &cobra.Command{
		Use:   "reboot",
		Short: "Restart the target node",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			if err := client.Reboot(reqCtx); err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Reboot requested")
			return nil
		},
	}
	return []*cobra.Command{shutdownCmd, rebootCmd}
}
