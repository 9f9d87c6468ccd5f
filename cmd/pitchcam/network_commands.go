package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newNetworkCommand(ctx *commandContext) *cobra.Command {
	networkCmd := &cobra.Command{
		Use:   "network",
		Short: "Inspect or change a node's uplink",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the node's SSID, address and AP state",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			status, err := client.NetworkStatus(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			kind := statusOK
			mode := "client"
			if status.APMode {
				kind = statusWarn
				mode = "access point"
			}
			printLines(out,
				renderStatusLine("Mode", kind, mode, colorize),
				renderStatusLine("SSID", statusInfo, status.SSID, colorize),
				renderStatusLine("Address", statusInfo, status.IP, colorize),
			)
			return nil
		},
	}

	var psk string
	connectCmd := &cobra.Command{
		Use:   "connect <ssid>",
		Short: "Join a Wi-Fi network, falling back to AP mode on failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := defaultRequestTimeout
			if cfg := ctx.configValue(); cfg != nil {
				timeout += time.Duration(cfg.Network.ConnectTimeoutSeconds) * time.Second
			}
			reqCtx, cancel := requestContext(cmd, timeout)
			defer cancel()
			client := ctx.nodeClient()
			resp, err := client.Connect(reqCtx, strings.TrimSpace(args[0]), psk)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			out := cmd.OutOrStdout()
			if resp.Status == "connected" {
				fmt.Fprintf(out, "Connected to %s\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "Could not join %s; node fell back to AP mode\n", args[0])
			if resp.Error != "" {
				fmt.Fprintf(out, "Reason: %s\n", resp.Error)
			}
			return nil
		},
	}
	connectCmd.Flags().StringVar(&psk, "psk", "", "Network passphrase")

	apCmd := &cobra.Command{
		Use:   "ap",
		Short: "Switch the node to its own access point",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := requestContext(cmd, 0)
			defer cancel()
			client := ctx.nodeClient()
			resp, err := client.EnableAP(reqCtx)
			if err != nil {
				return wrapConnError(err, client.BaseURL(), "node")
			}
			if resp.Status != "ap_mode" {
				return fmt.Errorf("enable access point: %s", resp.Status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Node is in AP mode")
			return nil
		},
	}

	networkCmd.AddCommand(statusCmd, connectCmd, apCmd)
	return networkCmd
}
