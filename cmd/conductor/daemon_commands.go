package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"conductor/internal/ipc"
	"conductor/internal/shutdown"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, device, and module status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				runningKind := statusOK
				runningDetail := fmt.Sprintf("pid %d", status.PID)
				if !status.Running {
					runningKind = statusWarn
					runningDetail = "stopped"
				}
				fmt.Fprintln(stdout, renderStatusLine("Running", runningKind, runningDetail, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Shutdown phase", phaseKind(status.ShutdownPhase), status.ShutdownPhase, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Devices", statusInfo, fmt.Sprintf("%d discovered", status.DeviceCount), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Journal", statusInfo, status.JournalPath, colorize))

				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Session", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if status.SessionID == "" {
					fmt.Fprintln(stdout, renderStatusLine("Active", statusInfo, "no", colorize))
				} else {
					fmt.Fprintln(stdout, renderStatusLine("Active", statusOK, status.SessionID, colorize))
					fmt.Fprintln(stdout, renderStatusLine("Directory", statusInfo, status.SessionDir, colorize))
				}

				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Modules", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(status.Modules) == 0 {
					fmt.Fprintln(stdout, "No module processes")
					return nil
				}
				fmt.Fprintln(stdout, renderModulesTable(status.Modules))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of the rendered report")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Shut the daemon down gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			err := ctx.withClient(func(client *ipc.Client) error {
				_, err := client.Shutdown()
				return err
			})
			if err != nil {
				if strings.Contains(err.Error(), "not found") {
					fmt.Fprintln(stdout, "Daemon is not running")
					return nil
				}
				return err
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
}

func phaseKind(phase string) statusKind {
	switch phase {
	case string(shutdown.PhaseRunning):
		return statusOK
	case string(shutdown.PhaseComplete):
		return statusInfo
	default:
		return statusWarn
	}
}
