package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conductor/internal/daemon"
	"conductor/internal/device"
	"conductor/internal/ipc"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List discovered devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Devices()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Devices)
				}
				if len(resp.Devices) == 0 {
					fmt.Fprintln(stdout, "No devices discovered")
					return nil
				}
				fmt.Fprintln(stdout, renderDevicesTable(resp.Devices))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newConnectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "connect <device-id>",
		Short: "Hand a device to its owning module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Connect(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Connected %s\n", resp.DeviceID)
				return nil
			})
		},
	}
}

func newDisconnectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <device-id>",
		Short: "Take a device back from its module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Disconnect(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Disconnected %s\n", resp.DeviceID)
				return nil
			})
		},
	}
}

func renderDevicesTable(devices []daemon.DeviceDTO) string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{
			d.DeviceID,
			titleLabel(d.Family),
			d.Transport,
			deviceStateLabel(d),
			batteryLabel(d),
			signalLabel(d),
			d.OwningModuleID,
		})
	}
	return renderTable(
		[]string{"Device", "Family", "Transport", "State", "Battery", "Signal", "Module"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func deviceStateLabel(d daemon.DeviceDTO) string {
	if d.Coordinator {
		return "coordinator"
	}
	return d.State
}

func batteryLabel(d daemon.DeviceDTO) string {
	if d.Transport != string(device.TransportWireless) {
		return "-"
	}
	return fmt.Sprintf("%d%%", d.BatteryPercent)
}

func signalLabel(d daemon.DeviceDTO) string {
	if d.Transport != string(device.TransportWireless) {
		return "-"
	}
	return fmt.Sprintf("%d dBm", d.SignalDBM)
}
