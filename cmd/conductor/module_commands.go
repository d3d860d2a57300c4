package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"conductor/internal/daemon"
	"conductor/internal/ipc"
)

func newModulesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List module processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Modules()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Modules)
				}
				if len(resp.Modules) == 0 {
					fmt.Fprintln(stdout, "No module processes")
					return nil
				}
				fmt.Fprintln(stdout, renderModulesTable(resp.Modules))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newModuleCommand(ctx *commandContext) *cobra.Command {
	moduleCmd := &cobra.Command{
		Use:   "module",
		Short: "Control individual module processes",
	}

	moduleCmd.AddCommand(&cobra.Command{
		Use:   "start <module-id>",
		Short: "Launch a module process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ModuleStart(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Module %s started\n", resp.ModuleID)
				return nil
			})
		},
	})

	moduleCmd.AddCommand(&cobra.Command{
		Use:   "stop <module-id>",
		Short: "Stop a module process gracefully",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ModuleStop(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Module %s stopped\n", resp.ModuleID)
				return nil
			})
		},
	})

	return moduleCmd
}

func renderModulesTable(modules []daemon.ModuleInfo) string {
	rows := make([][]string, 0, len(modules))
	for _, m := range modules {
		rows = append(rows, []string{
			m.ModuleID,
			string(m.State),
			strings.Join(m.AssignedDevices, ", "),
			m.LastError,
		})
	}
	return renderTable(
		[]string{"Module", "State", "Devices", "Last Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
	)
}
