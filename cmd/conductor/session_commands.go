package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conductor/internal/ipc"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage recording sessions",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Open a new recording session",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionStart()
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Session %s started\n", resp.SessionID)
				fmt.Fprintf(stdout, "Data directory: %s\n", resp.SessionDir)
				return nil
			})
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Close the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SessionStop(); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Session stopped")
				return nil
			})
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "record",
		Short: "Start capture on all running modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SessionRecord(); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Recording")
				return nil
			})
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "pause",
		Short: "Pause capture on all running modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SessionPause(); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Paused")
				return nil
			})
		},
	})

	return sessionCmd
}
