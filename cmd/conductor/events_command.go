package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"conductor/internal/ipc"
	"conductor/internal/journal"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent events from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.EventTail(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Events)
				}
				if len(resp.Events) == 0 {
					fmt.Fprintln(stdout, "No events recorded")
					return nil
				}
				fmt.Fprintln(stdout, renderEventsTable(resp.Events))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum number of events to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderEventsTable(events []journal.Event) string {
	rows := make([][]string, 0, len(events))
	for _, evt := range events {
		subject := evt.DeviceID
		if subject == "" {
			subject = evt.ModuleID
		}
		if subject == "" {
			subject = evt.SessionID
		}
		rows = append(rows, []string{
			evt.CreatedAt.Local().Format(time.TimeOnly),
			string(evt.Category),
			evt.EventType,
			subject,
			evt.Message,
		})
	}
	return renderTable(
		[]string{"Time", "Category", "Event", "Subject", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}
