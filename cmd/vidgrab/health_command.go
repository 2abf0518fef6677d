package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show server liveness, capacity and dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := ctx.client().Health(cmd.Context())
			if err != nil {
				return wrapClientError(err, ctx.serverURL())
			}
			if wantJSON(cmd, jsonOutput) {
				return writeJSON(cmd, health)
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			fmt.Fprintf(out, "Server %s [%s]\n", ctx.serverURL(), colorStatus(health.Status, colorize))
			printField(out, "Uptime", (time.Duration(health.UptimeSeconds) * time.Second).String())
			printField(out, "Workers", fmt.Sprintf("%d", health.Workers))
			printField(out, "Active jobs", fmt.Sprintf("%d / %d", health.ActiveJobs, health.Capacity))
			printField(out, "Format", health.Format)
			printField(out, "Last error", health.LastError)

			if len(health.Dependencies) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(health.Dependencies))
			for _, dep := range health.Dependencies {
				rows = append(rows, []string{dep.Name, dep.Command, yesNo(dep.Available), yesNo(dep.Optional), dep.Detail})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Dependency", "Command", "Available", "Optional", "Detail"},
				rows,
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print health as JSON")
	return cmd
}
