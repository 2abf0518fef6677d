package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidgrab/internal/api"
	"vidgrab/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel jobs on a running server",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range statuses {
				if _, ok := jobs.ParseStatus(raw); !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
			}
			list, err := ctx.client().Jobs(cmd.Context(), statuses...)
			if err != nil {
				return wrapClientError(err, ctx.serverURL())
			}
			if wantJSON(cmd, jsonOutput) {
				return writeJSON(cmd, api.JobListResponse{Jobs: list})
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			colorize := isTerminal(out)
			rows := make([][]string, 0, len(list))
			for _, job := range list {
				rows = append(rows, []string{
					job.ID,
					colorStatus(job.Status, colorize),
					truncate(job.Title, 40),
					job.Duration,
					progressLabel(job),
					job.CreatedAt,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Title", "Duration", "Progress", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable or comma separated)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print jobs as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Job(cmd.Context(), args[0])
			if err != nil {
				return wrapClientError(err, ctx.serverURL())
			}
			if wantJSON(cmd, jsonOutput) {
				return writeJSON(cmd, job)
			}
			renderJob(cmd.OutOrStdout(), job, isTerminal(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the job as JSON")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job, or remove a ready job's artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Cancel(cmd.Context(), args[0])
			if err != nil {
				return wrapClientError(err, ctx.serverURL())
			}
			if wantJSON(cmd, jsonOutput) {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", job.ID, job.Status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the job as JSON")
	return cmd
}

func progressLabel(job api.Job) string {
	if isTerminalStatus(job.Status) {
		if job.ErrorKind != "" {
			return job.ErrorKind
		}
		return ""
	}
	return fmt.Sprintf("%s %.0f%%", job.Progress.Stage, job.Progress.Percent)
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}
