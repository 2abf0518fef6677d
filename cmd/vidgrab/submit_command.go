package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"vidgrab/internal/api"
)

const followInterval = time.Second

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var follow bool

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Submit a video URL and print the download link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server := ctx.serverURL()
			client := ctx.client()

			job, done, err := client.Submit(cmd.Context(), args[0])
			if err != nil {
				return wrapClientError(err, server)
			}
			if !done && follow {
				job, err = followJob(cmd.Context(), client, job.ID)
				if err != nil {
					return wrapClientError(err, server)
				}
			}

			if wantJSON(cmd, jsonOutput) {
				if err := writeJSON(cmd, job); err != nil {
					return err
				}
			} else {
				renderJob(cmd.OutOrStdout(), job, isTerminal(cmd.OutOrStdout()))
				if !isTerminalStatus(job.Status) {
					fmt.Fprintf(cmd.OutOrStdout(), "\nStill running; check with `vidgrab jobs show %s`\n", job.ID)
				}
			}
			if job.Status == "failed" {
				return fmt.Errorf("job %s failed: %s", job.ID, job.Detail)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the job as JSON")
	cmd.Flags().BoolVar(&follow, "follow", true, "Poll until the job finishes when the server answers before it is ready")
	return cmd
}

// followJob polls a job until it reaches a terminal status.
func followJob(ctx context.Context, client *api.Client, id string) (*api.Job, error) {
	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		job, err := client.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if isTerminalStatus(job.Status) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTerminalStatus(status string) bool {
	switch status {
	case "ready", "failed", "expired":
		return true
	default:
		return false
	}
}

func renderJob(out io.Writer, job *api.Job, colorize bool) {
	fmt.Fprintf(out, "Job %s [%s]\n", job.ID, colorStatus(job.Status, colorize))
	printField(out, "Title", job.Title)
	printField(out, "Duration", job.Duration)
	printField(out, "Format", job.Format)
	printField(out, "Download", job.DownloadURL)
	printField(out, "Expires", job.ExpiresAt)
	printField(out, "Source", job.SourceURL)
	if job.Progress.Stage != "" && !isTerminalStatus(job.Status) {
		printField(out, "Progress", fmt.Sprintf("%s %.0f%% %s", job.Progress.Stage, job.Progress.Percent, job.Progress.Message))
	}
	if job.ErrorKind != "" {
		printField(out, "Error", job.ErrorKind+": "+job.Detail)
	}
}
