package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"aiwatch/internal/jobs"
	"aiwatch/internal/localapi"
	"aiwatch/internal/results"
)

type jobFilterFlags struct {
	status   string
	provider string
	search   string
	from     string
	to       string
}

func (f *jobFilterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "Only jobs with this status (queued, processing, completed, failed)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "Only jobs routed to this provider")
	cmd.Flags().StringVar(&f.search, "search", "", "Substring match on job id or video path")
	cmd.Flags().StringVar(&f.from, "from", "", "Created on or after (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&f.to, "to", "", "Created on or before (YYYY-MM-DD or RFC 3339)")
}

func (f *jobFilterFlags) filter() (jobs.Filter, error) {
	return localapi.FilterFromQuery(url.Values{
		"status":   {f.status},
		"provider": {f.provider},
		"search":   {f.search},
		"from":     {f.from},
		"to":       {f.to},
	})
}

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newJobsCommand(ctx),
		newJobCommand(ctx),
		newJobActionCommand(ctx, "retry", "Ask the backend to retry a job"),
		newJobActionCommand(ctx, "cancel", "Ask the backend to cancel a job"),
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var flags jobFilterFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List processing jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *localapi.Client) error {
				list, err := client.Jobs(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, list)
				}
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					rows = append(rows, []string{
						job.ID,
						label(string(job.Status)),
						strconv.Itoa(job.Progress) + "%",
						valueOr(job.Options.PreferredProvider, "-"),
						truncate(job.VideoPath, 48),
						formatTime(job.UpdatedAt),
					})
				}
				printTable(cmd, []string{"id", "status", "progress", "provider", "video", "updated"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight}, "No jobs match")
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "job <id>",
		Short: "Show one job and its analysis results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *localapi.Client) error {
				list, err := client.Jobs(cmd.Context(), jobs.Filter{Search: id})
				if err != nil {
					return err
				}
				var job *jobs.Job
				for i := range list {
					if list[i].ID == id {
						job = &list[i]
						break
					}
				}
				if job == nil {
					return fmt.Errorf("job %s not found", id)
				}

				var result *results.Result
				if job.Status == jobs.StatusCompleted {
					r, err := client.Result(cmd.Context(), id)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warn: result unavailable: %v\n", err)
					} else {
						result = &r
					}
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Job    jobs.Job        `json:"job"`
						Result *results.Result `json:"result,omitempty"`
					}{*job, result})
				}
				renderJob(cmd, *job, result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderJob(cmd *cobra.Command, job jobs.Job, result *results.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s\n", job.ID)
	fmt.Fprintf(out, "  Status:    %s (%d%%)\n", label(string(job.Status)), job.Progress)
	fmt.Fprintf(out, "  Video:     %s\n", job.VideoPath)
	fmt.Fprintf(out, "  Provider:  %s\n", valueOr(job.Options.PreferredProvider, "-"))
	fmt.Fprintf(out, "  Created:   %s\n", formatTime(job.CreatedAt))
	fmt.Fprintf(out, "  Updated:   %s\n", formatTime(job.UpdatedAt))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "  Finished:  %s\n", formatTime(*job.CompletedAt))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error:     %s\n", job.Error)
	}
	if result == nil {
		return
	}
	fmt.Fprintf(out, "\nResult (%s, %s, %.1fs)\n", valueOr(result.Provider, "-"), formatMoney(result.Cost), result.ProcessingTime)
	fmt.Fprintf(out, "  Transcript segments: %d\n", len(result.Transcription))
	fmt.Fprintf(out, "  Chapters:            %d\n", len(result.Chapters))
	if len(result.Chapters) > 0 {
		rows := make([][]string, 0, len(result.Chapters))
		for _, ch := range result.Chapters {
			rows = append(rows, []string{fmt.Sprintf("%.0fs", ch.Start), truncate(ch.Title, 60)})
		}
		fmt.Fprintln(out, renderTable([]string{"start", "title"}, rows, []columnAlignment{alignRight}))
	}
}

func newJobActionCommand(ctx *commandContext, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *localapi.Client) error {
				call := client.Retry
				if action == "cancel" {
					call = client.Cancel
				}
				if err := call(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requested %s for job %s\n", action, id)
				return nil
			})
		},
	}
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
