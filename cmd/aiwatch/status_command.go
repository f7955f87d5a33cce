package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aiwatch/internal/errorlog"
	"aiwatch/internal/jobs"
	"aiwatch/internal/localapi"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, refresh and summary counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *localapi.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				renderStatus(cmd, status, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, st localapi.StatusResponse, now time.Time) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	line := func(name string, kind statusKind, message string) {
		fmt.Fprintln(out, renderStatusLine(name, kind, message, colorize))
	}

	fmt.Fprintf(out, "aiwatch (pid %d, owner %s)\n", st.PID, st.OwnerID)

	switch {
	case st.Channel.Authenticated:
		line("Sync channel", statusOK, fmt.Sprintf("live, latency %s", st.Channel.Latency.Round(time.Millisecond)))
	case st.Channel.Connected:
		line("Sync channel", statusWarn, "connected, awaiting authentication")
	default:
		line("Sync channel", statusError, fmt.Sprintf("offline (%d reconnect attempts)", st.Channel.ReconnectAttempts))
	}

	if st.LastRefreshError != "" {
		line("Last refresh", statusError, st.LastRefreshError)
	} else {
		line("Last refresh", statusInfo, formatAgo(st.LastRefresh, now))
	}

	line("Jobs", statusInfo, fmt.Sprintf("%d queued, %d processing, %d completed, %d failed",
		st.JobCounts[jobs.StatusQueued], st.JobCounts[jobs.StatusProcessing],
		st.JobCounts[jobs.StatusCompleted], st.JobCounts[jobs.StatusFailed]))

	costKind := statusInfo
	if st.CostAlert {
		costKind = statusWarn
	}
	line("Spend", costKind, fmt.Sprintf("%s from %s to %s", formatMoney(st.CostTotal), st.CostRange.From, st.CostRange.To))

	quotaKind := statusOK
	switch {
	case st.QuotaRatio >= 0.9:
		quotaKind = statusError
	case st.QuotaRatio >= 0.75:
		quotaKind = statusWarn
	}
	line("Quota", quotaKind, fmt.Sprintf("%.0f%% used", st.QuotaRatio*100))

	providerKind := statusOK
	if st.OperationalProviders < st.Providers {
		providerKind = statusWarn
	}
	line("Providers", providerKind, fmt.Sprintf("%d of %d operational", st.OperationalProviders, st.Providers))

	errorKind := statusOK
	if st.ErrorCounts[errorlog.StatusNew] > 0 {
		errorKind = statusWarn
	}
	line("Errors", errorKind, fmt.Sprintf("%d new, %d investigating, %d resolved",
		st.ErrorCounts[errorlog.StatusNew], st.ErrorCounts[errorlog.StatusInvestigating], st.ErrorCounts[errorlog.StatusResolved]))

	line("Potential savings", statusInfo, formatMoney(st.PotentialSavings))
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Pull the full dashboard state now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *localapi.Client) error {
				if err := client.Refresh(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Refresh complete")
				return nil
			})
		},
	}
}
