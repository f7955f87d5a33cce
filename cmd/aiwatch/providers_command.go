package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aiwatch/internal/localapi"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var showModels bool
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show AI provider health and model metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *localapi.Client) error {
				resp, err := client.Providers(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				rows := make([][]string, 0, len(resp.Providers))
				for _, p := range resp.Providers {
					quota := "-"
					if p.QuotaTotal > 0 {
						quota = fmt.Sprintf("%.0f%%", p.QuotaUsed/p.QuotaTotal*100)
					}
					rows = append(rows, []string{
						valueOr(p.Name, p.ID),
						label(string(p.Health)),
						fmt.Sprintf("%.0fms", p.LatencyMS),
						fmt.Sprintf("%.2f%%", p.Uptime),
						quota,
						formatTime(p.LastChecked),
					})
				}
				printTable(cmd, []string{"provider", "health", "latency", "uptime", "quota", "checked"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight}, "No providers reported")
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d operational\n", resp.Operational, len(resp.Providers))

				if showModels && len(resp.Models) > 0 {
					rows := make([][]string, 0, len(resp.Models))
					for _, m := range resp.Models {
						rows = append(rows, []string{
							m.Provider,
							valueOr(m.Name, m.ModelID),
							label(string(m.Type)),
							fmt.Sprintf("%.1f%%", m.Accuracy),
							fmt.Sprintf("%.0fms", m.LatencyMS),
							fmt.Sprintf("%.6f", m.CostPerToken),
							fmt.Sprintf("%d", m.UsageCount),
							fmt.Sprintf("%.2f%%", m.ErrorRate),
						})
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"provider", "model", "type", "accuracy", "latency", "cost_per_token", "usage", "error_rate"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showModels, "models", false, "Include per-model metrics")
	return cmd
}
