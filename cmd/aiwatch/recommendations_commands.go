package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aiwatch/internal/localapi"
)

func newRecommendationsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "List cost optimization recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *localapi.Client) error {
				resp, err := client.Recommendations(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				rows := make([][]string, 0, len(resp.Recommendations))
				for _, rec := range resp.Recommendations {
					rows = append(rows, []string{
						rec.ID,
						truncate(rec.Title, 48),
						label(string(rec.Difficulty)),
						formatMoney(rec.EstimatedSavings),
						yesNo(rec.Implemented),
					})
				}
				printTable(cmd, []string{"id", "title", "difficulty", "savings", "implemented"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}, "No recommendations")
				fmt.Fprintf(cmd.OutOrStdout(), "Potential savings: %s\n", formatMoney(resp.PotentialSavings))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.AddCommand(newRecommendationSetCommand(ctx))
	return cmd
}

func newRecommendationSetCommand(ctx *commandContext) *cobra.Command {
	var implemented bool
	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Mark a recommendation implemented (or not, with --implemented=false)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *localapi.Client) error {
				rec, err := client.SetRecommendation(cmd.Context(), id, implemented)
				if err != nil {
					return err
				}
				state := "not implemented"
				if rec.Implemented {
					state = "implemented"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recommendation %s marked %s\n", rec.ID, state)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&implemented, "implemented", true, "Implemented flag to set")
	return cmd
}
