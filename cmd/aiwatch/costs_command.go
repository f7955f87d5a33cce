package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"aiwatch/internal/costs"
	"aiwatch/internal/localapi"
)

func newCostsCommand(ctx *commandContext) *cobra.Command {
	var from, to string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Show daily spend, category breakdown and quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r costs.DateRange
			var err error
			if from != "" {
				if r.From, err = costs.ParseDay(from); err != nil {
					return err
				}
			}
			if to != "" {
				if r.To, err = costs.ParseDay(to); err != nil {
					return err
				}
			}
			return ctx.withClient(func(client *localapi.Client) error {
				resp, err := client.Costs(cmd.Context(), r)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				renderCosts(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day (YYYY-MM-DD), within the watched range")
	cmd.Flags().StringVar(&to, "to", "", "Last day (YYYY-MM-DD), within the watched range")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderCosts(cmd *cobra.Command, resp localapi.CostsResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Spend %s to %s: %s", resp.Range.From, resp.Range.To, formatMoney(resp.Total.Float()))
	if resp.Alert {
		fmt.Fprint(out, " (above alert threshold)")
	}
	fmt.Fprintln(out)

	categories := make(map[costs.Category]struct{})
	for _, roll := range resp.Rollups {
		for category := range roll.Subtotals {
			categories[category] = struct{}{}
		}
	}
	ordered := make([]string, 0, len(categories))
	for category := range categories {
		ordered = append(ordered, string(category))
	}
	sort.Strings(ordered)

	headers := append([]string{"date"}, ordered...)
	headers = append(headers, "total")
	aligns := []columnAlignment{alignLeft}
	rows := make([][]string, 0, len(resp.Rollups))
	for _, roll := range resp.Rollups {
		row := []string{string(roll.Date)}
		for _, category := range ordered {
			row = append(row, formatMoney(roll.Subtotal(costs.Category(category)).Float()))
		}
		rows = append(rows, append(row, formatMoney(roll.Total.Float())))
	}
	for range len(headers) - 1 {
		aligns = append(aligns, alignRight)
	}
	printTable(cmd, headers, rows, aligns, "No spend recorded in range")

	if len(resp.Breakdown) > 0 {
		rows := make([][]string, 0, len(resp.Breakdown))
		for _, slice := range resp.Breakdown {
			share := 0.0
			if resp.Total > 0 {
				share = float64(slice.Amount) / float64(resp.Total) * 100
			}
			rows = append(rows, []string{label(string(slice.Category)), formatMoney(slice.Amount.Float()), fmt.Sprintf("%.1f%%", share)})
		}
		fmt.Fprintln(out, renderTable([]string{"category", "amount", "share"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	}

	if q := resp.Quota; q != nil {
		fmt.Fprintf(out, "Quota (%s): %.0f of %.0f used (%.0f%%), resets %s\n",
			label(string(q.Tier)), q.Used, q.Total, q.Ratio()*100, q.ResetDate.Format("2006-01-02"))
	}
}
