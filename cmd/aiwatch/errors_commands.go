package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"aiwatch/internal/localapi"
)

func newErrorsCommand(ctx *commandContext) *cobra.Command {
	var status string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "List AI processing errors, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *localapi.Client) error {
				resp, err := client.Errors(cmd.Context(), status)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				rows := make([][]string, 0, len(resp.Errors))
				for _, entry := range resp.Errors {
					rows = append(rows, []string{
						entry.ID,
						formatTime(entry.Timestamp),
						entry.Code,
						label(string(entry.Impact)),
						label(string(entry.Status)),
						valueOr(entry.JobID, "-"),
						truncate(entry.Message, 60),
					})
				}
				printTable(cmd, []string{"id", "time", "code", "impact", "status", "job", "message"}, rows, nil, "No errors")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only entries with this status (new, investigating, resolved)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.AddCommand(newErrorsResolveCommand(ctx))
	return cmd
}

func newErrorsResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id> <status>",
		Short: "Set an error's triage status (new, investigating, resolved)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *localapi.Client) error {
				entry, err := client.ResolveError(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Error %s marked %s\n", entry.ID, entry.Status)
				return nil
			})
		},
	}
}
