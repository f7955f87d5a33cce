package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"aiwatch/internal/export"
	"aiwatch/internal/localapi"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var kind, format, output string
	var flags jobFilterFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export jobs, costs or errors as JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedKind, err := export.ParseKind(kind)
			if err != nil {
				return err
			}
			parsedFormat, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *localapi.Client) error {
				body, err := client.Export(cmd.Context(), string(parsedKind), string(parsedFormat), filter)
				if err != nil {
					return err
				}
				target := strings.TrimSpace(output)
				if target == "" || target == "-" {
					_, err := cmd.OutOrStdout().Write(body)
					return err
				}
				if err := os.WriteFile(target, body, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s export to %s\n", parsedKind, target)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "all", "What to export: jobs, costs, errors or all")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	flags.register(cmd)
	return cmd
}
