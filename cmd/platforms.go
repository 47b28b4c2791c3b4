package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func platformsCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List the configured platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newRegistryApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDESCRIPTION")
			for _, p := range a.registry.Platforms() {
				fmt.Fprintf(tw, "%s\t%s\n", p.ID, p.Description)
			}
			return tw.Flush()
		},
	}
}
