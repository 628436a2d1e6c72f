// File: cmd/apps.go
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/walkthrough/internal/apps"
)

func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "Lists the applications tasks can target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tURL\tLOGIN")
			for _, app := range apps.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", app.Key, app.Name, app.BaseURL, app.LoginRequired)
			}
			return w.Flush()
		},
	}
}
