package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search VNDB by title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			results, err := a.newClient(false).Search(cmd.Context(), query)
			if err != nil {
				return err
			}

			if a.out.JSON {
				a.out.Result(results)
				return nil
			}
			if len(results) == 0 {
				a.out.Info("No results for %q\n", query)
				return nil
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				released := "-"
				if r.ReleaseDate != nil {
					released = r.ReleaseDate.Format("2006-01-02")
				}
				rows = append(rows, []string{r.ProviderDataID, r.Title, released})
			}
			a.out.Table([]string{"ID", "TITLE", "RELEASED"}, rows)
			return nil
		},
	}
}
