package main

import (
	"strings"

	"github.com/ryanm101/vnmeta/internal/vndb"
	"github.com/spf13/cobra"
)

func newRecordsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Work with scraped records in the local database",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			records, err := st.ListMetadata(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.out.JSON {
				a.out.Result(records)
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				released := "-"
				if r.ReleaseDate != nil {
					released = r.ReleaseDate.Format("2006-01-02")
				}
				rows = append(rows, []string{r.ProviderSlug, r.ProviderDataID, r.Title, released})
			}
			a.out.Table([]string{"PROVIDER", "ID", "TITLE", "RELEASED"}, rows)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "maximum number of records (0 for all)")

	show := &cobra.Command{
		Use:   "show <provider>/<id>",
		Short: "Show a stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, id := parseKey(args[0])

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			md, err := st.GetMetadata(cmd.Context(), slug, id)
			if err != nil {
				return err
			}
			if a.out.JSON {
				a.out.Result(md)
				return nil
			}
			a.out.Result(describe(md))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <provider>/<id>",
		Short: "Delete a stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug, id := parseKey(args[0])

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.DeleteMetadata(cmd.Context(), slug, id); err != nil {
				return err
			}
			a.out.Info("Deleted %s/%s\n", slug, id)
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

// parseKey splits "provider/id". A bare id belongs to VNDB.
func parseKey(s string) (slug, id string) {
	if slug, id, ok := strings.Cut(s, "/"); ok {
		return slug, id
	}
	return vndb.Slug, s
}
