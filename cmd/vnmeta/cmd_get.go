package main

import (
	"fmt"
	"strings"

	"github.com/ryanm101/vnmeta/internal/metadata"
	"github.com/spf13/cobra"
)

func newGetCmd(a *app) *cobra.Command {
	var noImages bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show the full VNDB record for an id (e.g. v4)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := a.newClient(!noImages).GetDetails(cmd.Context(), args[0])
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
	cmd.Flags().BoolVar(&noImages, "no-images", false, "do not download the cover image")
	return cmd
}

// describe renders a record as human-readable lines.
func describe(md *metadata.Metadata) []string {
	lines := []string{
		fmt.Sprintf("%s (%s)", md.Title, md.ProviderDataID),
		"URL:         " + md.URL,
	}
	if md.ReleaseDate != nil {
		lines = append(lines, "Released:    "+md.ReleaseDate.Format("2006-01-02"))
	}
	if md.EarlyAccess {
		lines = append(lines, "Status:      in development")
	}
	if md.Rating != nil {
		lines = append(lines, fmt.Sprintf("Rating:      %.2f", *md.Rating))
	}
	if md.Playtime != nil {
		lines = append(lines, fmt.Sprintf("Playtime:    %dh%02dm", *md.Playtime/60, *md.Playtime%60))
	}
	if len(md.Developers) > 0 {
		lines = append(lines, "Developers:  "+joinNames(md.Developers))
	}
	if len(md.Tags) > 0 {
		lines = append(lines, "Tags:        "+joinNames(md.Tags))
	}
	if md.Cover != nil {
		lines = append(lines, "Cover:       "+*md.Cover)
	} else if md.CoverURL != nil {
		lines = append(lines, "Cover:       "+*md.CoverURL)
	}
	if md.Description != nil {
		lines = append(lines, "", *md.Description)
	}
	return lines
}

func joinNames(entities []metadata.Entity) string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
	}
	return strings.Join(names, ", ")
}
