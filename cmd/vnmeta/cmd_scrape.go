package main

import (
	"fmt"
	"time"

	"github.com/ryanm101/vnmeta/internal/logging"
	"github.com/ryanm101/vnmeta/internal/metadata"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type scrapeResult struct {
	Input string `json:"input"`
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Error string `json:"error,omitempty"`
}

func newScrapeCmd(a *app) *cobra.Command {
	var byQuery bool

	cmd := &cobra.Command{
		Use:   "scrape <id>...",
		Short: "Fetch records and save them to the local database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			service := metadata.NewService(a.newClient(true), st, logging.With("scrape"))

			var bar *progressbar.ProgressBar
			if !a.out.Quiet && !a.out.JSON && len(args) > 1 {
				bar = progressbar.Default(int64(len(args)), "Scraping")
			}

			start := time.Now()
			results := make([]scrapeResult, 0, len(args))
			failed := 0
			for _, in := range args {
				var md *metadata.Metadata
				if byQuery {
					md, err = service.ScrapeByQuery(ctx, in)
				} else {
					md, err = service.Scrape(ctx, in)
				}

				res := scrapeResult{Input: in}
				if err != nil {
					failed++
					res.Error = err.Error()
					if ctx.Err() != nil {
						results = append(results, res)
						break
					}
				} else {
					res.ID, res.Title = md.ProviderDataID, md.Title
				}
				results = append(results, res)

				if bar != nil {
					_ = bar.Add(1)
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}

			if err := st.RefreshMetrics(ctx); err != nil {
				logging.Warn("failed to refresh store metrics", "error", err)
			}

			if a.out.JSON {
				a.out.Result(results)
			} else {
				for _, r := range results {
					if r.Error != "" {
						a.out.Error("✗ %s: %s\n", r.Input, r.Error)
						continue
					}
					a.out.Info("✓ %s (%s)\n", r.Title, r.ID)
				}
				a.out.Info("Scraped %d of %d in %s\n", len(args)-failed, len(args), time.Since(start).Round(time.Millisecond))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d scrapes failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&byQuery, "query", false, "treat arguments as title searches and scrape the closest match")
	return cmd
}
