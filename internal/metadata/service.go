package metadata

import (
	"context"
	"fmt"
	"log/slog"
)

// Service scrapes records from a provider into a sink.
type Service struct {
	provider Provider
	sink     Sink
	logger   *slog.Logger
}

// NewService creates a new metadata service.
func NewService(p Provider, s Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: p, sink: s, logger: logger}
}

// Provider returns the provider the service scrapes from.
func (s *Service) Provider() Provider {
	return s.provider
}

// Scrape fetches the full record for id and saves it.
func (s *Service) Scrape(ctx context.Context, id string) (*Metadata, error) {
	details, err := s.provider.GetDetails(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get details: %w", err)
	}

	if err := s.sink.SaveMetadata(ctx, details); err != nil {
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}

	s.logger.Info("scraped record",
		"provider", details.ProviderSlug,
		"id", details.ProviderDataID,
		"title", details.Title)
	return details, nil
}

// ScrapeByQuery searches for query and scrapes the hit whose title is closest
// to it.
func (s *Service) ScrapeByQuery(ctx context.Context, query string) (*Metadata, error) {
	results, err := s.provider.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no results found for %q", query)
	}

	best := RankHits(query, results)[0]
	s.logger.Debug("picked search hit",
		"query", query,
		"id", best.Hit.ProviderDataID,
		"title", best.Hit.Title,
		"confidence", best.Confidence)
	return s.Scrape(ctx, best.Hit.ProviderDataID)
}
