// Package metadata defines the normalized shapes produced by catalog
// providers and the service that scrapes them into a sink.
package metadata

import (
	"context"
	"time"
)

// Entity is a provider-scoped named thing attached to a record: a developer,
// tag or genre. ProviderSlug, ProviderDataID and Name together form its
// natural key.
type Entity struct {
	ProviderSlug   string `json:"provider_slug"`
	ProviderDataID string `json:"provider_data_id"`
	Name           string `json:"name"`
}

// MinimalMetadata is the search-result projection of a catalog record.
type MinimalMetadata struct {
	ProviderSlug   string     `json:"provider_slug"`
	ProviderDataID string     `json:"provider_data_id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description,omitempty"`
	ReleaseDate    *time.Time `json:"release_date,omitempty"`
	CoverURL       string     `json:"cover_url"`
}

// Metadata is the full normalized record for a single catalog entry.
type Metadata struct {
	ProviderSlug   string     `json:"provider_slug"`
	ProviderDataID string     `json:"provider_data_id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`                 // Canonical detail page
	CoverURL       *string    `json:"cover_url,omitempty"` // Remote cover image
	Cover          *string    `json:"cover,omitempty"`     // Stored-image reference from the ImageFetcher
	ReleaseDate    *time.Time `json:"release_date,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Rating         *float64   `json:"rating,omitempty"`   // 10-100
	Playtime       *int       `json:"playtime,omitempty"` // Average length in minutes
	EarlyAccess    bool       `json:"early_access"`
	Websites       []string   `json:"websites"`
	Screenshots    []string   `json:"screenshots"`
	Developers     []Entity   `json:"developers"`
	Genres         []Entity   `json:"genres"`
	Tags           []Entity   `json:"tags"`
}

// Provider fetches metadata from one external catalog.
type Provider interface {
	// Slug returns the stable identifier of the provider (e.g., "vndb").
	Slug() string
	// Search finds records matching the query.
	Search(ctx context.Context, query string) ([]MinimalMetadata, error)
	// GetDetails fetches the full record for a provider id.
	GetDetails(ctx context.Context, id string) (*Metadata, error)
}

// ImageFetcher stores a remote image and returns an opaque reference to the
// stored copy.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Sink receives scraped records.
type Sink interface {
	SaveMetadata(ctx context.Context, md *Metadata) error
}
