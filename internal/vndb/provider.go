package vndb

import (
	"context"
	"regexp"
	"strings"

	"github.com/ryanm101/vnmeta/internal/metadata"
)

var vnID = regexp.MustCompile(`^v?([0-9]+)$`)

// NormalizeID accepts "v17", "V17" or "17" and returns "v17".
func NormalizeID(id string) (string, error) {
	m := vnID.FindStringSubmatch(strings.ToLower(strings.TrimSpace(id)))
	if m == nil {
		return "", &InvalidIDError{ID: id}
	}
	return "v" + m[1], nil
}

// Slug returns the provider identifier.
func (c *Client) Slug() string {
	return Slug
}

// Search returns list projections for titles matching query. Hits without a
// title or cover image are dropped; no hits is an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]metadata.MinimalMetadata, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		c.logger.Debug("empty vndb search query, skipping")
		return []metadata.MinimalMetadata{}, nil
	}

	resp, err := c.query(ctx, "search", Query{
		Filters: []any{"search", "=", query},
		Fields:  searchFields,
		Results: c.pageSize,
	})
	if err != nil {
		return nil, err
	}
	return c.mapper.mapSearch(resp.Results), nil
}

// GetDetails fetches the full record for a visual novel id.
func (c *Client) GetDetails(ctx context.Context, id string) (*metadata.Metadata, error) {
	vid, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}

	resp, err := c.query(ctx, "get", Query{
		Filters: []any{"id", "=", vid},
		Fields:  detailFields,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, &NotFoundError{ID: vid}
	}
	return c.mapper.mapDetails(ctx, resp.Results[0])
}

var _ metadata.Provider = (*Client)(nil)
