package vndb

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ryanm101/vnmeta/internal/metadata"
	"github.com/ryanm101/vnmeta/internal/metrics"
)

const releaseDateLayout = "2006-01-02"

// visualNovelGenre is the only genre VNDB records belong to.
var visualNovelGenre = metadata.Entity{
	ProviderSlug:   Slug,
	ProviderDataID: "visual-novel",
	Name:           "Visual Novel",
}

var errMissingTitle = errors.New("record has no title")

// formattingCode matches VNDB description markup: [b] [i] [u] [s] [spoiler]
// [quote] [raw] [code] and [url=...], with their closing forms.
var formattingCode = regexp.MustCompile(`\[(?:/?(?:b|i|u|s|spoiler|quote|raw|code|url)|url=[^\]]*)\]`)

// mapper turns API records into normalized metadata. It holds no state
// between calls.
type mapper struct {
	images metadata.ImageFetcher
	logger *slog.Logger
}

func newMapper(images metadata.ImageFetcher, logger *slog.Logger) *mapper {
	return &mapper{images: images, logger: logger}
}

// mapSearch projects search hits, dropping records that cannot be listed.
func (m *mapper) mapSearch(records []record) []metadata.MinimalMetadata {
	out := make([]metadata.MinimalMetadata, 0, len(records))
	for _, r := range records {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			m.logger.Warn("skipping vndb search result without title", "id", string(r.ID))
			continue
		}
		cover := strings.TrimSpace(r.imageURL())
		if cover == "" {
			m.logger.Warn("skipping vndb search result without image", "id", string(r.ID), "title", title)
			continue
		}

		out = append(out, metadata.MinimalMetadata{
			ProviderSlug:   Slug,
			ProviderDataID: string(r.ID),
			Title:          title,
			Description:    cleanDescription(r.Description),
			ReleaseDate:    parseReleaseDate(r.Released),
			CoverURL:       cover,
		})
	}
	return out
}

// mapDetails builds the full record. A failing cover download is logged and
// leaves Cover unset.
func (m *mapper) mapDetails(ctx context.Context, r record) (*metadata.Metadata, error) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return nil, &MalformedResponseError{Op: "get " + string(r.ID), Err: errMissingTitle}
	}

	md := &metadata.Metadata{
		ProviderSlug:   Slug,
		ProviderDataID: string(r.ID),
		Title:          title,
		URL:            DetailURL(string(r.ID)),
		ReleaseDate:    parseReleaseDate(r.Released),
		Description:    cleanDescription(r.Description),
		EarlyAccess:    r.DevStatus != nil && *r.DevStatus == devStatusInDevelopment,
		Websites:       make([]string, 0, len(r.Extlinks)),
		Screenshots:    make([]string, 0, len(r.Screenshots)),
		Developers:     entities(r.Developers),
		Genres:         []metadata.Entity{visualNovelGenre},
		Tags:           entities(r.Tags),
	}

	if r.Rating != nil {
		rating := *r.Rating
		md.Rating = &rating
	}
	if r.LengthMinutes != nil {
		playtime := *r.LengthMinutes
		md.Playtime = &playtime
	}
	for _, l := range r.Extlinks {
		if u := strings.TrimSpace(l.URL); u != "" {
			md.Websites = append(md.Websites, u)
		}
	}
	for _, s := range r.Screenshots {
		if u := strings.TrimSpace(s.URL); u != "" {
			md.Screenshots = append(md.Screenshots, u)
		}
	}

	if cover := strings.TrimSpace(r.imageURL()); cover != "" {
		md.CoverURL = &cover
		md.Cover = m.fetchCover(ctx, md.ProviderDataID, cover)
	}

	return md, nil
}

func (m *mapper) fetchCover(ctx context.Context, id, url string) *string {
	if m.images == nil {
		return nil
	}
	ref, err := m.images.Fetch(ctx, url)
	if err != nil {
		metrics.ImageFetches.WithLabelValues("failed").Inc()
		m.logger.Warn("failed to fetch cover image", "id", id, "url", url, "error", err)
		return nil
	}
	return &ref
}

func entities(in []named) []metadata.Entity {
	out := make([]metadata.Entity, 0, len(in))
	for _, n := range in {
		name := strings.TrimSpace(n.Name)
		if name == "" || n.ID == "" {
			continue
		}
		out = append(out, metadata.Entity{
			ProviderSlug:   Slug,
			ProviderDataID: string(n.ID),
			Name:           name,
		})
	}
	return out
}

// parseReleaseDate returns nil unless s is a complete calendar date. VNDB
// also sends partial dates ("2004-04") and "TBA", which stay unset.
func parseReleaseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(releaseDateLayout, strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	return &t
}

// cleanDescription strips formatting codes, returning nil for empty text.
func cleanDescription(s *string) *string {
	if s == nil {
		return nil
	}
	text := strings.TrimSpace(formattingCode.ReplaceAllString(*s, ""))
	if text == "" {
		return nil
	}
	return &text
}

// DetailURL returns the public page for a VNDB id.
func DetailURL(id string) string {
	return siteURL + "/" + id
}
