package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ryanm101/vnmeta/internal/metadata"
	"github.com/ryanm101/vnmeta/internal/metrics"
)

const dateLayout = "2006-01-02"

// entityTable names the entity table and its link table for one kind.
type entityTable struct {
	table string
	link  string
}

var (
	developerTables = entityTable{table: "developers", link: "record_developers"}
	genreTables     = entityTable{table: "genres", link: "record_genres"}
	tagTables       = entityTable{table: "tags", link: "record_tags"}
)

var _ metadata.Sink = (*Store)(nil)

// Summary is a stored record as shown in listings.
type Summary struct {
	ProviderSlug   string     `json:"provider_slug"`
	ProviderDataID string     `json:"provider_data_id"`
	Title          string     `json:"title"`
	ReleaseDate    *time.Time `json:"release_date,omitempty"`
	ScrapedAt      time.Time  `json:"scraped_at"`
}

// SaveMetadata inserts or replaces a record together with its entities and
// links. It implements metadata.Sink.
func (s *Store) SaveMetadata(ctx context.Context, md *metadata.Metadata) error {
	if md == nil || md.ProviderSlug == "" || md.ProviderDataID == "" {
		return &RecordError{Op: "save metadata", Err: fmt.Errorf("%w: record needs provider slug and id", ErrInvalidArg)}
	}
	key := md.ProviderSlug + "/" + md.ProviderDataID

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError(err, "save metadata", key)
	}
	defer func() { _ = tx.Rollback() }()

	var releaseDate sql.NullString
	if md.ReleaseDate != nil {
		releaseDate = sql.NullString{String: md.ReleaseDate.Format(dateLayout), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (provider_slug, provider_data_id, title, url, cover_url, cover,
			release_date, description, rating, playtime, early_access, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider_slug, provider_data_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			cover_url = excluded.cover_url,
			cover = excluded.cover,
			release_date = excluded.release_date,
			description = excluded.description,
			rating = excluded.rating,
			playtime = excluded.playtime,
			early_access = excluded.early_access,
			scraped_at = CURRENT_TIMESTAMP
	`, md.ProviderSlug, md.ProviderDataID, md.Title, md.URL,
		nullString(md.CoverURL), nullString(md.Cover), releaseDate, nullString(md.Description),
		nullFloat(md.Rating), nullInt(md.Playtime), md.EarlyAccess)
	if err != nil {
		return wrapDBError(err, "save metadata", key)
	}

	for _, set := range []struct {
		tables   entityTable
		entities []metadata.Entity
	}{
		{developerTables, md.Developers},
		{genreTables, md.Genres},
		{tagTables, md.Tags},
	} {
		if err := saveEntities(ctx, tx, md, set.tables, set.entities); err != nil {
			return wrapDBError(err, "save "+set.tables.table, key)
		}
	}

	if err := saveURLs(ctx, tx, md, "websites", md.Websites); err != nil {
		return wrapDBError(err, "save websites", key)
	}
	if err := saveURLs(ctx, tx, md, "screenshots", md.Screenshots); err != nil {
		return wrapDBError(err, "save screenshots", key)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError(err, "save metadata", key)
	}
	return nil
}

// saveEntities upserts entities by natural key and replaces the record's links.
func saveEntities(ctx context.Context, tx *sql.Tx, md *metadata.Metadata, t entityTable, entities []metadata.Entity) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+t.link+" WHERE record_slug = ? AND record_id = ?",
		md.ProviderSlug, md.ProviderDataID); err != nil {
		return err
	}

	for i, e := range entities {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO `+t.table+` (provider_slug, provider_data_id, name) VALUES (?, ?, ?)
			ON CONFLICT(provider_slug, provider_data_id) DO UPDATE SET name = excluded.name
		`, e.ProviderSlug, e.ProviderDataID, e.Name); err != nil {
			return err
		}
		// Providers occasionally list the same entity twice; the first position wins.
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO `+t.link+` (record_slug, record_id, entity_slug, entity_id, position)
			VALUES (?, ?, ?, ?, ?)
		`, md.ProviderSlug, md.ProviderDataID, e.ProviderSlug, e.ProviderDataID, i); err != nil {
			return err
		}
	}
	return nil
}

func saveURLs(ctx context.Context, tx *sql.Tx, md *metadata.Metadata, table string, urls []string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE record_slug = ? AND record_id = ?",
		md.ProviderSlug, md.ProviderDataID); err != nil {
		return err
	}
	for i, u := range urls {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (record_slug, record_id, position, url) VALUES (?, ?, ?, ?)",
			md.ProviderSlug, md.ProviderDataID, i, u); err != nil {
			return err
		}
	}
	return nil
}

// GetMetadata loads a stored record. It returns ErrNotFound when no record
// matches.
func (s *Store) GetMetadata(ctx context.Context, slug, id string) (*metadata.Metadata, error) {
	key := slug + "/" + id

	var (
		md          = &metadata.Metadata{ProviderSlug: slug, ProviderDataID: id}
		coverURL    sql.NullString
		cover       sql.NullString
		releaseDate sql.NullString
		description sql.NullString
		rating      sql.NullFloat64
		playtime    sql.NullInt64
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT title, url, cover_url, cover, release_date, description, rating, playtime, early_access
		FROM records WHERE provider_slug = ? AND provider_data_id = ?
	`, slug, id).Scan(&md.Title, &md.URL, &coverURL, &cover, &releaseDate, &description, &rating, &playtime, &md.EarlyAccess)
	if err != nil {
		return nil, wrapDBError(err, "get metadata", key)
	}

	md.CoverURL = stringPtr(coverURL)
	md.Cover = stringPtr(cover)
	md.ReleaseDate = datePtr(releaseDate)
	md.Description = stringPtr(description)
	if rating.Valid {
		v := rating.Float64
		md.Rating = &v
	}
	if playtime.Valid {
		v := int(playtime.Int64)
		md.Playtime = &v
	}

	if md.Developers, err = s.loadEntities(ctx, slug, id, developerTables); err != nil {
		return nil, wrapDBError(err, "get developers", key)
	}
	if md.Genres, err = s.loadEntities(ctx, slug, id, genreTables); err != nil {
		return nil, wrapDBError(err, "get genres", key)
	}
	if md.Tags, err = s.loadEntities(ctx, slug, id, tagTables); err != nil {
		return nil, wrapDBError(err, "get tags", key)
	}
	if md.Websites, err = s.loadURLs(ctx, slug, id, "websites"); err != nil {
		return nil, wrapDBError(err, "get websites", key)
	}
	if md.Screenshots, err = s.loadURLs(ctx, slug, id, "screenshots"); err != nil {
		return nil, wrapDBError(err, "get screenshots", key)
	}

	return md, nil
}

func (s *Store) loadEntities(ctx context.Context, slug, id string, t entityTable) ([]metadata.Entity, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT e.provider_slug, e.provider_data_id, e.name
		FROM `+t.link+` l
		JOIN `+t.table+` e ON e.provider_slug = l.entity_slug AND e.provider_data_id = l.entity_id
		WHERE l.record_slug = ? AND l.record_id = ?
		ORDER BY l.position
	`, slug, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]metadata.Entity, 0)
	for rows.Next() {
		var e metadata.Entity
		if err := rows.Scan(&e.ProviderSlug, &e.ProviderDataID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) loadURLs(ctx context.Context, slug, id, table string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT url FROM "+table+" WHERE record_slug = ? AND record_id = ? ORDER BY position",
		slug, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]string, 0)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListMetadata returns stored records ordered by title. A limit of 0 returns
// everything.
func (s *Store) ListMetadata(ctx context.Context, limit int) ([]Summary, error) {
	query := `
		SELECT provider_slug, provider_data_id, title, release_date,
			strftime('%Y-%m-%dT%H:%M:%SZ', scraped_at)
		FROM records
		ORDER BY title COLLATE NOCASE, provider_slug, provider_data_id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err, "list metadata", "")
	}
	defer func() { _ = rows.Close() }()

	out := make([]Summary, 0)
	for rows.Next() {
		var (
			sum         Summary
			releaseDate sql.NullString
			scrapedAt   sql.NullString
		)
		if err := rows.Scan(&sum.ProviderSlug, &sum.ProviderDataID, &sum.Title, &releaseDate, &scrapedAt); err != nil {
			return nil, wrapDBError(err, "list metadata", "")
		}
		sum.ReleaseDate = datePtr(releaseDate)
		if scrapedAt.Valid {
			sum.ScrapedAt, _ = time.Parse(time.RFC3339, scrapedAt.String)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err, "list metadata", "")
	}
	return out, nil
}

// DeleteMetadata removes a stored record and its links. Shared entities stay.
func (s *Store) DeleteMetadata(ctx context.Context, slug, id string) error {
	key := slug + "/" + id
	res, err := s.conn.ExecContext(ctx,
		"DELETE FROM records WHERE provider_slug = ? AND provider_data_id = ?", slug, id)
	if err != nil {
		return wrapDBError(err, "delete metadata", key)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &RecordError{Op: "delete metadata", Key: key, Err: ErrNotFound}
	}
	return nil
}

// Counts returns the number of stored records, developers and tags.
func (s *Store) Counts(ctx context.Context) (metrics.StoreCounts, error) {
	var c metrics.StoreCounts
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM records),
			(SELECT COUNT(*) FROM developers),
			(SELECT COUNT(*) FROM tags)
	`).Scan(&c.Records, &c.Developers, &c.Tags)
	if err != nil {
		return c, wrapDBError(err, "count records", "")
	}
	return c, nil
}

// RefreshMetrics updates the store gauges from current counts.
func (s *Store) RefreshMetrics(ctx context.Context) error {
	c, err := s.Counts(ctx)
	if err != nil {
		return err
	}
	metrics.UpdateStoreMetrics(c)
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func datePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
