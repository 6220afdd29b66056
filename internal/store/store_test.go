package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ryanm101/vnmeta/internal/metadata"
	"github.com/ryanm101/vnmeta/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func clannad() *metadata.Metadata {
	return &metadata.Metadata{
		ProviderSlug:   "vndb",
		ProviderDataID: "v4",
		Title:          "Clannad",
		URL:            "https://vndb.org/v4",
		CoverURL:       ptr("https://t.vndb.org/cv/57/32057.jpg"),
		Cover:          ptr("media/vndb/abc.jpg"),
		ReleaseDate:    ptr(time.Date(2004, 4, 28, 0, 0, 0, 0, time.UTC)),
		Description:    ptr("Okazaki Tomoya is a delinquent."),
		Rating:         ptr(86.05),
		Playtime:       ptr(4140),
		EarlyAccess:    false,
		Websites:       []string{"https://key.visualarts.gr.jp/"},
		Screenshots:    []string{"https://t.vndb.org/sf/1.jpg", "https://t.vndb.org/sf/2.jpg"},
		Developers:     []metadata.Entity{{ProviderSlug: "vndb", ProviderDataID: "p24", Name: "Key"}},
		Genres:         []metadata.Entity{{ProviderSlug: "vndb", ProviderDataID: "visual-novel", Name: "Visual Novel"}},
		Tags: []metadata.Entity{
			{ProviderSlug: "vndb", ProviderDataID: "g32", Name: "ADV"},
			{ProviderSlug: "vndb", ProviderDataID: "g7", Name: "Drama"},
		},
	}
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(context.Background(), dbPath)
	require.NoError(t, err, "should open database without error")
	defer func() { _ = s.Close() }()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
	assert.Equal(t, dbPath, s.Path())
}

func TestSchemaVersion(t *testing.T) {
	s := openTestStore(t)

	var version int
	err := s.conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := Open(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, s.SaveMetadata(ctx, clannad()))
	require.NoError(t, s.Close())

	s, err = Open(ctx, dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	md, err := s.GetMetadata(ctx, "vndb", "v4")
	require.NoError(t, err)
	assert.Equal(t, "Clannad", md.Title)
}

func TestTablesExist(t *testing.T) {
	s := openTestStore(t)

	tables := []string{
		"schema_version", "records",
		"developers", "genres", "tags",
		"record_developers", "record_genres", "record_tags",
		"websites", "screenshots",
	}
	for _, table := range tables {
		var name string
		err := s.conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestSaveMetadata_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	in := clannad()

	require.NoError(t, s.SaveMetadata(ctx, in))

	out, err := s.GetMetadata(ctx, "vndb", "v4")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveMetadata_OptionalFieldsRoundTripAsNil(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	in := &metadata.Metadata{
		ProviderSlug:   "vndb",
		ProviderDataID: "v9",
		Title:          "Bare",
		URL:            "https://vndb.org/v9",
		EarlyAccess:    true,
		Websites:       []string{},
		Screenshots:    []string{},
		Developers:     []metadata.Entity{},
		Genres:         []metadata.Entity{},
		Tags:           []metadata.Entity{},
	}

	require.NoError(t, s.SaveMetadata(ctx, in))

	out, err := s.GetMetadata(ctx, "vndb", "v9")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveMetadata_UpsertReplacesLinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMetadata(ctx, clannad()))

	updated := clannad()
	updated.Title = "CLANNAD"
	updated.Rating = nil
	updated.Tags = []metadata.Entity{{ProviderSlug: "vndb", ProviderDataID: "g7", Name: "Drama (renamed)"}}
	updated.Screenshots = []string{"https://t.vndb.org/sf/3.jpg"}
	require.NoError(t, s.SaveMetadata(ctx, updated))

	out, err := s.GetMetadata(ctx, "vndb", "v4")
	require.NoError(t, err)
	assert.Equal(t, "CLANNAD", out.Title)
	assert.Nil(t, out.Rating)
	assert.Equal(t, updated.Tags, out.Tags)
	assert.Equal(t, []string{"https://t.vndb.org/sf/3.jpg"}, out.Screenshots)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.StoreCounts{Records: 1, Developers: 1, Tags: 2}, counts)
}

func TestSaveMetadata_SharedEntities(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	kanon := clannad()
	kanon.ProviderDataID = "v7"
	kanon.Title = "Kanon"
	kanon.URL = "https://vndb.org/v7"

	require.NoError(t, s.SaveMetadata(ctx, clannad()))
	require.NoError(t, s.SaveMetadata(ctx, kanon))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics.StoreCounts{Records: 2, Developers: 1, Tags: 2}, counts)
}

func TestSaveMetadata_DuplicateEntityKeepsFirstPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	md := clannad()
	md.Developers = append(md.Developers, md.Developers[0])
	require.NoError(t, s.SaveMetadata(ctx, md))

	out, err := s.GetMetadata(ctx, "vndb", "v4")
	require.NoError(t, err)
	assert.Len(t, out.Developers, 1)
}

func TestSaveMetadata_InvalidArgument(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveMetadata(context.Background(), &metadata.Metadata{Title: "No key"})
	assert.ErrorIs(t, err, ErrInvalidArg)

	err = s.SaveMetadata(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestGetMetadata_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetMetadata(context.Background(), "vndb", "v404")
	assert.ErrorIs(t, err, ErrNotFound)

	var recErr *RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "vndb/v404", recErr.Key)
}

func TestListMetadata(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, rec := range []struct{ id, title string }{{"v3", "b-title"}, {"v1", "C-title"}, {"v2", "A-title"}} {
		md := clannad()
		md.ProviderDataID = rec.id
		md.Title = rec.title
		require.NoError(t, s.SaveMetadata(ctx, md))
	}

	all, err := s.ListMetadata(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"A-title", "b-title", "C-title"}, []string{all[0].Title, all[1].Title, all[2].Title})
	assert.False(t, all[0].ScrapedAt.IsZero())
	require.NotNil(t, all[0].ReleaseDate)

	limited, err := s.ListMetadata(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListMetadata_Empty(t *testing.T) {
	s := openTestStore(t)

	all, err := s.ListMetadata(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestDeleteMetadata(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMetadata(ctx, clannad()))

	require.NoError(t, s.DeleteMetadata(ctx, "vndb", "v4"))

	_, err := s.GetMetadata(ctx, "vndb", "v4")
	assert.ErrorIs(t, err, ErrNotFound)

	var links int
	require.NoError(t, s.conn.QueryRow("SELECT COUNT(*) FROM record_tags").Scan(&links))
	assert.Equal(t, 0, links, "links cascade with the record")

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Developers, "entities are shared and stay")

	assert.ErrorIs(t, s.DeleteMetadata(ctx, "vndb", "v4"), ErrNotFound)
}

func TestRefreshMetrics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveMetadata(ctx, clannad()))

	require.NoError(t, s.RefreshMetrics(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecordsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TagsTotal))
}
