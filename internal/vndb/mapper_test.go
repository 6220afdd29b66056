package vndb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ryanm101/vnmeta/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockImages struct {
	mock.Mock
}

func (m *mockImages) Fetch(ctx context.Context, url string) (string, error) {
	args := m.Called(url)
	return args.String(0), args.Error(1)
}

func strPtr(s string) *string { return &s }

func decodeFirst(t *testing.T, body string) record {
	t.Helper()
	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.NotEmpty(t, resp.Results)
	return resp.Results[0]
}

func TestParseReleaseDate(t *testing.T) {
	tests := []struct {
		name     string
		in       *string
		expected *time.Time
	}{
		{"full date", strPtr("2004-04-28"), func() *time.Time { d := time.Date(2004, 4, 28, 0, 0, 0, 0, time.UTC); return &d }()},
		{"surrounding space", strPtr(" 2004-04-28 "), func() *time.Time { d := time.Date(2004, 4, 28, 0, 0, 0, 0, time.UTC); return &d }()},
		{"year and month only", strPtr("2004-04"), nil},
		{"year only", strPtr("2004"), nil},
		{"to be announced", strPtr("TBA"), nil},
		{"impossible day", strPtr("2023-02-30"), nil},
		{"empty", strPtr(""), nil},
		{"absent", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseReleaseDate(tt.in))
		})
	}
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		name     string
		in       *string
		expected *string
	}{
		{"plain", strPtr("A story."), strPtr("A story.")},
		{"url code", strPtr("By [url=https://key.example/]Key[/url]."), strPtr("By Key.")},
		{"spoiler and bold", strPtr("[b]Bold[/b] [spoiler]hidden[/spoiler]"), strPtr("Bold hidden")},
		{"unknown brackets kept", strPtr("[From Wikipedia]"), strPtr("[From Wikipedia]")},
		{"only markup", strPtr(" [b][/b] "), nil},
		{"absent", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanDescription(tt.in))
		})
	}
}

func TestMapSearch_SkipsMissingTitleAndImage(t *testing.T) {
	m := newMapper(nil, discardLogger())
	records := []record{
		{ID: "v1", Title: "Kept", Image: &imageRef{URL: "https://t.vndb.org/cv/1.jpg"}},
		{ID: "v2", Title: "", Image: &imageRef{URL: "https://t.vndb.org/cv/2.jpg"}},
		{ID: "v3", Title: "No image"},
		{ID: "v4", Title: "Blank image", Image: &imageRef{URL: " "}},
		{ID: "v5", Title: "  ", Image: &imageRef{URL: "https://t.vndb.org/cv/5.jpg"}},
	}

	out := m.mapSearch(records)

	require.Len(t, out, 1)
	assert.Equal(t, metadata.MinimalMetadata{
		ProviderSlug:   "vndb",
		ProviderDataID: "v1",
		Title:          "Kept",
		CoverURL:       "https://t.vndb.org/cv/1.jpg",
	}, out[0])
}

func TestMapSearch_EmptyInput(t *testing.T) {
	m := newMapper(nil, discardLogger())

	out := m.mapSearch(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestMapDetails_FullRecord(t *testing.T) {
	images := new(mockImages)
	images.On("Fetch", "https://t.vndb.org/cv/57/32057.jpg").Return("media/vndb/abc.jpg", nil)
	m := newMapper(images, discardLogger())

	md, err := m.mapDetails(context.Background(), decodeFirst(t, clannadDetail))
	require.NoError(t, err)

	assert.Equal(t, "vndb", md.ProviderSlug)
	assert.Equal(t, "v4", md.ProviderDataID)
	assert.Equal(t, "Clannad", md.Title)
	assert.Equal(t, "https://vndb.org/v4", md.URL)
	require.NotNil(t, md.ReleaseDate)
	assert.Equal(t, time.Date(2004, 4, 28, 0, 0, 0, 0, time.UTC), *md.ReleaseDate)
	require.NotNil(t, md.Description)
	assert.Equal(t, "Okazaki Tomoya is a delinquent.\nHe changes.", *md.Description)
	require.NotNil(t, md.Rating)
	assert.InDelta(t, 86.05, *md.Rating, 0.001)
	require.NotNil(t, md.Playtime)
	assert.Equal(t, 4140, *md.Playtime)
	assert.False(t, md.EarlyAccess)
	assert.Equal(t, []string{"https://key.visualarts.gr.jp/"}, md.Websites)
	assert.Equal(t, []string{"https://t.vndb.org/sf/1.jpg", "https://t.vndb.org/sf/2.jpg"}, md.Screenshots)
	assert.Equal(t, []metadata.Entity{{ProviderSlug: "vndb", ProviderDataID: "p24", Name: "Key"}}, md.Developers)
	assert.Equal(t, []metadata.Entity{{ProviderSlug: "vndb", ProviderDataID: "visual-novel", Name: "Visual Novel"}}, md.Genres)
	assert.Equal(t, []metadata.Entity{{ProviderSlug: "vndb", ProviderDataID: "g32", Name: "ADV"}}, md.Tags)
	require.NotNil(t, md.CoverURL)
	assert.Equal(t, "https://t.vndb.org/cv/57/32057.jpg", *md.CoverURL)
	require.NotNil(t, md.Cover)
	assert.Equal(t, "media/vndb/abc.jpg", *md.Cover)

	images.AssertExpectations(t)
}

func TestMapDetails_EarlyAccess(t *testing.T) {
	m := newMapper(nil, discardLogger())
	tests := []struct {
		name      string
		devStatus *int
		expected  bool
	}{
		{"finished", func() *int { v := 0; return &v }(), false},
		{"in development", func() *int { v := 1; return &v }(), true},
		{"cancelled", func() *int { v := 2; return &v }(), false},
		{"unknown", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := m.mapDetails(context.Background(), record{ID: "v1", Title: "X", DevStatus: tt.devStatus})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, md.EarlyAccess)
		})
	}
}

func TestMapDetails_CoverFailureIsNotFatal(t *testing.T) {
	images := new(mockImages)
	images.On("Fetch", "https://t.vndb.org/cv/57/32057.jpg").Return("", errors.New("connection reset"))
	m := newMapper(images, discardLogger())

	md, err := m.mapDetails(context.Background(), decodeFirst(t, clannadDetail))
	require.NoError(t, err)

	assert.Nil(t, md.Cover)
	require.NotNil(t, md.CoverURL)
	assert.Equal(t, "Clannad", md.Title)
	images.AssertExpectations(t)
}

func TestMapDetails_OptionalFieldsStayUnset(t *testing.T) {
	images := new(mockImages)
	m := newMapper(images, discardLogger())

	md, err := m.mapDetails(context.Background(), record{ID: "v9", Title: "Bare", Released: strPtr("TBA")})
	require.NoError(t, err)

	assert.Nil(t, md.ReleaseDate)
	assert.Nil(t, md.Description)
	assert.Nil(t, md.Rating)
	assert.Nil(t, md.Playtime)
	assert.Nil(t, md.CoverURL)
	assert.Nil(t, md.Cover)
	assert.Empty(t, md.Websites)
	assert.Empty(t, md.Developers)
	assert.Len(t, md.Genres, 1)
	images.AssertNotCalled(t, "Fetch", mock.Anything)
}

func TestMapDetails_MissingTitle(t *testing.T) {
	m := newMapper(nil, discardLogger())

	_, err := m.mapDetails(context.Background(), record{ID: "v9"})

	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.ErrorIs(t, err, errMissingTitle)
}

func TestMapDetails_IsIdempotent(t *testing.T) {
	images := new(mockImages)
	images.On("Fetch", mock.Anything).Return("media/vndb/abc.jpg", nil)
	m := newMapper(images, discardLogger())
	rec := decodeFirst(t, clannadDetail)

	first, err := m.mapDetails(context.Background(), rec)
	require.NoError(t, err)
	second, err := m.mapDetails(context.Background(), rec)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	*first.Rating = 1
	assert.NotEqual(t, *first.Rating, *second.Rating, "mapped records must not share pointers")
}

func TestMapSearch_IsIdempotent(t *testing.T) {
	m := newMapper(nil, discardLogger())
	var resp queryResponse
	require.NoError(t, json.Unmarshal([]byte(clannadSearch), &resp))

	a, err := json.Marshal(m.mapSearch(resp.Results))
	require.NoError(t, err)
	b, err := json.Marshal(m.mapSearch(resp.Results))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRecordID_Unmarshal(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected recordID
	}{
		{"string", `"v17"`, "v17"},
		{"number", `17`, "17"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id recordID
			require.NoError(t, json.Unmarshal([]byte(tt.json), &id))
			assert.Equal(t, tt.expected, id)
		})
	}

	var id recordID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in       string
		expected string
		wantErr  bool
	}{
		{"v4", "v4", false},
		{"V4", "v4", false},
		{"4", "v4", false},
		{" v17 ", "v17", false},
		{"r4", "", true},
		{"v", "", true},
		{"", "", true},
		{"v4x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
