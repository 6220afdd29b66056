package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVNDB answers search and id queries and serves cover images.
func fakeVNDB(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cv/4.png" {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("\x89PNG fake"))
			return
		}

		var q struct {
			Filters []any `json:"filters"`
		}
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil || len(q.Filters) < 3 {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Filters[0] == "search":
			fmt.Fprintf(w, `{"results":[{"id":"v4","title":"Clannad","released":"2004-04-28","image":{"url":"%s/cv/4.png"}}],"more":false}`, srv.URL)
		case q.Filters[0] == "id" && q.Filters[2] == "v4":
			fmt.Fprintf(w, `{"results":[{"id":"v4","title":"Clannad","released":"2004-04-28","rating":86.05,"length_minutes":4140,
				"image":{"url":"%s/cv/4.png"},"developers":[{"id":"p24","name":"Key"}],"tags":[{"id":"g32","name":"ADV"}]}],"more":false}`, srv.URL)
		default:
			_, _ = w.Write([]byte(`{"results":[],"more":false}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	dir        string
	configPath string
}

func setupEnv(t *testing.T) testEnv {
	t.Helper()
	srv := fakeVNDB(t)
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("db_path: %s\nmedia_dir: %s\nlogging:\n  level: error\nvndb:\n  base_url: %s\n",
		filepath.Join(dir, "vn.db"), filepath.Join(dir, "media"), srv.URL)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644)) // #nosec G306

	t.Setenv("VNMETA_CONFIG", "")
	t.Setenv("VNMETA_DB", "")
	t.Setenv("VNMETA_MEDIA_DIR", "")
	t.Setenv("VNDB_BASE_URL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	return testEnv{dir: dir, configPath: configPath}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestSearchCommand(t *testing.T) {
	env := setupEnv(t)

	stdout, _, err := run(t, "--config", env.configPath, "search", "clannad")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ID")
	assert.Contains(t, stdout, "v4")
	assert.Contains(t, stdout, "2004-04-28")
}

func TestGetCommand_JSON(t *testing.T) {
	env := setupEnv(t)

	stdout, _, err := run(t, "--config", env.configPath, "--json", "get", "4", "--no-images")
	require.NoError(t, err)

	var md struct {
		ID    string  `json:"provider_data_id"`
		Title string  `json:"title"`
		Cover *string `json:"cover"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &md))
	assert.Equal(t, "v4", md.ID)
	assert.Equal(t, "Clannad", md.Title)
	assert.Nil(t, md.Cover)
}

func TestGetCommand_Text(t *testing.T) {
	env := setupEnv(t)

	stdout, _, err := run(t, "--config", env.configPath, "get", "v4", "--no-images")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Clannad (v4)")
	assert.Contains(t, stdout, "Playtime:    69h00m")
	assert.Contains(t, stdout, "Developers:  Key")
}

func TestGetCommand_NotFound(t *testing.T) {
	env := setupEnv(t)

	_, stderr, err := run(t, "--config", env.configPath, "get", "v999")
	require.Error(t, err)
	assert.Contains(t, stderr, "not found")
}

func TestScrapeAndListRecords(t *testing.T) {
	env := setupEnv(t)

	stdout, _, err := run(t, "--config", env.configPath, "scrape", "v4")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Clannad (v4)")

	covers, err := os.ReadDir(filepath.Join(env.dir, "media", "vndb"))
	require.NoError(t, err)
	assert.Len(t, covers, 1)

	stdout, _, err = run(t, "--config", env.configPath, "--json", "records", "list")
	require.NoError(t, err)
	var records []struct {
		ID    string `json:"provider_data_id"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "v4", records[0].ID)

	stdout, _, err = run(t, "--config", env.configPath, "records", "show", "v4")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Tags:        ADV")

	_, _, err = run(t, "--config", env.configPath, "records", "delete", "vndb/v4")
	require.NoError(t, err)
	_, _, err = run(t, "--config", env.configPath, "records", "show", "vndb/v4")
	assert.Error(t, err)
}

func TestScrapeCommand_ReportsFailures(t *testing.T) {
	env := setupEnv(t)

	stdout, stderr, err := run(t, "--config", env.configPath, "--json", "scrape", "r12")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 scrapes failed")
	assert.Contains(t, stdout, "invalid id")
	assert.Contains(t, stderr, "Error:")
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupEnv(t)
	path := filepath.Join(env.dir, "new", "vnmeta.yaml")

	_, _, err := run(t, "--config", env.configPath, "config", "init", path)
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, _, err = run(t, "--config", env.configPath, "config", "init", path)
	assert.Error(t, err, "init must not overwrite")

	stdout, _, err := run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# Active Configuration")
	assert.Contains(t, stdout, "max_requests: 200")
}

func TestMissingConfigFile(t *testing.T) {
	setupEnv(t)

	_, _, err := run(t, "--config", "/nonexistent/vnmeta.yaml", "config", "show")
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	slug, id := parseKey("vndb/v4")
	assert.Equal(t, "vndb", slug)
	assert.Equal(t, "v4", id)

	slug, id = parseKey("v17")
	assert.Equal(t, "vndb", slug)
	assert.Equal(t, "v17", id)
}
