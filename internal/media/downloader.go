// Package media stores remote images on local disk.
package media

import (
	"context"
	"crypto/sha1" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ryanm101/vnmeta/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// ErrNotImage is returned when the remote resource is not an image.
var ErrNotImage = errors.New("not an image")

// Config holds downloader settings.
type Config struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxBytes          int64         `yaml:"max_bytes"`
}

// DefaultConfig returns polite defaults for image CDNs.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 4,
		Burst:             2,
		Timeout:           30 * time.Second,
		MaxBytes:          20 << 20,
	}
}

// Downloader fetches images into root/<namespace>/ and returns the stored
// path. It implements metadata.ImageFetcher.
type Downloader struct {
	root       string
	namespace  string
	maxBytes   int64
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewDownloader creates a Downloader storing files under root/namespace.
func NewDownloader(root, namespace string, cfg Config, logger *slog.Logger) *Downloader {
	def := DefaultConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		root:      root,
		namespace: namespace,
		maxBytes:  cfg.MaxBytes,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// SetHTTPClient replaces the HTTP client (for testing).
func (d *Downloader) SetHTTPClient(hc *http.Client) {
	d.httpClient = hc
}

// Fetch downloads url unless a copy already exists and returns the local path.
func (d *Downloader) Fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("empty image url")
	}

	dir := filepath.Join(d.root, d.namespace)
	key := cacheKey(url)
	if existing, ok := d.existing(dir, key); ok {
		metrics.ImageFetches.WithLabelValues("cached").Inc()
		return existing, nil
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create image request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http error: %s", resp.Status)
	}

	ext, err := extension(resp.Header.Get("Content-Type"), url)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil { //nolint:gosec // Standard dir permissions
		return "", err
	}

	dest := filepath.Join(dir, key+ext)
	if err := d.write(dest, resp.Body); err != nil {
		return "", err
	}

	metrics.ImageFetches.WithLabelValues("downloaded").Inc()
	d.logger.Debug("stored image", "url", url, "path", dest)
	return dest, nil
}

// write streams body to dest through a temp file so readers never see a
// partial image.
func (d *Downloader) write(dest string, body io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, io.LimitReader(body, d.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if n > d.maxBytes {
		return fmt.Errorf("image exceeds %d bytes", d.maxBytes)
	}
	return os.Rename(tmp.Name(), dest)
}

func (d *Downloader) existing(dir, key string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(dir, key+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func cacheKey(url string) string {
	sum := sha1.Sum([]byte(url)) //nolint:gosec // content addressing, not security
	return hex.EncodeToString(sum[:])
}

// extension picks a file extension from the content type, falling back to the
// URL path for generic types.
func extension(contentType, url string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" || mediaType == "application/octet-stream" {
		if ext := strings.ToLower(path.Ext(strings.SplitN(url, "?", 2)[0])); isImageExt(ext) {
			return ext, nil
		}
		return "", fmt.Errorf("%w: content type %q", ErrNotImage, contentType)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: content type %q", ErrNotImage, mediaType)
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	case "image/gif":
		return ".gif", nil
	}
	return "." + strings.TrimPrefix(mediaType, "image/"), nil
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return true
	}
	return false
}
