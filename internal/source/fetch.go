// Package source retrieves the DOH inspection results file and opens it as
// a clean UTF-8 stream for the record parser.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/dohpipeline/internal/logging"
)

// FileName is the name of the downloaded source file inside the data directory.
const FileName = "doh_download.csv"

// ErrSourceUnavailable means the source file could not be retrieved.
var ErrSourceUnavailable = errors.New("source unavailable")

// Fetcher places a complete copy of the source file at dst.
// On failure dst is left untouched.
type Fetcher interface {
	Fetch(ctx context.Context, dst string) (int64, error)
}

// HTTPFetcher downloads the source file over HTTP.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher whose client gives up after timeout.
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, dst string) (int64, error) {
	logger := logging.WithFields(ctx, "url", f.URL)
	logger.Info("starting download of DOH file")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: GET %s returned %s", ErrSourceUnavailable, f.URL, resp.Status)
	}

	n, err := writeAtomic(dst, resp.Body)
	if err != nil {
		return 0, err
	}

	logger.Info("finished download of DOH file",
		"bytes", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// FileFetcher copies a local file, for offline runs and tests.
type FileFetcher struct {
	Path string
}

func (f *FileFetcher) Fetch(ctx context.Context, dst string) (int64, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer src.Close()

	n, err := writeAtomic(dst, &ctxReader{ctx: ctx, r: src})
	if err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Info("copied source file", "path", f.Path, "bytes", n)
	return n, nil
}

// writeAtomic streams r into a temp file beside dst and renames it into place.
func writeAtomic(dst string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove partial download", "path", tmpName, "error", err)
		}
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("%w: copy: %v", ErrSourceUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return 0, fmt.Errorf("rename %s: %w", dst, err)
	}
	return n, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
