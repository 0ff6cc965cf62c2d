package loader

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/geo-hierarchy/internal/resilience"
)

// Downloader fetches TIGER archives over HTTPS. Requests are rate-limited
// across goroutines (the Census mirror throttles aggressive clients) and
// retried on transient failures. Archives already on disk are reused.
type Downloader struct {
	client  *http.Client
	limiter *rate.Limiter
	tempDir string
	retry   resilience.RetryConfig
}

// NewDownloader creates a Downloader writing under tempDir at no more than
// ratePerSec requests per second.
func NewDownloader(tempDir string, ratePerSec float64) *Downloader {
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	return &Downloader{
		client:  &http.Client{Timeout: 10 * time.Minute},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		tempDir: tempDir,
		retry:   resilience.DefaultRetryConfig(),
	}
}

// Fetch downloads and extracts one archive, returning the path of the .shp
// inside it.
func (d *Downloader) Fetch(ctx context.Context, url string) (string, error) {
	log := zap.L().With(zap.String("component", "loader.download"), zap.String("url", url))

	if err := os.MkdirAll(d.tempDir, 0o755); err != nil {
		return "", eris.Wrap(err, "loader: create temp dir")
	}

	zipName := url[strings.LastIndex(url, "/")+1:]
	zipPath := filepath.Join(d.tempDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("archive cached, skipping download")
	} else {
		if err := resilience.Do(ctx, d.retry, func(ctx context.Context) error {
			return d.download(ctx, url, zipPath)
		}); err != nil {
			return "", eris.Wrapf(err, "loader: download %s", zipName)
		}
		log.Info("archive downloaded", zap.String("path", zipPath))
	}

	extractDir := filepath.Join(d.tempDir, strings.TrimSuffix(zipName, ".zip"))
	if err := extractZip(zipPath, extractDir); err != nil {
		return "", eris.Wrapf(err, "loader: extract %s", zipName)
	}

	return findByExt(extractDir, ".shp")
}

func (d *Downloader) download(ctx context.Context, url, dest string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "get")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	// Write to a temp name first so a cut connection never leaves a
	// plausible-looking partial zip behind for the cache check.
	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close() //nolint:errcheck
		os.Remove(tmp)
		return eris.Wrap(err, "write file")
	}
	if err := f.Close(); err != nil {
		return eris.Wrap(err, "close file")
	}
	return eris.Wrap(os.Rename(tmp, dest), "finalize file")
}

func extractZip(zipPath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return eris.Wrap(err, "create extract dir")
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(f.Name))

		rc, err := f.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", f.Name)
		}
		out, err := os.Create(destPath)
		if err != nil {
			rc.Close() //nolint:errcheck
			return eris.Wrapf(err, "create %s", destPath)
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close() //nolint:errcheck
			rc.Close()  //nolint:errcheck
			return eris.Wrapf(err, "extract %s", f.Name)
		}
		out.Close() //nolint:errcheck
		rc.Close()  //nolint:errcheck
	}

	return nil
}

func findByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read extract dir")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("loader: no %s file in %s", ext, dir)
}
