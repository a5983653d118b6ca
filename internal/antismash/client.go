// Package antismash resolves and retrieves result archives hosted on the
// antiSMASH server for externally-issued job identifiers.
package antismash

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/config"
)

// NotFoundError means the identifier has no archives on the upstream server.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("antiSMASH job ID %q not found on antiSMASH server", e.JobID)
}

// UpstreamTimeoutError is a recoverable timeout talking to the upstream
// server, distinct from NotFoundError so callers can suggest a retry.
type UpstreamTimeoutError struct {
	Op  string
	Err error
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("connection to antiSMASH server timed out during %s: %v", e.Op, e.Err)
}

func (e *UpstreamTimeoutError) Unwrap() error {
	return e.Err
}

// ExtractionError means a downloaded archive did not produce the expected
// directory, which indicates the upstream archive format changed.
type ExtractionError struct {
	Archive  string
	Expected string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("antiSMASH archive %s did not extract to the expected location %s", e.Archive, e.Expected)
}

// retryLogger adapts retryablehttp's leveled logger onto zerolog. Only
// retry-worthy conditions are surfaced.
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Interface("details", keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Interface("details", keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Client talks to the antiSMASH result host. The listing lookup uses a
// short timeout; archive downloads use a substantially longer one.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	listTimeout     time.Duration
	downloadTimeout time.Duration
	log             zerolog.Logger
}

// NewClient builds a client with retrying transport per the deployment
// config.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return &Client{
		httpClient:      retryClient.StandardClient(),
		baseURL:         strings.TrimSuffix(cfg.AntismashBaseURL, "/"),
		listTimeout:     cfg.AntismashListTimeout,
		downloadTimeout: cfg.AntismashDownloadTimeout,
		log:             log,
	}
}

// ArchiveStem returns the directory name an archive extracts into: the
// archive file name up to its first dot.
func ArchiveStem(archive string) string {
	if i := strings.IndexByte(archive, '.'); i >= 0 {
		return archive[:i]
	}
	return archive
}

func (c *Client) jobURL(jobID string) string {
	return c.baseURL + "/upload/" + url.PathEscape(jobID) + "/"
}

// Resolve queries the upstream listing endpoint and returns the zip archive
// names published for the identifier. An empty result is a NotFoundError; a
// timeout is an UpstreamTimeoutError.
func (c *Client) Resolve(ctx context.Context, jobID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(jobID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTimeout("listing lookup", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTimeout("listing lookup", err)
	}

	zips := parseZipRefs(string(body))
	if len(zips) == 0 {
		return nil, &NotFoundError{JobID: jobID}
	}
	return zips, nil
}

// parseZipRefs extracts quoted .zip href fragments from the upstream
// HTML/text listing.
func parseZipRefs(body string) []string {
	var zips []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(body, "\n") {
		if !strings.Contains(line, ".zip") {
			continue
		}
		parts := strings.Split(line, `"`)
		if len(parts) < 2 {
			continue
		}
		name := parts[1]
		if !strings.HasSuffix(name, ".zip") || seen[name] {
			continue
		}
		seen[name] = true
		zips = append(zips, name)
	}
	return zips
}

// Download fetches one archive into jobDir and extracts it into a directory
// named after the archive stem. After extraction the expected destination
// must exist or the fetch fails with ExtractionError. The downloaded zip is
// removed afterwards.
func (c *Client) Download(ctx context.Context, jobID, archive, jobDir, expectedDir string) error {
	ctx, cancel := context.WithTimeout(ctx, c.downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(jobID)+archive, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTimeout("archive download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("antiSMASH archive download returned status %d", resp.StatusCode)
	}

	zipPath := filepath.Join(jobDir, filepath.Base(archive))
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return wrapTimeout("archive download", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := extractZip(zipPath, filepath.Join(jobDir, ArchiveStem(archive))); err != nil {
		return err
	}

	if _, err := os.Stat(expectedDir); err != nil {
		return &ExtractionError{Archive: archive, Expected: expectedDir}
	}

	if err := os.Remove(zipPath); err != nil {
		c.log.Warn().Err(err).Str("archive", zipPath).Msg("Failed to remove downloaded archive")
	}

	c.log.Debug().Str("job_id", jobID).Str("archive", archive).Msg("Downloaded antiSMASH archive")
	return nil
}

// FetchAll resolves and downloads every archive for the identifier.
func (c *Client) FetchAll(ctx context.Context, jobID, jobDir, expectedDir string) error {
	zips, err := c.Resolve(ctx, jobID)
	if err != nil {
		return err
	}
	for _, archive := range zips {
		if err := c.Download(ctx, jobID, archive, jobDir, expectedDir); err != nil {
			return err
		}
	}
	return nil
}

// extractZip unpacks an archive into destDir, refusing entries that would
// escape it.
func extractZip(zipPath, destDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target := filepath.Join(destDir, entry.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction directory", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := entry.Open()
		if err != nil {
			return err
		}
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			src.Close()
			return err
		}
		dst.Close()
		src.Close()
	}
	return nil
}

// wrapTimeout converts transport timeouts into UpstreamTimeoutError and
// passes every other error through unchanged.
func wrapTimeout(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return &UpstreamTimeoutError{Op: op, Err: err}
	}
	return err
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
