// Package upload receives named file streams from a submission, enforces
// the restricted-mode size policy and persists them into the job workspace,
// recording the resolved paths in the parameter document.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/config"
	"github.com/fermo-metabolomics/fermo-srv/internal/params"
	"github.com/fermo-metabolomics/fermo-srv/internal/workspace"
)

// SpecLibField is the one multi-file form field: spectral library files are
// stored together in a dedicated subdirectory, and the document records the
// directory rather than individual paths.
const SpecLibField = "SpecLibParametersFiles"

// FileTooLargeError is a recoverable, user-facing rejection of an oversized
// upload. It names the file plus both the observed and allowed byte counts.
type FileTooLargeError struct {
	Name  string
	Size  int64
	Limit int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %s is bigger than the allowed %d bytes (found %d bytes)",
		e.Name, e.Limit, e.Size)
}

// Stream is a readable, seekable upload source. multipart.File satisfies it.
type Stream interface {
	io.Reader
	io.Seeker
}

// NamedStream pairs an upload stream with its user-supplied file name.
type NamedStream struct {
	Name    string
	Content Stream
}

// Ingestor persists uploaded files under job workspaces. The size ceiling is
// only enforced in the restricted (online) deployment mode.
type Ingestor struct {
	online   bool
	maxBytes int64
	log      zerolog.Logger
}

// NewIngestor creates an ingestor bound to the deployment limits.
func NewIngestor(cfg *config.Config, log zerolog.Logger) *Ingestor {
	return &Ingestor{
		online:   cfg.Online,
		maxBytes: cfg.MaxUploadBytes,
		log:      log,
	}
}

// IngestForm stores every provided upload for the job token and records the
// resolved paths in doc. Zero-length streams count as "not provided" and are
// skipped without error, leaving the corresponding document key unset. The
// spectral-library multi-file field is handled separately from the
// single-file fields.
func (ing *Ingestor) IngestForm(doc params.Document, files map[string][]NamedStream, layout *workspace.Layout, token string) error {
	if err := ing.ingestSpecLib(doc, files[SpecLibField], layout, token); err != nil {
		return err
	}

	for field, streams := range files {
		if field == SpecLibField || len(streams) == 0 {
			continue
		}
		if err := ing.ingestSingle(doc, field, streams[0], layout.JobDir(token)); err != nil {
			return err
		}
	}
	return nil
}

// ingestSingle stores one single-file field and records its path under the
// module derived from the field name (field "XParametersFile" feeds module
// "XParameters").
func (ing *Ingestor) ingestSingle(doc params.Document, field string, stream NamedStream, jobDir string) error {
	name := SanitizeFilename(stream.Name)
	if name == "" {
		return nil
	}

	size, err := ing.Ingest(field, stream.Content, name, jobDir)
	if err != nil {
		return err
	}
	if size == 0 {
		return nil
	}

	module := strings.TrimSuffix(field, "File")
	dest := filepath.Join(jobDir, name)
	if err := doc.Set(module, "filepath", dest); err != nil {
		return fmt.Errorf("upload field %q has no matching module: %w", field, err)
	}

	ing.log.Debug().Str("field", field).Str("path", dest).Int64("bytes", size).Msg("Stored upload")
	return nil
}

// ingestSpecLib stores all non-empty spectral library files into the
// dedicated subdirectory. The subdirectory is only created when at least one
// file has a non-empty sanitized name.
func (ing *Ingestor) ingestSpecLib(doc params.Document, streams []NamedStream, layout *workspace.Layout, token string) error {
	var provided bool
	for _, s := range streams {
		if SanitizeFilename(s.Name) != "" {
			provided = true
			break
		}
	}
	if !provided {
		return nil
	}

	dir := layout.SpecLibDir(token)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create spectral library directory: %w", err)
	}
	if err := doc.Set("SpecLibParameters", "dirpath", dir); err != nil {
		return err
	}

	for _, s := range streams {
		name := SanitizeFilename(s.Name)
		if name == "" {
			continue
		}
		if _, err := ing.Ingest(SpecLibField, s.Content, name, dir); err != nil {
			return err
		}
	}
	return nil
}

// Ingest persists one stream into destDir under the sanitized name and
// returns the byte count written. A zero-length stream is skipped and
// reports size 0 with no error. In restricted mode an oversized stream is
// rejected with FileTooLargeError before anything is written.
func (ing *Ingestor) Ingest(field string, stream Stream, name, destDir string) (int64, error) {
	size, err := streamSize(stream)
	if err != nil {
		return 0, fmt.Errorf("failed to determine size of upload %q: %w", field, err)
	}
	if size == 0 {
		return 0, nil
	}
	if ing.online && size > ing.maxBytes {
		return 0, &FileTooLargeError{Name: name, Size: size, Limit: ing.maxBytes}
	}

	dest := filepath.Join(destDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create upload destination: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, stream)
	if err != nil {
		return 0, fmt.Errorf("failed to store upload %q: %w", field, err)
	}
	return written, nil
}

// SaveTo persists a stream to an exact destination path, applying the same
// size policy as Ingest. Used for session-file uploads whose on-disk name is
// fixed regardless of the user-supplied name; displayName only feeds error
// messages.
func (ing *Ingestor) SaveTo(stream Stream, displayName, destPath string) (int64, error) {
	size, err := streamSize(stream)
	if err != nil {
		return 0, fmt.Errorf("failed to determine size of upload %q: %w", displayName, err)
	}
	if ing.online && size > ing.maxBytes {
		return 0, &FileTooLargeError{Name: displayName, Size: size, Limit: ing.maxBytes}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create upload destination: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, stream)
	if err != nil {
		return 0, fmt.Errorf("failed to store upload %q: %w", displayName, err)
	}
	return written, nil
}

// streamSize probes the length of a seekable stream by seeking to the end
// and back to the start.
func streamSize(stream io.Seeker) (int64, error) {
	size, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}
