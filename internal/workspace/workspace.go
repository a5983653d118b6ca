// Package workspace owns per-job directory identity and layout. The
// workspace directory IS the job's state: there is no registry, and status
// is resolved purely from the presence of well-known marker files.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Well-known file names inside a job workspace.
const (
	ResultsDirName  = "results"
	SpecLibDirName  = "spec_lib"
	SessionFileName = "out.fermo.session.json"
	LogFileName     = "out.fermo.log"
	FailFileName    = "out.failed.txt"
)

// WorkspaceError is a fatal filesystem error during workspace mutation.
type WorkspaceError struct {
	Op  string
	Err error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s failed: %v", e.Op, e.Err)
}

func (e *WorkspaceError) Unwrap() error {
	return e.Err
}

// Layout resolves job tokens to paths under the shared upload root.
type Layout struct {
	Root string
}

// NewLayout creates a layout rooted at the given upload directory.
func NewLayout(root string) *Layout {
	return &Layout{Root: root}
}

// JobDir returns the workspace directory for a token.
func (l *Layout) JobDir(token string) string {
	return filepath.Join(l.Root, token)
}

// ResultsDir returns the results directory for a token.
func (l *Layout) ResultsDir(token string) string {
	return filepath.Join(l.Root, token, ResultsDirName)
}

// SpecLibDir returns the spectral-library upload directory for a token.
func (l *Layout) SpecLibDir(token string) string {
	return filepath.Join(l.Root, token, SpecLibDirName)
}

// ParamsFile returns the path of the persisted parameter document.
func (l *Layout) ParamsFile(token string) string {
	return filepath.Join(l.Root, token, token+".parameters.json")
}

// SessionFile returns the path of the session file (success marker).
func (l *Layout) SessionFile(token string) string {
	return filepath.Join(l.ResultsDir(token), SessionFileName)
}

// LogFile returns the path of the job log (running marker).
func (l *Layout) LogFile(token string) string {
	return filepath.Join(l.ResultsDir(token), LogFileName)
}

// FailFile returns the path of the failure marker.
func (l *Layout) FailFile(token string) string {
	return filepath.Join(l.ResultsDir(token), FailFileName)
}

// Exists reports whether a workspace directory exists for the token.
func (l *Layout) Exists(token string) bool {
	info, err := os.Stat(l.JobDir(token))
	return err == nil && info.IsDir()
}

// Allocate creates a collision-free job workspace under the root and returns
// its token. On a token collision with an existing directory a fresh token
// is generated; the loop terminates by virtue of the 122-bit token space,
// not an imposed retry cap. Creation of the directory itself is atomic, so
// concurrent allocations against the same root cannot share a token.
func (l *Layout) Allocate() (string, error) {
	for {
		token := uuid.NewString()
		dir := l.JobDir(token)

		err := os.Mkdir(dir, 0o755)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", &WorkspaceError{Op: "create", Err: err}
		}

		if err := os.Mkdir(filepath.Join(dir, ResultsDirName), 0o755); err != nil {
			return "", &WorkspaceError{Op: "create results", Err: err}
		}
		return token, nil
	}
}

// Rollback recursively deletes the workspace for a token. Used whenever a
// submission fails after allocation; deleting an already-absent workspace is
// not an error.
func (l *Layout) Rollback(token string) error {
	if token == "" {
		return nil
	}
	if err := os.RemoveAll(l.JobDir(token)); err != nil {
		return &WorkspaceError{Op: "rollback", Err: err}
	}
	return nil
}
