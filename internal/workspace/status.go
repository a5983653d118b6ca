package workspace

import (
	"os"
	"path/filepath"
)

// Status is the job state derived from workspace marker files.
type Status int

const (
	// StatusNotFound means no workspace or no markers exist for the token.
	StatusNotFound Status = iota
	// StatusPending means a parameter file exists but execution has not
	// started writing the log yet.
	StatusPending
	// StatusRunning means the job log exists but no terminal marker does.
	StatusRunning
	// StatusFailed means the failure marker file exists.
	StatusFailed
	// StatusSucceeded means the session file exists.
	StatusSucceeded
)

// String returns the wire representation of a status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	case StatusSucceeded:
		return "succeeded"
	default:
		return "not_found"
	}
}

// Resolve computes the job status from the fixed set of well-known paths.
// Precedence mirrors the result routes: a session file wins over a failure
// marker, which wins over a bare log file. All callers must go through this
// function so the on-disk encoding can change in one place.
func (l *Layout) Resolve(token string) Status {
	if fileExists(l.SessionFile(token)) {
		return StatusSucceeded
	}
	if fileExists(l.FailFile(token)) {
		return StatusFailed
	}
	if fileExists(l.LogFile(token)) {
		return StatusRunning
	}
	if fileExists(l.ParamsFile(token)) {
		return StatusPending
	}
	return StatusNotFound
}

// Artifact identifiers served by the download route, mapped to their
// workspace-relative paths.
var artifactPaths = map[string]string{
	"session":    filepath.Join(ResultsDirName, SessionFileName),
	"log":        filepath.Join(ResultsDirName, LogFileName),
	"peak_mod":   filepath.Join(ResultsDirName, "out.fermo.full.csv"),
	"peak_abbr":  filepath.Join(ResultsDirName, "out.fermo.abbrev.csv"),
	"summary":    filepath.Join(ResultsDirName, "out.fermo.summary.txt"),
	"sim_cosine": filepath.Join(ResultsDirName, "out.fermo.modified_cosine.graphml"),
	"sim_deep":   filepath.Join(ResultsDirName, "out.fermo.ms2deepscore.graphml"),
}

// Artifact resolves a download identifier to an existing file path inside
// the job workspace. Unknown identifiers and missing files both report
// os.ErrNotExist so the route can return a uniform 404.
func (l *Layout) Artifact(token, identifier string) (string, error) {
	rel, ok := artifactPaths[identifier]
	if !ok {
		return "", os.ErrNotExist
	}
	path := filepath.Join(l.JobDir(token), rel)
	if !fileExists(path) {
		return "", os.ErrNotExist
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
