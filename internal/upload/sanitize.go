package upload

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// SanitizeFilename flattens a user-supplied file name into a safe single
// path component. Path separators are collapsed to the base name, whitespace
// becomes underscores and anything outside [A-Za-z0-9_.-] is stripped.
// Returns "" when nothing safe remains, which callers treat as "no file".
//
// Note the strict contract: two distinct uploads whose names collide after
// sanitization silently overwrite one another.
func SanitizeFilename(name string) string {
	if name == "" {
		return ""
	}

	// Collapse separators from any platform, then keep only the base.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		return ""
	}

	name = whitespaceRun.ReplaceAllString(name, "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = underscoreRun.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._-")

	return name
}
