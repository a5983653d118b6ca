package workspace

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Sweep deletes job workspaces whose directory modification time is older
// than maxAge. It returns the number of workspaces removed. Individual
// deletion failures are logged and skipped so one broken directory cannot
// stall the retention run.
func (l *Layout) Sweep(maxAge time.Duration, now time.Time, log zerolog.Logger) (int, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return 0, &WorkspaceError{Op: "sweep", Err: err}
	}

	cutoff := now.Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		token := entry.Name()
		if err := os.RemoveAll(l.JobDir(token)); err != nil {
			log.Warn().Err(err).Str("job_id", token).Msg("Failed to remove expired workspace")
			continue
		}
		log.Info().Str("job_id", token).Time("mod_time", info.ModTime()).Msg("Removed expired workspace")
		removed++
	}

	return removed, nil
}
