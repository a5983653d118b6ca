package engine

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/params"
)

// Command returns an Engine that invokes an external analysis executable.
// The parameter document is serialized into the job directory and passed via
// --parameters; the executable is expected to write its artifacts, session
// file included, into the --output directory. Stdout and stderr are routed
// into the job log.
func Command(binary string) Engine {
	return Func(func(ctx context.Context, doc params.Document, resultsDir string, log zerolog.Logger) error {
		paramsPath := filepath.Join(filepath.Dir(resultsDir), "in.parameters.json")
		if err := doc.WriteFile(paramsPath); err != nil {
			return err
		}

		cmd := exec.CommandContext(ctx, binary, "--parameters", paramsPath, "--output", resultsDir)
		cmd.Stdout = log
		cmd.Stderr = log

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("analysis engine %s failed: %w", binary, err)
		}
		return nil
	})
}
