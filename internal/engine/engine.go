// Package engine defines the boundary to the external analysis engine. The
// submission pipeline treats the engine as an opaque function that consumes
// a validated parameter document and writes result artifacts into the job's
// results directory.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/params"
)

// Engine runs one analysis. Implementations must respect ctx cancellation:
// the runner imposes the soft time limit through the context deadline.
type Engine interface {
	Run(ctx context.Context, doc params.Document, resultsDir string, log zerolog.Logger) error
}

// Func adapts a plain function to the Engine interface.
type Func func(ctx context.Context, doc params.Document, resultsDir string, log zerolog.Logger) error

// Run implements Engine.
func (f Func) Run(ctx context.Context, doc params.Document, resultsDir string, log zerolog.Logger) error {
	return f(ctx, doc, resultsDir, log)
}
