// Package runner executes dispatched jobs on the worker pool: it attaches
// the per-job log, retrieves external antiSMASH results, invokes the
// analysis engine under the soft time limit and records the terminal
// outcome as durable workspace markers.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/antismash"
	"github.com/fermo-metabolomics/fermo-srv/internal/config"
	"github.com/fermo-metabolomics/fermo-srv/internal/engine"
	"github.com/fermo-metabolomics/fermo-srv/internal/logging"
	"github.com/fermo-metabolomics/fermo-srv/internal/notify"
	"github.com/fermo-metabolomics/fermo-srv/internal/params"
	"github.com/fermo-metabolomics/fermo-srv/internal/task"
	"github.com/fermo-metabolomics/fermo-srv/internal/workspace"
)

// Runner is the background-task entry point.
type Runner struct {
	cfg      *config.Config
	layout   *workspace.Layout
	engine   engine.Engine
	fetcher  *antismash.Client
	notifier *notify.Notifier
	log      zerolog.Logger
}

// New creates a runner.
func New(cfg *config.Config, layout *workspace.Layout, eng engine.Engine, fetcher *antismash.Client, notifier *notify.Notifier, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		layout:   layout,
		engine:   eng,
		fetcher:  fetcher,
		notifier: notifier,
		log:      log,
	}
}

// Run executes one dispatched job to a terminal state. After any terminal
// execution exactly one of {result artifacts, failure marker} exists: the
// marker is written on every failure path and never on success.
func (r *Runner) Run(ctx context.Context, job task.Job) error {
	doc, err := params.ReadFile(r.layout.ParamsFile(job.Token))
	if err != nil {
		r.fail(job, fmt.Sprintf("Job %s encountered an error and was terminated: %v", job.Token, err))
		return err
	}

	jobLog, err := logging.NewJobLogger(r.layout.LogFile(job.Token))
	if err != nil {
		r.fail(job, fmt.Sprintf("Job %s encountered an error and was terminated: %v", job.Token, err))
		return err
	}
	defer jobLog.Close()

	jobLog.Info().Str("job_id", job.Token).Msg("Started analysis job")

	ctx, cancel := context.WithTimeout(ctx, r.cfg.SoftTimeLimit)
	defer cancel()

	if err := r.fetchExternalResults(ctx, job.Token, doc); err != nil {
		jobLog.Error().Err(err).Msg("antiSMASH result retrieval failed")
		r.fail(job, fmt.Sprintf("Job %s encountered an error and was terminated: %v", job.Token, err))
		return err
	}

	if err := r.engine.Run(ctx, doc, r.layout.ResultsDir(job.Token), jobLog.Logger); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// Time-limit termination is a distinguished failure: the
			// remediation is a smaller input or an offline run, not a
			// bug report.
			msg := fmt.Sprintf("Job %s surpassed the maximum time limit of %s and was terminated",
				job.Token, r.cfg.SoftTimeLimit)
			jobLog.Error().Msg(msg)
			r.fail(job, msg)
			return err
		}
		msg := fmt.Sprintf("Job %s encountered an error and was terminated: %v", job.Token, err)
		jobLog.Error().Err(err).Msg("Analysis engine failed")
		r.fail(job, msg)
		return err
	}

	jobLog.Info().Msg("Analysis finished successfully")
	r.notifier.JobSuccess(job.Token, job.NotifyAddress)
	return nil
}

// fetchExternalResults downloads antiSMASH archives when the job references
// an external identifier.
func (r *Runner) fetchExternalResults(ctx context.Context, token string, doc params.Document) error {
	jobID := doc.GetString("AsResultsParameters", "job_id")
	if jobID == "" {
		return nil
	}

	expected := doc.GetString("AsResultsParameters", "directory_path")
	return r.fetcher.FetchAll(ctx, jobID, r.layout.JobDir(token), expected)
}

// fail records the failure marker and sends the failure mail.
func (r *Runner) fail(job task.Job, msg string) {
	if err := os.WriteFile(r.layout.FailFile(job.Token), []byte(msg+"\n"), 0o644); err != nil {
		r.log.Error().Err(err).Str("job_id", job.Token).Msg("Failed to write failure marker")
	}
	r.notifier.JobFailure(job.Token, job.NotifyAddress)
}
