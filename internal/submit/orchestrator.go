// Package submit coordinates analysis submissions: it allocates the job
// workspace, ingests uploads, assembles and validates the parameter
// document, persists it and dispatches the background job. Any failure
// rolls the workspace back so no half-built job directory survives.
package submit

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/antismash"
	"github.com/fermo-metabolomics/fermo-srv/internal/config"
	"github.com/fermo-metabolomics/fermo-srv/internal/params"
	"github.com/fermo-metabolomics/fermo-srv/internal/task"
	"github.com/fermo-metabolomics/fermo-srv/internal/upload"
	"github.com/fermo-metabolomics/fermo-srv/internal/workspace"
)

// stage names the submission pipeline position reached so far. Stages only
// advance forward; on error the workspace is rolled back and the pipeline
// terminates in stageRolledBack.
type stage int

const (
	stageStart stage = iota
	stageWorkspaceAllocated
	stageFilesIngested
	stageFieldsAssembled
	stageExternalRefResolved
	stageValidated
	stagePersisted
	stageDispatched
	stageRolledBack
)

func (s stage) String() string {
	switch s {
	case stageStart:
		return "start"
	case stageWorkspaceAllocated:
		return "workspace_allocated"
	case stageFilesIngested:
		return "files_ingested"
	case stageFieldsAssembled:
		return "fields_assembled"
	case stageExternalRefResolved:
		return "external_ref_resolved"
	case stageValidated:
		return "validated"
	case stagePersisted:
		return "persisted"
	case stageDispatched:
		return "dispatched"
	case stageRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Submission carries the raw material of one new-analysis request: the
// scalar form fields plus the uploaded file streams keyed by form field.
type Submission struct {
	Form  map[string]string
	Files map[string][]upload.NamedStream
}

// Orchestrator drives submissions through the pipeline stages.
type Orchestrator struct {
	cfg      *config.Config
	layout   *workspace.Layout
	ingestor *upload.Ingestor
	fetcher  *antismash.Client
	schema   *params.SchemaValidator
	modules  *params.ModuleValidator
	queue    *task.Queue
	log      zerolog.Logger
}

// NewOrchestrator wires the submission pipeline.
func NewOrchestrator(cfg *config.Config, layout *workspace.Layout, ingestor *upload.Ingestor,
	fetcher *antismash.Client, schema *params.SchemaValidator, modules *params.ModuleValidator,
	queue *task.Queue, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		layout:   layout,
		ingestor: ingestor,
		fetcher:  fetcher,
		schema:   schema,
		modules:  modules,
		queue:    queue,
		log:      log,
	}
}

// SubmitNew runs a fresh submission end to end and returns the job token.
// On any error the workspace is rolled back and the triggering error is
// returned unchanged so the caller can classify it for the user.
func (o *Orchestrator) SubmitNew(ctx context.Context, sub Submission) (string, error) {
	doc, err := params.Defaults()
	if err != nil {
		return "", err
	}

	token, err := o.layout.Allocate()
	if err != nil {
		return "", err
	}
	o.advance(token, stageWorkspaceAllocated)

	if err := o.ingestor.IngestForm(doc, sub.Files, o.layout, token); err != nil {
		return "", o.rollback(token, err)
	}
	o.advance(token, stageFilesIngested)

	if err := params.Assemble(doc, sub.Form); err != nil {
		return "", o.rollback(token, err)
	}
	o.advance(token, stageFieldsAssembled)

	if err := o.resolveExternalRef(ctx, token, doc); err != nil {
		return "", o.rollback(token, err)
	}
	o.advance(token, stageExternalRefResolved)

	if err := o.modules.Validate(doc); err != nil {
		return "", o.rollback(token, err)
	}
	if err := o.schema.ValidateDocument(doc); err != nil {
		return "", o.rollback(token, err)
	}
	o.advance(token, stageValidated)

	if err := doc.WriteFile(o.layout.ParamsFile(token)); err != nil {
		return "", o.rollback(token, err)
	}
	o.advance(token, stagePersisted)

	job := task.Job{Token: token, NotifyAddress: sub.Form["emailInput"]}
	if err := o.queue.Dispatch(job); err != nil {
		return "", o.rollback(token, err)
	}
	o.advance(token, stageDispatched)

	o.log.Info().Str("job_id", token).Msg("Submitted analysis job")
	return token, nil
}

// resolveExternalRef verifies a referenced antiSMASH job before the
// submission is accepted and records where its extracted results will live.
// The archives themselves are downloaded by the background worker.
func (o *Orchestrator) resolveExternalRef(ctx context.Context, token string, doc params.Document) error {
	jobID := doc.GetString("AsResultsParameters", "job_id")
	if jobID == "" {
		return nil
	}

	archives, err := o.fetcher.Resolve(ctx, jobID)
	if err != nil {
		return err
	}

	dir := filepath.Join(o.layout.JobDir(token), antismash.ArchiveStem(archives[0]))
	return doc.Set("AsResultsParameters", "directory_path", dir)
}

// advance logs a pipeline stage transition.
func (o *Orchestrator) advance(token string, s stage) {
	o.log.Debug().Str("job_id", token).Stringer("stage", s).Msg("Submission stage reached")
}

// rollback removes the job workspace after a pipeline failure and hands the
// triggering error back for the caller to surface.
func (o *Orchestrator) rollback(token string, cause error) error {
	if err := o.layout.Rollback(token); err != nil {
		o.log.Error().Err(err).Str("job_id", token).Msg("Workspace rollback failed")
	} else {
		o.advance(token, stageRolledBack)
	}
	o.log.Warn().Err(cause).Str("job_id", token).Msg("Submission rejected")
	return cause
}

// NotFoundError reports a job identifier with no session on record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find a session for job ID %q", e.ID)
}
