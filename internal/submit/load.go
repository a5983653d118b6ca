package submit

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fermo-metabolomics/fermo-srv/internal/params"
	"github.com/fermo-metabolomics/fermo-srv/internal/upload"
)

// LoadSessionByID reopens the stored session of a finished job: the session
// file is validated, migrated to current module names and rewritten in
// place, and the merged parameter document is returned. The caller is
// expected to point the user at the existing results.
func (o *Orchestrator) LoadSessionByID(token string) (params.Document, error) {
	return o.loadByID(token)
}

// LoadParamsByID returns the merged parameter document of a finished job so
// its settings can seed a new submission form. The stored session file is
// validated and migrated the same way as for a session reload.
func (o *Orchestrator) LoadParamsByID(token string) (params.Document, error) {
	return o.loadByID(token)
}

func (o *Orchestrator) loadByID(token string) (params.Document, error) {
	doc, err := params.Defaults()
	if err != nil {
		return nil, err
	}
	if err := o.checkSession(token, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSessionByUpload accepts a user-provided session file, stores it in a
// fresh workspace under the canonical session name and validates it. The
// workspace is rolled back when the file is oversized or malformed. On
// success the new job token is returned and the job immediately resolves as
// succeeded.
func (o *Orchestrator) LoadSessionByUpload(file upload.NamedStream) (string, error) {
	token, _, err := o.sessionFromUpload(file)
	return token, err
}

// LoadParamsByUpload accepts a user-provided session file like
// LoadSessionByUpload but also returns the merged parameter document for
// form re-display.
func (o *Orchestrator) LoadParamsByUpload(file upload.NamedStream) (params.Document, string, error) {
	token, doc, err := o.sessionFromUpload(file)
	return doc, token, err
}

func (o *Orchestrator) sessionFromUpload(file upload.NamedStream) (string, params.Document, error) {
	name := upload.SanitizeFilename(file.Name)
	if name == "" {
		return "", nil, fmt.Errorf("no session file provided")
	}

	token, err := o.layout.Allocate()
	if err != nil {
		return "", nil, err
	}
	o.advance(token, stageWorkspaceAllocated)

	if _, err := o.ingestor.SaveTo(file.Content, name, o.layout.SessionFile(token)); err != nil {
		return "", nil, o.rollback(token, err)
	}
	o.advance(token, stageFilesIngested)

	doc, err := params.Defaults()
	if err != nil {
		return "", nil, o.rollback(token, err)
	}
	if err := o.checkSession(token, doc); err != nil {
		return "", nil, o.rollback(token, err)
	}
	o.advance(token, stageValidated)

	o.log.Info().Str("job_id", token).Msg("Loaded uploaded session file")
	return token, doc, nil
}

// checkSession reads the stored session of token, validates it against the
// schema, migrates deprecated module names, merges its parameters into doc
// and rewrites the migrated session in place.
func (o *Orchestrator) checkSession(token string, doc params.Document) error {
	path := o.layout.SessionFile(token)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{ID: token}
		}
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var session map[string]any
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("incorrect session file formatting: %w", err)
	}
	if err := o.schema.ValidateSession(session); err != nil {
		return err
	}

	session = params.MigrateLegacyKeys(session)
	params.ApplySession(doc, session)

	migrated, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize migrated session: %w", err)
	}
	if err := os.WriteFile(path, migrated, 0o644); err != nil {
		return fmt.Errorf("failed to rewrite migrated session: %w", err)
	}
	return nil
}
