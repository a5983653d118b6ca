// Package server exposes the submission pipeline over HTTP: one dispatch
// route multiplexing the submission modes, filesystem-derived job status and
// artifact downloads. Responses are JSON only.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/fermo-metabolomics/fermo-srv/internal/antismash"
	"github.com/fermo-metabolomics/fermo-srv/internal/config"
	"github.com/fermo-metabolomics/fermo-srv/internal/params"
	"github.com/fermo-metabolomics/fermo-srv/internal/submit"
	"github.com/fermo-metabolomics/fermo-srv/internal/task"
	"github.com/fermo-metabolomics/fermo-srv/internal/upload"
	"github.com/fermo-metabolomics/fermo-srv/internal/workspace"
)

// maxFormMemory bounds the in-memory portion of multipart parsing; larger
// uploads spill to temporary files which still satisfy the seekable stream
// contract of the ingestor.
const maxFormMemory = 32 << 20

// Server is the HTTP surface over the submission pipeline.
type Server struct {
	cfg    *config.Config
	layout *workspace.Layout
	orch   *submit.Orchestrator
	log    zerolog.Logger
	router chi.Router
}

// New builds the server and mounts its routes.
func New(cfg *config.Config, layout *workspace.Layout, orch *submit.Orchestrator, log zerolog.Logger) *Server {
	s := &Server{cfg: cfg, layout: layout, orch: orch, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/analysis/dispatch/", s.handleDispatch)
	r.Get("/results/{jobID}/", s.handleStatus)
	r.Get("/downloads/{jobID}/{identifier}/", s.handleDownload)

	s.router = r
	return s
}

// Handler returns the mounted route tree.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDispatch multiplexes the submission modes on the submitted form: a
// prior job ID reopens or reuses a stored session, an uploaded session file
// seeds a fresh workspace, and everything else is a new analysis submission.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("request is not a valid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := make(map[string]string, len(r.MultipartForm.Value))
	for field, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			form[field] = values[0]
		}
	}

	switch {
	case form["SessionId"] != "":
		s.dispatchSessionByID(w, form["SessionId"])
	case form["ParameterId"] != "":
		s.dispatchParamsByID(w, form["ParameterId"])
	case s.hasFile(r, "SessionFile"):
		s.dispatchSessionUpload(w, r)
	case s.hasFile(r, "ParameterFile"):
		s.dispatchParamsUpload(w, r)
	default:
		s.dispatchNew(w, r, form)
	}
}

func (s *Server) dispatchNew(w http.ResponseWriter, r *http.Request, form map[string]string) {
	files, closeAll, err := openUploads(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer closeAll()

	token, err := s.orch.SubmitNew(r.Context(), submit.Submission{Form: form, Files: files})
	if err != nil {
		s.writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": token,
		"status": workspace.StatusPending.String(),
	})
}

func (s *Server) dispatchSessionByID(w http.ResponseWriter, token string) {
	if _, err := s.orch.LoadSessionByID(token); err != nil {
		s.writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id":  token,
		"status":  s.layout.Resolve(token).String(),
		"results": "/results/" + token + "/",
	})
}

func (s *Server) dispatchParamsByID(w http.ResponseWriter, token string) {
	doc, err := s.orch.LoadParamsByID(token)
	if err != nil {
		s.writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     token,
		"parameters": doc,
	})
}

func (s *Server) dispatchSessionUpload(w http.ResponseWriter, r *http.Request) {
	stream, cleanup, err := openUpload(r, "SessionFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cleanup()

	token, err := s.orch.LoadSessionByUpload(stream)
	if err != nil {
		s.writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"job_id":  token,
		"status":  s.layout.Resolve(token).String(),
		"results": "/results/" + token + "/",
	})
}

func (s *Server) dispatchParamsUpload(w http.ResponseWriter, r *http.Request) {
	stream, cleanup, err := openUpload(r, "ParameterFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	defer cleanup()

	doc, token, err := s.orch.LoadParamsByUpload(stream)
	if err != nil {
		s.writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"job_id":     token,
		"parameters": doc,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "jobID")
	status := s.layout.Resolve(token)
	if status == workspace.StatusNotFound {
		writeError(w, http.StatusNotFound, &submit.NotFoundError{ID: token})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": token,
		"status": status.String(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "jobID")
	identifier := chi.URLParam(r, "identifier")

	path, err := s.layout.Artifact(token, identifier)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("no such result artifact"))
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) hasFile(r *http.Request, field string) bool {
	headers := r.MultipartForm.File[field]
	return len(headers) > 0 && headers[0].Filename != ""
}

// writeSubmissionError maps pipeline errors onto HTTP statuses. The error's
// own description is the single user-facing message; anything unclassified
// stays a generic 500 so internals never leak.
func (s *Server) writeSubmissionError(w http.ResponseWriter, err error) {
	var (
		tooLarge   *upload.FileTooLargeError
		schemaErr  *params.SchemaError
		asmErr     *params.AssemblyError
		modErr     *params.ModuleError
		notFound   *submit.NotFoundError
		asNotFound *antismash.NotFoundError
		timeout    *antismash.UpstreamTimeoutError
	)
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err)
	case errors.As(err, &schemaErr), errors.As(err, &asmErr), errors.As(err, &modErr), errors.As(err, &asNotFound):
		writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &timeout):
		writeError(w, http.StatusBadGateway, err)
	case errors.Is(err, task.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		s.log.Error().Err(err).Msg("Submission failed")
		writeError(w, http.StatusInternalServerError, errors.New("internal error during submission"))
	}
}

// openUploads opens every uploaded file of the request as a named seekable
// stream, keyed by form field. The returned cleanup closes all of them.
func openUploads(r *http.Request) (map[string][]upload.NamedStream, func(), error) {
	files := make(map[string][]upload.NamedStream)
	var closers []func() error

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				closeAll()
				return nil, nil, errors.New("failed to read uploaded file " + header.Filename)
			}
			closers = append(closers, f.Close)
			files[field] = append(files[field], upload.NamedStream{Name: header.Filename, Content: f})
		}
	}
	return files, closeAll, nil
}

// openUpload opens the first file of one form field.
func openUpload(r *http.Request, field string) (upload.NamedStream, func(), error) {
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return upload.NamedStream{}, nil, errors.New("no file provided for field " + field)
	}
	f, err := headers[0].Open()
	if err != nil {
		return upload.NamedStream{}, nil, errors.New("failed to read uploaded file " + headers[0].Filename)
	}
	return upload.NamedStream{Name: headers[0].Filename, Content: f}, func() { f.Close() }, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
