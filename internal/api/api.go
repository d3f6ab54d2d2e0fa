// Package api exposes the transcription pipeline over HTTP. Every stage has
// a POST that launches a task and a GET that polls it; results are delivered
// through the poll, never the launch.
package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mumehta/MeetScribe/internal/config"
	"github.com/mumehta/MeetScribe/internal/pipeline"
	"github.com/mumehta/MeetScribe/internal/snapshot"
	"github.com/mumehta/MeetScribe/internal/tasks"
	"github.com/mumehta/MeetScribe/pkg/api"
)

// HFTokenHeader carries the per-request model hub credential. It is consumed
// at launch time and never stored.
const HFTokenHeader = "X-HuggingFace-Token"

var allowedExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".mp4": true,
	".ogg": true, ".flac": true, ".mov": true,
}

type BackendService struct {
	orchestrator *pipeline.Orchestrator
	registry     *tasks.Registry

	uploadDir      string
	maxUploadBytes int64
}

func NewBackendService(orchestrator *pipeline.Orchestrator, registry *tasks.Registry, uploadDir string, maxUploadBytes int64) *BackendService {
	return &BackendService{
		orchestrator:   orchestrator,
		registry:       registry,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))

	r.Route("/audio", func(r chi.Router) {
		r.Post("/upload", RestHandler(s.UploadAudio))
		r.Get("/{task_id}", RestHandler(s.GetPreparation))
	})
	r.Route("/transcribe", func(r chi.Router) {
		r.Post("/{task_id}", RestHandler(s.StartTranscription))
		r.Get("/{task_id}", RestHandler(s.GetTranscription))
	})
	r.Route("/notes", func(r chi.Router) {
		r.Post("/{task_id}", RestHandler(s.StartNotes))
		r.Get("/{task_id}", RestHandler(s.GetNotes))
	})
	r.Get("/tasks", RestHandler(s.ListTasks))
}

// UploadAudio accepts a multipart media upload, stores it, and launches the
// preparation stage. The response carries only the task id; conversion
// happens asynchronously.
func (s *BackendService) UploadAudio(r *http.Request) (any, error) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing or unreadable 'file' form field: %v", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		return nil, CodedErrorf(http.StatusBadRequest, "unsupported file extension %q", ext)
	}

	storedPath, err := s.storeUpload(file, ext)
	if err != nil {
		slog.Error("error storing upload", "filename", header.Filename, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store uploaded file")
	}

	task, err := s.orchestrator.StartPreparation(r.Context(), storedPath, header.Filename)
	if err != nil {
		return nil, mapPipelineError(err)
	}

	slog.Info("upload accepted", "task_id", task.ID, "filename", header.Filename)
	return api.StartTaskResponse{TaskID: task.ID, Status: string(task.Status)}, nil
}

func (s *BackendService) storeUpload(file io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	path := filepath.Join(s.uploadDir, uuid.NewString()+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *BackendService) GetPreparation(r *http.Request) (any, error) {
	return s.getTask(r, tasks.KindPreparation)
}

// StartTranscription launches the transcription stage against a completed
// preparation task. Config overrides arrive as query parameters; the model
// hub credential, if any, arrives in a header.
func (s *BackendService) StartTranscription(r *http.Request) (any, error) {
	prepID, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}

	overrides, err := ParseRequestQueryParams[api.ConfigOverrides](r)
	if err != nil {
		return nil, err
	}

	secret := r.Header.Get(HFTokenHeader)

	task, err := s.orchestrator.StartTranscription(r.Context(), prepID, overrides, secret)
	if err != nil {
		return nil, mapPipelineError(err)
	}

	return api.StartTaskResponse{TaskID: task.ID, Status: string(task.Status)}, nil
}

func (s *BackendService) GetTranscription(r *http.Request) (any, error) {
	return s.getTask(r, tasks.KindTranscription)
}

func (s *BackendService) StartNotes(r *http.Request) (any, error) {
	transcriptID, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}

	overrides, err := ParseRequestQueryParams[api.ConfigOverrides](r)
	if err != nil {
		return nil, err
	}

	task, err := s.orchestrator.StartNotes(r.Context(), transcriptID, overrides)
	if err != nil {
		return nil, mapPipelineError(err)
	}

	return api.StartTaskResponse{TaskID: task.ID, Status: string(task.Status)}, nil
}

func (s *BackendService) GetNotes(r *http.Request) (any, error) {
	return s.getTask(r, tasks.KindNotes)
}

func (s *BackendService) ListTasks(r *http.Request) (any, error) {
	type listParams struct {
		Kind string `schema:"kind"`
	}
	params, err := ParseRequestQueryParams[listParams](r)
	if err != nil {
		return nil, err
	}

	all := s.registry.List(tasks.Kind(strings.ToUpper(params.Kind)))
	out := make([]api.TaskResponse, len(all))
	for i, task := range all {
		out[i] = toTaskResponse(task)
	}
	return out, nil
}

// getTask reads one task, scoped to the endpoint's kind: a valid id of the
// wrong kind reads as not found, so each endpoint family only ever serves
// its own stage.
func (s *BackendService) getTask(r *http.Request, kind tasks.Kind) (any, error) {
	id, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}

	task, err := s.orchestrator.GetStatus(id)
	if err != nil || task.Kind != kind {
		return nil, CodedErrorf(http.StatusNotFound, "no %s task %s", strings.ToLower(string(kind)), id)
	}

	return toTaskResponse(task), nil
}

func mapPipelineError(err error) error {
	switch {
	case errors.Is(err, config.ErrInvalidConfig):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, tasks.ErrNotFound):
		return CodedError(http.StatusNotFound, err)
	case errors.Is(err, tasks.ErrDependencyNotReady):
		return CodedError(http.StatusConflict, err)
	case errors.Is(err, snapshot.ErrCredentialRequired):
		return CodedError(http.StatusUnprocessableEntity, err)
	default:
		return CodedErrorf(http.StatusInternalServerError, "failed to launch task: %v", err)
	}
}
