package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mumehta/MeetScribe/internal/audio"
	"github.com/mumehta/MeetScribe/internal/dispatch"
	"github.com/mumehta/MeetScribe/internal/notes"
	"github.com/mumehta/MeetScribe/internal/snapshot"
	"github.com/mumehta/MeetScribe/internal/storage"
	"github.com/mumehta/MeetScribe/internal/tasks"
	"github.com/mumehta/MeetScribe/internal/transcribe"
)

// ErrCollaboratorFailure wraps any failure reported by an external stage
// collaborator. The collaborator's own message is carried into the task
// error verbatim.
var ErrCollaboratorFailure = errors.New("collaborator failure")

// Collaborators are the stage implementations the executor drives.
type Collaborators struct {
	Preparer    audio.Preparer
	Transcriber transcribe.Transcriber
	Notes       notes.Generator
	Documents   storage.DocumentStore
}

// resolveSnapshotFunc matches snapshot.ResolveDir; swapped in tests.
type resolveSnapshotFunc func(mode snapshot.Mode, basePath, credential string) (snapshot.Resolution, error)

// Executor runs one stage task per message and records the outcome on the
// task registry. A stage failure never escapes as an error; it becomes the
// task's terminal Failed state.
type Executor struct {
	registry        *tasks.Registry
	collab          Collaborators
	resolveSnapshot resolveSnapshotFunc
}

func NewExecutor(registry *tasks.Registry, collab Collaborators) *Executor {
	return &Executor{
		registry:        registry,
		collab:          collab,
		resolveSnapshot: snapshot.ResolveDir,
	}
}

func (e *Executor) Run(ctx context.Context, payload dispatch.StagePayload) error {
	if err := e.registry.Start(payload.TaskID); err != nil {
		return fmt.Errorf("starting task %s: %w", payload.TaskID, err)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("stage executor panicked", "task_id", payload.TaskID, "kind", payload.Kind, "panic", r)
			e.fail(payload.TaskID, payload.Kind, fmt.Sprintf("internal error: %v", r))
		}
	}()

	switch payload.Kind {
	case tasks.KindPreparation:
		e.runPreparation(ctx, payload)
	case tasks.KindTranscription:
		e.runTranscription(ctx, payload)
	case tasks.KindNotes:
		e.runNotes(ctx, payload)
	default:
		e.fail(payload.TaskID, payload.Kind, fmt.Sprintf("unknown task kind %q", payload.Kind))
	}

	return nil
}

func (e *Executor) runPreparation(ctx context.Context, payload dispatch.StagePayload) {
	res, err := e.collab.Preparer.Process(ctx, payload.FileRef, payload.OriginalName)
	if err != nil {
		e.failCollaborator(payload.TaskID, tasks.KindPreparation, err)
		return
	}
	e.complete(payload.TaskID, tasks.KindPreparation, tasks.Result{Preparation: &res})
}

func (e *Executor) runTranscription(ctx context.Context, payload dispatch.StagePayload) {
	cfg := payload.Config
	cfg.Credential = payload.Credential

	var snap snapshot.Resolution
	if cfg.UseDiarization {
		var err error
		snap, err = e.resolveSnapshot(cfg.DiarizationMode, cfg.ModelPath, cfg.Credential)
		if err != nil {
			e.fail(payload.TaskID, tasks.KindTranscription, err.Error())
			return
		}
	}

	res, err := e.collab.Transcriber.Run(ctx, payload.ConvertedFileRef, cfg, snap)
	if err != nil {
		e.failCollaborator(payload.TaskID, tasks.KindTranscription, err)
		return
	}

	e.saveDocument(ctx, payload.TaskID, fmt.Sprintf("transcript_%s.txt", payload.TaskID), notes.FormatTranscript(res.Segments))
	e.complete(payload.TaskID, tasks.KindTranscription, tasks.Result{Transcription: &res})
}

func (e *Executor) runNotes(ctx context.Context, payload dispatch.StagePayload) {
	doc, err := e.collab.Notes.Generate(ctx, payload.Segments, payload.Config)
	if err != nil {
		e.failCollaborator(payload.TaskID, tasks.KindNotes, err)
		return
	}

	e.saveDocument(ctx, payload.TaskID, fmt.Sprintf("notes_%s.md", payload.TaskID), doc.Markdown)
	e.complete(payload.TaskID, tasks.KindNotes, tasks.Result{Notes: &doc})
}

// saveDocument exports a rendered document for completed work. The export is
// a convenience; failing to write it does not fail the task.
func (e *Executor) saveDocument(ctx context.Context, id uuid.UUID, name, content string) {
	if e.collab.Documents == nil || content == "" {
		return
	}
	if ref, err := e.collab.Documents.Save(ctx, name, []byte(content)); err != nil {
		slog.Warn("failed to save document", "task_id", id, "name", name, "error", err)
	} else {
		slog.Info("saved document", "task_id", id, "ref", ref)
	}
}

func (e *Executor) complete(id uuid.UUID, kind tasks.Kind, result tasks.Result) {
	if err := e.registry.Complete(id, result); err != nil {
		slog.Error("failed to record task completion", "task_id", id, "kind", kind, "error", err)
		return
	}
	slog.Info("task completed", "task_id", id, "kind", kind)
}

func (e *Executor) failCollaborator(id uuid.UUID, kind tasks.Kind, err error) {
	e.fail(id, kind, fmt.Errorf("%w: %v", ErrCollaboratorFailure, err).Error())
}

func (e *Executor) fail(id uuid.UUID, kind tasks.Kind, message string) {
	slog.Error("task failed", "task_id", id, "kind", kind, "error", message)
	if err := e.registry.Fail(id, tasks.TaskError{Stage: kind, Message: message}); err != nil {
		slog.Error("failed to record task failure", "task_id", id, "kind", kind, "error", err)
	}
}
