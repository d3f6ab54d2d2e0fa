// Package pipeline chains the three processing stages. The orchestrator
// validates a stage launch synchronously (dependency readiness, config
// resolution), registers the task, and publishes the work; the executor
// consumes published work and drives exactly one task record from Running to
// a terminal state.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mumehta/MeetScribe/internal/config"
	"github.com/mumehta/MeetScribe/internal/dispatch"
	"github.com/mumehta/MeetScribe/internal/snapshot"
	"github.com/mumehta/MeetScribe/internal/tasks"
	"github.com/mumehta/MeetScribe/pkg/api"
)

type Orchestrator struct {
	registry  *tasks.Registry
	resolver  *config.Resolver
	publisher dispatch.Publisher
}

func NewOrchestrator(registry *tasks.Registry, resolver *config.Resolver, publisher dispatch.Publisher) *Orchestrator {
	return &Orchestrator{registry: registry, resolver: resolver, publisher: publisher}
}

// StartPreparation registers and enqueues a preparation task for an uploaded
// file. fileRef is the stored upload path; originalName preserves the
// client's filename for format detection.
func (o *Orchestrator) StartPreparation(ctx context.Context, fileRef, originalName string) (tasks.Task, error) {
	cfg, err := o.resolver.Resolve(tasks.KindPreparation, api.ConfigOverrides{}, "")
	if err != nil {
		return tasks.Task{}, err
	}

	task, err := o.create(tasks.KindPreparation, uuid.Nil, cfg)
	if err != nil {
		return tasks.Task{}, err
	}

	return task, o.publish(ctx, dispatch.StagePayload{
		TaskID:       task.ID,
		Kind:         tasks.KindPreparation,
		FileRef:      fileRef,
		OriginalName: originalName,
		Config:       cfg,
	})
}

// StartTranscription registers and enqueues a transcription task against a
// completed preparation task. Config problems and an online diarization mode
// without a credential fail synchronously; no task record is created then.
func (o *Orchestrator) StartTranscription(ctx context.Context, prepID uuid.UUID, overrides api.ConfigOverrides, secret string) (tasks.Task, error) {
	cfg, err := o.resolver.Resolve(tasks.KindTranscription, overrides, secret)
	if err != nil {
		return tasks.Task{}, err
	}

	// Online mode is a pure parameter check; local snapshot resolution is
	// deferred to the executor so its failures land on the task record.
	if cfg.UseDiarization && cfg.DiarizationMode == snapshot.ModeOnline && cfg.Credential == "" {
		return tasks.Task{}, snapshot.ErrCredentialRequired
	}

	task, err := o.create(tasks.KindTranscription, prepID, cfg)
	if err != nil {
		return tasks.Task{}, err
	}

	upstream, err := o.registry.Get(prepID)
	if err != nil {
		return tasks.Task{}, err
	}

	return task, o.publish(ctx, dispatch.StagePayload{
		TaskID:           task.ID,
		Kind:             tasks.KindTranscription,
		ConvertedFileRef: upstream.Result.Preparation.ConvertedFileRef,
		Config:           cfg,
		Credential:       cfg.Credential,
	})
}

// StartNotes registers and enqueues a notes task against a completed
// transcription task.
func (o *Orchestrator) StartNotes(ctx context.Context, transcriptID uuid.UUID, overrides api.ConfigOverrides) (tasks.Task, error) {
	cfg, err := o.resolver.Resolve(tasks.KindNotes, overrides, "")
	if err != nil {
		return tasks.Task{}, err
	}

	task, err := o.create(tasks.KindNotes, transcriptID, cfg)
	if err != nil {
		return tasks.Task{}, err
	}

	upstream, err := o.registry.Get(transcriptID)
	if err != nil {
		return tasks.Task{}, err
	}

	return task, o.publish(ctx, dispatch.StagePayload{
		TaskID:   task.ID,
		Kind:     tasks.KindNotes,
		Segments: upstream.Result.Transcription.Segments,
		Config:   cfg,
	})
}

// GetStatus is the poll read: a snapshot of one task record. Callers poll
// this until the task is terminal.
func (o *Orchestrator) GetStatus(id uuid.UUID) (tasks.Task, error) {
	return o.registry.Get(id)
}

func (o *Orchestrator) create(kind tasks.Kind, inputRef uuid.UUID, cfg config.EffectiveConfig) (tasks.Task, error) {
	snapshotJSON, err := json.Marshal(cfg)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("serializing config snapshot: %w", err)
	}
	return o.registry.Create(kind, inputRef, snapshotJSON)
}

func (o *Orchestrator) publish(ctx context.Context, payload dispatch.StagePayload) error {
	if err := o.publisher.PublishStageTask(ctx, payload); err != nil {
		// No executor will ever pick this task up; fail the record so it
		// does not sit Pending forever.
		o.abandon(payload.TaskID, payload.Kind, err)
		return fmt.Errorf("enqueueing %s task %s: %w", payload.Kind, payload.TaskID, err)
	}
	return nil
}

func (o *Orchestrator) abandon(id uuid.UUID, kind tasks.Kind, cause error) {
	if err := o.registry.Start(id); err != nil {
		slog.Error("failed to abandon unpublished task", "task_id", id, "kind", kind, "error", err)
		return
	}
	taskErr := tasks.TaskError{Stage: kind, Message: fmt.Sprintf("enqueueing task: %v", cause)}
	if err := o.registry.Fail(id, taskErr); err != nil {
		slog.Error("failed to abandon unpublished task", "task_id", id, "kind", kind, "error", err)
	}
}
