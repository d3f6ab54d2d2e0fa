package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mumehta/MeetScribe/pkg/api"
)

type Kind string

const (
	KindPreparation   Kind = "PREPARATION"
	KindTranscription Kind = "TRANSCRIPTION"
	KindNotes         Kind = "NOTES"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether a status is final. Terminal records are immutable.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result is the stage-specific payload of a completed task. Exactly one field
// is set, matching the task kind.
type Result struct {
	Preparation   *api.PreparationResult   `json:"preparation,omitempty"`
	Transcription *api.TranscriptionResult `json:"transcription,omitempty"`
	Notes         *api.NotesDocument       `json:"notes,omitempty"`
}

// TaskError is the structured failure description of a failed task. Messages
// from external collaborators are carried verbatim.
type TaskError struct {
	Stage   Kind      `json:"stage"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Task is one stage instance. Once a task reaches a terminal status the
// record never changes again; reads always observe the same result,
// error, and completion time.
type Task struct {
	ID        uuid.UUID
	Kind      Kind
	Status    Status
	CreatedAt time.Time

	// CompletedAt is set exactly once, on the transition into a terminal
	// status.
	CompletedAt *time.Time

	// InputRef names the upstream task whose output feeds this one.
	// uuid.Nil for preparation tasks.
	InputRef uuid.UUID

	// ConfigSnapshot is the serialized effective configuration captured at
	// launch. It is never re-resolved.
	ConfigSnapshot json.RawMessage

	Result *Result
	Error  *TaskError
}

// upstreamKind maps a dependent stage to the kind its InputRef must name.
func upstreamKind(k Kind) (Kind, bool) {
	switch k {
	case KindTranscription:
		return KindPreparation, true
	case KindNotes:
		return KindTranscription, true
	default:
		return "", false
	}
}
