// Package dispatch carries stage work from the HTTP handlers to the worker
// goroutines that execute it.
package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/mumehta/MeetScribe/internal/config"
	"github.com/mumehta/MeetScribe/internal/tasks"
	"github.com/mumehta/MeetScribe/pkg/api"
)

const StageQueue = "stage_queue"

// StagePayload is the message published when a stage task is started. It
// carries everything the executor needs so that workers never reach back
// into request state.
type StagePayload struct {
	TaskID uuid.UUID
	Kind   tasks.Kind

	// preparation input
	FileRef      string
	OriginalName string

	// transcription input
	ConvertedFileRef string

	// notes input
	Segments []api.TranscriptSegment

	Config config.EffectiveConfig

	// Credential rides separately because the config's credential field is
	// excluded from serialization; it lives only as long as the message.
	Credential string
}

type Message interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type Publisher interface {
	PublishStageTask(ctx context.Context, payload StagePayload) error

	Close()
}

type Receiver interface {
	Messages() <-chan Message

	Close()
}
