package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FileInfo describes the uploaded media file as reported by the audio
// preparer's probe step.
type FileInfo struct {
	OriginalFormat  string  `json:"original_format"`
	FileSizeBytes   int64   `json:"file_size_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	FormatName      string  `json:"format_name,omitempty"`
	Codec           string  `json:"codec,omitempty"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	Channels        int     `json:"channels,omitempty"`
	BitRate         int64   `json:"bit_rate,omitempty"`
}

type PreparationResult struct {
	FileInfo         FileInfo `json:"file_info"`
	ConvertedFileRef string   `json:"converted_file_ref"`
}

// Word is a single word with timestamps, used to split transcript segments
// at speaker turn boundaries.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Words   []Word  `json:"words,omitempty"`
}

type TranscriptionResult struct {
	Language            string              `json:"language"`
	LanguageProbability float64             `json:"language_probability"`
	Segments            []TranscriptSegment `json:"segments"`
}

type NotesDocument struct {
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	ActionItems  []string `json:"action_items"`
	Participants []string `json:"participants"`
	Markdown     string   `json:"markdown,omitempty"`
	ModelUsed    string   `json:"model_used,omitempty"`
}

// ConfigOverrides carries the per-request configuration overrides. Fields are
// pointers so an absent parameter is distinguishable from a zero value; only
// explicitly supplied values participate in precedence resolution.
type ConfigOverrides struct {
	WhisperModel    *string `schema:"whisper_model" json:"whisper_model,omitempty"`
	ComputeType     *string `schema:"compute_type" json:"compute_type,omitempty"`
	UseDiarization  *bool   `schema:"use_diarization" json:"use_diarization,omitempty"`
	DiarizationMode *string `schema:"diarization_mode" json:"diarization_mode,omitempty"`
	MinSpeakers     *int    `schema:"min_speakers" json:"min_speakers,omitempty"`
	MaxSpeakers     *int    `schema:"max_speakers" json:"max_speakers,omitempty"`
	NotesBackend    *string `schema:"notes_backend" json:"notes_backend,omitempty"`
	NotesModel      *string `schema:"notes_model" json:"notes_model,omitempty"`
}

type StartTaskResponse struct {
	TaskID uuid.UUID `json:"task_id"`
	Status string    `json:"status"`
}

type TaskError struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// TaskResponse is the poll-read view of a task. Result fields are populated
// according to the task kind, and only once the task is terminal.
type TaskResponse struct {
	TaskID         uuid.UUID            `json:"task_id"`
	Kind           string               `json:"kind"`
	Status         string               `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	InputRef       *uuid.UUID           `json:"input_ref,omitempty"`
	ConfigSnapshot json.RawMessage      `json:"config_snapshot,omitempty"`
	FileInfo       *FileInfo            `json:"file_info,omitempty"`
	ConvertedRef   string               `json:"converted_file_ref,omitempty"`
	Result         *TranscriptionResult `json:"result,omitempty"`
	Notes          *NotesDocument       `json:"notes,omitempty"`
	Error          *TaskError           `json:"error,omitempty"`
}
