// Package transcribe talks to the speech-to-text inference sidecar and
// attributes transcript segments to speakers.
package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mumehta/MeetScribe/internal/config"
	"github.com/mumehta/MeetScribe/internal/snapshot"
	"github.com/mumehta/MeetScribe/pkg/api"
)

// Transcriber is the transcription collaborator consumed by the pipeline.
type Transcriber interface {
	Run(ctx context.Context, convertedRef string, cfg config.EffectiveConfig, snap snapshot.Resolution) (api.TranscriptionResult, error)
}

type transcribeRequest struct {
	AudioPath      string              `json:"audio_path"`
	Model          string              `json:"model"`
	ComputeType    string              `json:"compute_type"`
	Language       string              `json:"language"`
	WordTimestamps bool                `json:"word_timestamps"`
	VADFilter      bool                `json:"vad_filter"`
	Diarization    *diarizationRequest `json:"diarization,omitempty"`
}

type diarizationRequest struct {
	MinSpeakers int `json:"min_speakers"`
	MaxSpeakers int `json:"max_speakers"`

	// Exactly one of the local snapshot or the remote fetch directive is
	// set, per the resolver's outcome. When a local snapshot is used the
	// sidecar must not touch the network.
	SnapshotManifest string `json:"snapshot_manifest,omitempty"`
	OfflineOnly      bool   `json:"offline_only"`
	FetchRemotely    bool   `json:"fetch_remotely,omitempty"`
	AuthToken        string `json:"auth_token,omitempty"`
}

type transcribeResponse struct {
	Language            string                  `json:"language"`
	LanguageProbability float64                 `json:"language_probability"`
	Segments            []api.TranscriptSegment `json:"segments"`
	Turns               []Turn                  `json:"diarization_turns,omitempty"`
}

// HTTPTranscriber calls a faster-whisper inference server over HTTP. The
// resty client is built once and shared by all executors.
type HTTPTranscriber struct {
	client *resty.Client
}

func NewHTTPTranscriber(baseURL string) *HTTPTranscriber {
	return &HTTPTranscriber{
		// Inference on long recordings is slow; the generous timeout is
		// the collaborator's, the orchestrator itself enforces none.
		client: resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Minute),
	}
}

func (t *HTTPTranscriber) Run(ctx context.Context, convertedRef string, cfg config.EffectiveConfig, snap snapshot.Resolution) (api.TranscriptionResult, error) {
	req := transcribeRequest{
		AudioPath:      convertedRef,
		Model:          cfg.WhisperModel,
		ComputeType:    cfg.ComputeType,
		Language:       "en",
		WordTimestamps: true,
		VADFilter:      true,
	}

	if cfg.UseDiarization {
		d := &diarizationRequest{
			MinSpeakers: cfg.MinSpeakers,
			MaxSpeakers: cfg.MaxSpeakers,
		}
		switch {
		case snap.Local != nil:
			d.SnapshotManifest = snap.Local.ManifestPath
			d.OfflineOnly = true
		case snap.FetchRemotely:
			d.FetchRemotely = true
			d.AuthToken = snap.Credential
		}
		req.Diarization = d
	}

	var res transcribeResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&res).
		Post("/v1/transcribe")
	if err != nil {
		return api.TranscriptionResult{}, fmt.Errorf("transcription request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return api.TranscriptionResult{}, fmt.Errorf("transcription server returned %d: %s", resp.StatusCode(), resp.String())
	}

	segments := res.Segments
	if cfg.UseDiarization {
		segments = MergeSpeakerSegments(segments, res.Turns)
	}

	// Word timestamps served their purpose in the merge; the stored
	// result keeps only the speaker-labeled segments.
	for i := range segments {
		segments[i].Words = nil
	}

	return api.TranscriptionResult{
		Language:            res.Language,
		LanguageProbability: res.LanguageProbability,
		Segments:            segments,
	}, nil
}
