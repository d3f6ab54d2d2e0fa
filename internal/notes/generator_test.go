package notes_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mumehta/MeetScribe/internal/config"
	"github.com/mumehta/MeetScribe/internal/notes"
	"github.com/mumehta/MeetScribe/pkg/api"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, _, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	return f.response, f.err
}

func testConfig() config.EffectiveConfig {
	return config.EffectiveConfig{NotesBackend: "ollama", NotesModel: "llama2"}
}

func testSegments() []api.TranscriptSegment {
	return []api.TranscriptSegment{
		{Start: 0, End: 4, Speaker: "SPEAKER_01", Text: "Let's review the launch plan."},
		{Start: 65, End: 70, Speaker: "SPEAKER_02", Text: "I will draft the announcement."},
	}
}

func generatorWith(llm notes.LLM) *notes.LLMGenerator {
	return notes.NewLLMGenerator(func(config.EffectiveConfig) (notes.LLM, error) { return llm, nil })
}

func TestGenerateParsesStructuredResponse(t *testing.T) {
	llm := &fakeLLM{response: `{
		"summary": "The team reviewed the launch plan.",
		"key_points": ["Launch plan reviewed"],
		"action_items": ["SPEAKER_02 drafts the announcement"],
		"participants": ["SPEAKER_01", "SPEAKER_02"]
	}`}

	doc, err := generatorWith(llm).Generate(context.Background(), testSegments(), testConfig())
	require.NoError(t, err)

	assert.Equal(t, "The team reviewed the launch plan.", doc.Summary)
	assert.Equal(t, []string{"Launch plan reviewed"}, doc.KeyPoints)
	assert.Equal(t, []string{"SPEAKER_02 drafts the announcement"}, doc.ActionItems)
	assert.Equal(t, []string{"SPEAKER_01", "SPEAKER_02"}, doc.Participants)
	assert.Equal(t, "ollama/llama2", doc.ModelUsed)

	assert.Contains(t, doc.Markdown, "# Meeting Notes")
	assert.Contains(t, doc.Markdown, "- Launch plan reviewed")
}

func TestGenerateStripsCodeFences(t *testing.T) {
	llm := &fakeLLM{response: "```json\n{\"summary\": \"Fenced summary.\", \"key_points\": [], \"action_items\": [], \"participants\": [\"SPEAKER_01\"]}\n```"}

	doc, err := generatorWith(llm).Generate(context.Background(), testSegments(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, "Fenced summary.", doc.Summary)
}

func TestGenerateFallsBackToPlainText(t *testing.T) {
	llm := &fakeLLM{response: "The meeting covered the launch plan and next steps."}

	doc, err := generatorWith(llm).Generate(context.Background(), testSegments(), testConfig())
	require.NoError(t, err)

	assert.Equal(t, "The meeting covered the launch plan and next steps.", doc.Summary)
	assert.Empty(t, doc.KeyPoints)
	// speakers come from the transcript when the model names none
	assert.Equal(t, []string{"SPEAKER_01", "SPEAKER_02"}, doc.Participants)
}

func TestGenerateFormatsTranscriptTimestamps(t *testing.T) {
	llm := &fakeLLM{response: `{"summary": "ok"}`}

	_, err := generatorWith(llm).Generate(context.Background(), testSegments(), testConfig())
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "[00:00] SPEAKER_01: Let's review the launch plan.")
	assert.Contains(t, llm.prompts[0], "[01:05] SPEAKER_02: I will draft the announcement.")
}

func TestGeneratePropagatesModelError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection refused")}

	_, err := generatorWith(llm).Generate(context.Background(), testSegments(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes generation failed")
}

func TestDefaultLLMFactoryRejectsUnknownBackend(t *testing.T) {
	_, err := notes.DefaultLLMFactory(config.EffectiveConfig{NotesBackend: "bard"})
	require.Error(t, err)
}
