// Package notes turns a speaker-labeled transcript into structured meeting
// notes with a language model.
package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mumehta/MeetScribe/internal/config"
	"github.com/mumehta/MeetScribe/pkg/api"
)

// Generator is the notes collaborator consumed by the pipeline.
type Generator interface {
	Generate(ctx context.Context, segments []api.TranscriptSegment, cfg config.EffectiveConfig) (api.NotesDocument, error)
}

// LLMFactory builds the model backend for a resolved configuration. Backends
// are constructed per task because the model name and base URL are
// per-request configurable.
type LLMFactory func(cfg config.EffectiveConfig) (LLM, error)

// DefaultLLMFactory selects ollama or openai per the resolved notes backend.
func DefaultLLMFactory(cfg config.EffectiveConfig) (LLM, error) {
	switch cfg.NotesBackend {
	case "openai":
		return NewOpenAI(cfg.NotesModel, ""), nil
	case "ollama":
		return NewOllama(cfg.NotesModel, cfg.OllamaBaseURL)
	default:
		return nil, fmt.Errorf("unknown notes backend %q", cfg.NotesBackend)
	}
}

type LLMGenerator struct {
	factory LLMFactory
}

func NewLLMGenerator(factory LLMFactory) *LLMGenerator {
	return &LLMGenerator{factory: factory}
}

const systemPrompt = `You are an expert meeting assistant. You produce accurate, concise meeting notes from transcripts. Respond with JSON only, no prose around it.`

const promptTemplate = `Analyze the following meeting transcript and produce meeting notes.

Respond with a single JSON object with exactly these fields:
  "summary": a 2-4 sentence summary of the meeting,
  "key_points": an array of the main discussion points,
  "action_items": an array of concrete action items with owners when stated,
  "participants": an array of the speaker labels or names that took part.

Transcript:
%s`

// modelNotes is the JSON shape requested from the model.
type modelNotes struct {
	Summary      string   `json:"summary"`
	KeyPoints    []string `json:"key_points"`
	ActionItems  []string `json:"action_items"`
	Participants []string `json:"participants"`
}

func (g *LLMGenerator) Generate(ctx context.Context, segments []api.TranscriptSegment, cfg config.EffectiveConfig) (api.NotesDocument, error) {
	llm, err := g.factory(cfg)
	if err != nil {
		return api.NotesDocument{}, err
	}

	transcript := FormatTranscript(segments)
	content, err := llm.Generate(ctx, systemPrompt, fmt.Sprintf(promptTemplate, transcript))
	if err != nil {
		return api.NotesDocument{}, fmt.Errorf("notes generation failed: %w", err)
	}

	parsed := parseModelNotes(content)
	if len(parsed.Participants) == 0 {
		parsed.Participants = distinctSpeakers(segments)
	}

	doc := api.NotesDocument{
		Summary:      parsed.Summary,
		KeyPoints:    parsed.KeyPoints,
		ActionItems:  parsed.ActionItems,
		Participants: parsed.Participants,
		ModelUsed:    cfg.NotesBackend + "/" + cfg.NotesModel,
	}
	doc.Markdown = RenderMarkdown(doc)
	return doc, nil
}

// parseModelNotes is forgiving about the model's framing: fenced code blocks
// are stripped, and content that is not valid JSON at all becomes the
// summary verbatim rather than an error.
func parseModelNotes(content string) modelNotes {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	var parsed modelNotes
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || parsed.Summary == "" {
		return modelNotes{Summary: strings.TrimSpace(content)}
	}
	return parsed
}

// FormatTranscript renders segments as "[MM:SS] SPEAKER: text" lines, the
// shape the prompt expects.
func FormatTranscript(segments []api.TranscriptSegment) string {
	var b strings.Builder
	for _, seg := range segments {
		total := int(seg.Start)
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "SPEAKER"
		}
		fmt.Fprintf(&b, "[%02d:%02d] %s: %s\n", total/60, total%60, speaker, seg.Text)
	}
	return b.String()
}

func distinctSpeakers(segments []api.TranscriptSegment) []string {
	seen := make(map[string]struct{})
	for _, seg := range segments {
		if seg.Speaker != "" {
			seen[seg.Speaker] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sp := range seen {
		out = append(out, sp)
	}
	sort.Strings(out)
	return out
}

// RenderMarkdown produces the document that gets written to the output
// store alongside the JSON response.
func RenderMarkdown(doc api.NotesDocument) string {
	var b strings.Builder
	b.WriteString("# Meeting Notes\n\n")
	b.WriteString("## Summary\n\n")
	b.WriteString(doc.Summary + "\n")

	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n## " + title + "\n\n")
		for _, item := range items {
			b.WriteString("- " + item + "\n")
		}
	}
	writeList("Key Points", doc.KeyPoints)
	writeList("Action Items", doc.ActionItems)
	writeList("Participants", doc.Participants)

	if doc.ModelUsed != "" {
		b.WriteString("\n---\n\nGenerated by " + doc.ModelUsed + "\n")
	}
	return b.String()
}
