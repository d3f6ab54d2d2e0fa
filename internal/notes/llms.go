package notes

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

// LLM is the minimal generation surface the notes stage needs from a
// language-model backend.
type LLM interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI builds an OpenAI-compatible backend. Credentials come from the
// ambient OPENAI_API_KEY; baseURL overrides the endpoint for compatible
// servers, empty means the platform default.
func NewOpenAI(model, baseURL string) *OpenAI {
	opts := []option.RequestOption{}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAI) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.model,
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		slog.Error("openai error: chat completions failed", "error", err)
		return "", fmt.Errorf("openai generation failed: %w", err)
	}

	if len(res.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return res.Choices[0].Message.Content, nil
}

type Ollama struct {
	llm *ollama.LLM
}

// NewOllama builds the local-model backend the original deployment defaults
// to.
func NewOllama(model, serverURL string) (*Ollama, error) {
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	return &Ollama{llm: llm}, nil
}

func (o *Ollama) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	content := []llms.MessageContent{}
	if systemPrompt != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	}
	content = append(content, llms.TextParts(schema.ChatMessageTypeHuman, userPrompt))

	res, err := o.llm.GenerateContent(ctx, content, llms.WithTemperature(0.7))
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("ollama returned no choices")
	}
	return res.Choices[0].Content, nil
}
