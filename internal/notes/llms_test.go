package notes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mumehta/MeetScribe/internal/notes"
)

func newCompletionsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body)) // nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIGenerate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	srv := newCompletionsServer(t, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 0,
		"model": "gpt-4o-mini",
		"choices": [
			{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "hello"}}
		]
	}`)

	llm := notes.NewOpenAI("gpt-4o-mini", srv.URL)
	out, err := llm.Generate(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestOpenAIGenerateEmptyChoices(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	srv := newCompletionsServer(t, `{
		"id": "chatcmpl-2",
		"object": "chat.completion",
		"created": 0,
		"model": "gpt-4o-mini",
		"choices": []
	}`)

	llm := notes.NewOpenAI("gpt-4o-mini", srv.URL)
	_, err := llm.Generate(context.Background(), "", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
