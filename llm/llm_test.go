package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// mockModel is a langchaingo model returning canned content and recording the call.
type mockModel struct {
	content  string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (m *mockModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, o := range options {
		o(&m.opts)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.content}},
	}, nil
}

func (m *mockModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.content, m.err
}

func TestParseObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{"plain", `{"npc_text":"Hello"}`, map[string]any{"npc_text": "Hello"}},
		{"fenced", "```json\n{\"a\": 1}\n```", map[string]any{"a": float64(1)}},
		{"chatter", "Sure! Here it is: {\"a\": true} Hope it helps.", map[string]any{"a": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObject(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "no json here", "{broken", "null", "[1,2]"} {
		_, err := ParseObject(bad)
		assert.ErrorIs(t, err, ErrMalformedResponse, bad)
	}
}

func TestDecode_WeakTyping(t *testing.T) {
	var out struct {
		Text       string `json:"text"`
		Difficulty int    `json:"difficulty"`
		Tags       []string
	}
	raw := map[string]any{"text": "hi", "difficulty": "3"}
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, "hi", out.Text)
	assert.Equal(t, 3, out.Difficulty)

	raw = map[string]any{"difficulty": map[string]any{"level": 1}}
	assert.ErrorIs(t, Decode(raw, &out), ErrMalformedResponse)
}

func TestDecode_FractionalIntegers(t *testing.T) {
	var out struct {
		Difficulty int            `json:"difficulty"`
		Scores     map[string]int `json:"scores"`
		Weight     float64        `json:"weight"`
	}
	raw := map[string]any{"difficulty": 4.0, "scores": map[string]any{"a": 5.0}, "weight": 0.5}
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, 4, out.Difficulty)
	assert.Equal(t, map[string]int{"a": 5}, out.Scores)
	assert.Equal(t, 0.5, out.Weight)

	for _, bad := range []map[string]any{
		{"difficulty": 5.8},
		{"scores": map[string]any{"a": 2.9}},
	} {
		var into struct {
			Difficulty int            `json:"difficulty"`
			Scores     map[string]int `json:"scores"`
		}
		assert.ErrorIs(t, Decode(bad, &into), ErrMalformedResponse, bad)
	}
}

func TestModelGenerator(t *testing.T) {
	model := &mockModel{content: "```json\n{\"scores\": {\"coherence\": 4}}\n```"}
	gen := &ModelGenerator{Model: model, JSONMode: true, Temperature: 0.3, MaxTokens: 512}

	out, err := gen.Generate(context.Background(), "rate this", "you are a critic")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"coherence": float64(4)}, out["scores"])

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.True(t, model.opts.JSONMode)
	assert.Equal(t, 0.3, model.opts.Temperature)
	assert.Equal(t, 512, model.opts.MaxTokens)
}

func TestModelGenerator_NoSystemPrompt(t *testing.T) {
	model := &mockModel{content: `{"ok": true}`}
	_, err := NewModelGenerator(model).Generate(context.Background(), "hi", "")
	require.NoError(t, err)
	require.Len(t, model.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[0].Role)
}

func TestModelGenerator_Errors(t *testing.T) {
	boom := errors.New("rate limited")
	_, err := NewModelGenerator(&mockModel{err: boom}).Generate(context.Background(), "p", "s")
	assert.ErrorIs(t, err, boom)

	_, err = NewModelGenerator(&mockModel{content: "I cannot do that"}).Generate(context.Background(), "p", "s")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestOpenAIGenerator(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "deepseek-chat",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"npc_text\": \"Well met.\"}"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "deepseek-chat", MaxTokens: 256}, srv.Client())
	out, err := gen.Generate(context.Background(), "greet", "you are an innkeeper")
	require.NoError(t, err)
	assert.Equal(t, "Well met.", out["npc_text"])

	assert.Equal(t, "deepseek-chat", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIGenerator_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"}, srv.Client())
	_, err := gen.Generate(context.Background(), "p", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
}

func TestNew(t *testing.T) {
	_, err := New(Config{Model: "deepseek-chat"})
	assert.ErrorContains(t, err, "api key is required")

	_, err = New(Config{APIKey: "k", Provider: "anthropic-direct"})
	assert.ErrorContains(t, err, "unknown provider")

	gen, err := New(Config{APIKey: "k", Provider: ProviderOpenAI, Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, gen)

	gen, err = New(Config{APIKey: "k", BaseURL: "http://localhost:1/v1", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &ModelGenerator{}, gen)
}

func TestGeneratorFunc(t *testing.T) {
	var gen Generator = GeneratorFunc(func(ctx context.Context, prompt, systemPrompt string) (map[string]any, error) {
		return map[string]any{"prompt": prompt}, nil
	})
	out, err := gen.Generate(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, "x", out["prompt"])
}
