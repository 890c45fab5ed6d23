package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lighttavern/backend/internal/prompt"
	"lighttavern/backend/pkg/config"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := &config.Config{}
	cfg.LLM.OpenRouterBaseURL = "https://openrouter.example/api/v1"
	cfg.LLM.VolcengineBaseURL = "https://ark.example/api/v3"
	cfg.LLM.DefaultProvider = TagOpenRouter
	return NewRegistry(cfg)
}

func TestRegistryLookupNormalizesUnknownTags(t *testing.T) {
	registry := testRegistry(t)

	assert.Equal(t, TagOpenRouter, registry.Lookup("openrouter").Tag())
	assert.Equal(t, TagVolcengine, registry.Lookup("volcengine").Tag())
	assert.Equal(t, TagOpenRouter, registry.Lookup("").Tag())
	assert.Equal(t, TagOpenRouter, registry.Lookup("no-such-provider").Tag())
}

func TestOpenRouterStreamRequest(t *testing.T) {
	provider := NewOpenRouterProvider("https://openrouter.example/api/v1")
	messages := []prompt.Message{
		{Role: prompt.RoleSystem, Content: "You are Aria."},
		{Role: prompt.RoleUser, Content: "hello"},
	}

	req, err := provider.NewStreamRequest(context.Background(), "sk-test", "openai/gpt-4o-mini", messages, 0.7)
	require.NoError(t, err)

	assert.Equal(t, "https://openrouter.example/api/v1/chat/completions", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "https://lighttavern.local", req.Header.Get("HTTP-Referer"))
	assert.Equal(t, "LightTavern", req.Header.Get("X-Title"))

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "openai/gpt-4o-mini", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, map[string]interface{}{"include_usage": true}, body["stream_options"])
	assert.Len(t, body["messages"], 2)
}

func TestVolcengineStreamRequestWrapsMessages(t *testing.T) {
	provider := NewVolcengineProvider("https://ark.example/api/v3")
	messages := []prompt.Message{
		{Role: prompt.RoleSystem, Content: "You are Aria."},
		{Role: prompt.RoleUser, Content: "hello"},
	}

	req, err := provider.NewStreamRequest(context.Background(), "vk-test", "doubao-pro", messages, 0.7)
	require.NoError(t, err)
	assert.Equal(t, "https://ark.example/api/v3/responses", req.URL.String())

	raw, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	var body struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
		Input  []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"input"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, body.Stream)
	require.Len(t, body.Input, 2)
	assert.Equal(t, "system", body.Input[0].Role)
	require.Len(t, body.Input[0].Content, 1)
	assert.Equal(t, "text", body.Input[0].Content[0].Type)
	assert.Equal(t, "You are Aria.", body.Input[0].Content[0].Text)
}

func TestNewModelsRequestTargetsCatalog(t *testing.T) {
	or := NewOpenRouterProvider("https://openrouter.example/api/v1")
	req, err := or.NewModelsRequest(context.Background(), "sk-test")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "https://openrouter.example/api/v1/models", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

	ve := NewVolcengineProvider("https://ark.example/api/v3")
	req, err = ve.NewModelsRequest(context.Background(), "vk-test")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "https://ark.example/api/v3/models", req.URL.String())
	assert.Equal(t, "Bearer vk-test", req.Header.Get("Authorization"))
}

func TestParseModelCatalog(t *testing.T) {
	catalog, err := ParseModelCatalog([]byte(`{"data":[{"id":"z/model"},{"id":"a/model"},{"id":"  "}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a/model", "z/model"}, catalog)

	// Some upstreams spell the list "models" instead of "data".
	catalog, err = ParseModelCatalog([]byte(`{"models":[{"id":"doubao-pro"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"doubao-pro"}, catalog)

	catalog, err = ParseModelCatalog([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, catalog)

	_, err = ParseModelCatalog([]byte(`not json`))
	assert.Error(t, err)
}

func TestOpenRouterParseFrame(t *testing.T) {
	provider := NewOpenRouterProvider("https://openrouter.example/api/v1")

	event, err := provider.ParseFrame([]byte(`{"choices":[{"delta":{"content":"Hi"}}]}`))
	require.NoError(t, err)
	assert.True(t, event.HasChunk)
	assert.Equal(t, "Hi", event.Chunk)
	assert.Nil(t, event.Usage)

	// Empty delta content frames carry no chunk.
	event, err = provider.ParseFrame([]byte(`{"choices":[{"delta":{}}]}`))
	require.NoError(t, err)
	assert.False(t, event.HasChunk)

	event, err = provider.ParseFrame([]byte(`{"choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`))
	require.NoError(t, err)
	require.NotNil(t, event.Usage)
	assert.Equal(t, UsageTotals{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, *event.Usage)

	_, err = provider.ParseFrame([]byte(`{not json`))
	assert.Error(t, err)
}

func TestVolcengineParseFrame(t *testing.T) {
	provider := NewVolcengineProvider("https://ark.example/api/v3")

	event, err := provider.ParseFrame([]byte(`{"type":"response.output_text.delta","delta":"Hi there"}`))
	require.NoError(t, err)
	assert.True(t, event.HasChunk)
	assert.Equal(t, "Hi there", event.Chunk)

	event, err = provider.ParseFrame([]byte(`{"type":"response.completed","response":{"usage":{"input_tokens":10,"output_tokens":5}}}`))
	require.NoError(t, err)
	require.NotNil(t, event.Usage)
	assert.Equal(t, UsageTotals{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, *event.Usage)

	// Unrelated frame types are ignored.
	event, err = provider.ParseFrame([]byte(`{"type":"response.created"}`))
	require.NoError(t, err)
	assert.False(t, event.HasChunk)
	assert.Nil(t, event.Usage)
}

func TestNormalizeUsage(t *testing.T) {
	intp := func(v int) *int { return &v }

	cases := []struct {
		name string
		raw  *rawUsage
		want *UsageTotals
	}{
		{name: "nil raw", raw: nil, want: nil},
		{name: "all absent", raw: &rawUsage{}, want: nil},
		{
			name: "primary names",
			raw:  &rawUsage{PromptTokens: intp(4), CompletionTokens: intp(2), TotalTokens: intp(6)},
			want: &UsageTotals{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
		},
		{
			name: "alias names, total synthesized",
			raw:  &rawUsage{InputTokens: intp(10), OutputTokens: intp(5)},
			want: &UsageTotals{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
		{
			name: "primary preferred over alias",
			raw:  &rawUsage{PromptTokens: intp(4), InputTokens: intp(99), CompletionTokens: intp(2)},
			want: &UsageTotals{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6},
		},
		{
			name: "partial counts still reported",
			raw:  &rawUsage{CompletionTokens: intp(3)},
			want: &UsageTotals{PromptTokens: 0, CompletionTokens: 3, TotalTokens: 3},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, normalizeUsage(tc.raw))
		})
	}
}
