package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/internal/models"
	"lighttavern/backend/pkg/config"
	"lighttavern/backend/pkg/logger"
)

type stubSecrets struct {
	values map[string]string
}

func (s *stubSecrets) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := s.values[key]; ok {
		return value, nil
	}
	return "", context.Canceled
}

func (s *stubSecrets) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	if value, ok := s.values[key]; ok {
		return value
	}
	return defaultValue
}

func chatServiceFor(t *testing.T, upstreamURL string, secrets map[string]string) *ChatService {
	t.Helper()

	cfg := &config.Config{}
	cfg.LLM.OpenRouterBaseURL = upstreamURL
	cfg.LLM.VolcengineBaseURL = upstreamURL
	cfg.LLM.DefaultProvider = llm.TagOpenRouter
	cfg.LLM.DefaultModel = "openai/gpt-4o-mini"
	cfg.LLM.Temperature = 0.7
	cfg.LLM.RequestTimeout = 5 * time.Second

	log := logger.New(logger.Config{Level: "error"})
	registry := llm.NewRegistry(cfg)
	return NewChatService(cfg, registry, nil, nil, nil, nil, nil, &stubSecrets{values: secrets}, log)
}

type stubTurnStore struct {
	appendCalls   int
	userInput     string
	assistantText string
}

func (s *stubTurnStore) ListByConversation(userID, conversationID uint) ([]models.Message, error) {
	return nil, nil
}

func (s *stubTurnStore) AppendTurn(conversationID, userID uint, userInput, assistantText string, promptTokens, completionTokens, totalTokens *int) error {
	s.appendCalls++
	s.userInput = userInput
	s.assistantText = assistantText
	return nil
}

type collectSink struct {
	chunks []string
	usage  *llm.UsageTotals
}

func (s *collectSink) WriteChunk(text string) error {
	s.chunks = append(s.chunks, text)
	return nil
}

func (s *collectSink) WriteUsage(usage *llm.UsageTotals) error {
	s.usage = usage
	return nil
}

func preparedTurn(svc *ChatService, upstream string) *Turn {
	return &Turn{
		userID:    7,
		chatID:    3,
		userInput: "hello?",
		model:     "openai/gpt-4o-mini",
		provider:  svc.registry.Lookup(llm.TagOpenRouter),
		response: &http.Response{
			Body: io.NopCloser(strings.NewReader(upstream)),
		},
	}
}

func TestStreamPersistsCompletedTurn(t *testing.T) {
	svc := chatServiceFor(t, "http://127.0.0.1:0", nil)
	store := &stubTurnStore{}
	svc.messages = store

	turn := preparedTurn(svc, ""+
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi \"}}]}\n"+
		"data: {\"choices\":[{\"delta\":{\"content\":\"there\"}}]}\n"+
		"data: [DONE]\n")

	sink := &collectSink{}
	result, err := svc.Stream(context.Background(), turn, sink)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", result.Text)

	require.Equal(t, 1, store.appendCalls)
	assert.Equal(t, "hello?", store.userInput)
	assert.Equal(t, "Hi there", store.assistantText)
}

func TestStreamPersistsUserMessageWithoutAssistantText(t *testing.T) {
	svc := chatServiceFor(t, "http://127.0.0.1:0", nil)
	store := &stubTurnStore{}
	svc.messages = store

	// A clean stream end with zero chunks still stores the exchange.
	turn := preparedTurn(svc, "data: [DONE]\n")

	result, err := svc.Stream(context.Background(), turn, &collectSink{})
	require.NoError(t, err)
	assert.Empty(t, result.Text)

	require.Equal(t, 1, store.appendCalls)
	assert.Equal(t, "hello?", store.userInput)
	assert.Empty(t, store.assistantText)
}

func TestStreamSkipsPersistenceOnRelayError(t *testing.T) {
	svc := chatServiceFor(t, "http://127.0.0.1:0", nil)
	store := &stubTurnStore{}
	svc.messages = store

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	turn := preparedTurn(svc, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n")

	_, err := svc.Stream(ctx, turn, &collectSink{})
	require.Error(t, err)
	assert.Equal(t, 0, store.appendCalls)
}

func TestTestCredentialOK(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"content":"OK"}}]}`))
	}))
	defer upstream.Close()

	svc := chatServiceFor(t, upstream.URL, map[string]string{"openrouter_api_key": "sk-live"})

	err := svc.TestCredential(context.Background(), "openrouter", "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-live", gotAuth)
}

func TestTestCredentialMissingKey(t *testing.T) {
	svc := chatServiceFor(t, "http://127.0.0.1:0", nil)

	err := svc.TestCredential(context.Background(), "openrouter", "")
	assert.ErrorIs(t, err, llm.ErrCredentialMissing)
}

func TestTestCredentialUpstreamRejects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	svc := chatServiceFor(t, upstream.URL, map[string]string{"openrouter_api_key": "sk-bad"})

	err := svc.TestCredential(context.Background(), "openrouter", "")
	assert.ErrorIs(t, err, llm.ErrUpstreamFailed)
}

func TestTestCredentialUnknownProviderNormalizes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unknown tags fall back to the default provider's endpoint.
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := chatServiceFor(t, upstream.URL, map[string]string{"openrouter_api_key": "sk-live"})

	err := svc.TestCredential(context.Background(), "no-such-provider", "")
	require.NoError(t, err)
}

func TestListModelsReturnsSortedCatalog(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer sk-live", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"id":"zeta/model"},{"id":" alpha/model "},{"id":""}]}`))
	}))
	defer upstream.Close()

	svc := chatServiceFor(t, upstream.URL, map[string]string{"openrouter_api_key": "sk-live"})

	catalog, err := svc.ListModels(context.Background(), "openrouter")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha/model", "zeta/model"}, catalog)
}

func TestListModelsMissingKey(t *testing.T) {
	svc := chatServiceFor(t, "http://127.0.0.1:0", nil)

	_, err := svc.ListModels(context.Background(), "openrouter")
	assert.ErrorIs(t, err, llm.ErrCredentialMissing)
}

func TestListModelsUpstreamRejects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	svc := chatServiceFor(t, upstream.URL, map[string]string{"openrouter_api_key": "sk-bad"})

	_, err := svc.ListModels(context.Background(), "openrouter")
	assert.ErrorIs(t, err, llm.ErrUpstreamFailed)
}
