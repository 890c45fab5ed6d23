package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/internal/models"
	"lighttavern/backend/internal/prompt"
	"lighttavern/backend/internal/relay"
	"lighttavern/backend/pkg/config"
	"lighttavern/backend/pkg/logger"
	"lighttavern/backend/pkg/resilience"
	"lighttavern/backend/pkg/secrets"
	"lighttavern/backend/shared/observability"
)

// maxCatalogBytes caps how much of a provider's model catalog response is
// read; openrouter's full catalog is large but well under this.
const maxCatalogBytes = 4 << 20

// TurnConfig is the per-turn prompt tuning sent by the client.
type TurnConfig struct {
	MaxHistory      int  `json:"maxHistory"`
	IncludeExamples bool `json:"includeExamples"`
}

// TurnRequest is the chat-turn payload.
type TurnRequest struct {
	CharacterID uint       `json:"characterId" binding:"required"`
	ChatID      uint       `json:"chatId" binding:"required"`
	UserInput   string     `json:"userInput" binding:"required"`
	Config      TurnConfig `json:"config"`
	Model       string     `json:"model"`
	Provider    string     `json:"provider"`
}

// Turn is a prepared chat turn: the upstream stream is open and healthy,
// nothing has been written to the client yet. Callers must invoke Stream
// exactly once.
type Turn struct {
	userID    uint
	chatID    uint
	userInput string
	model     string
	provider  llm.Provider
	response  *http.Response
	DebugInfo prompt.DebugInfo
}

// turnStore is the message persistence surface a chat turn needs.
type turnStore interface {
	ListByConversation(userID, conversationID uint) ([]models.Message, error)
	AppendTurn(conversationID, userID uint, userInput, assistantText string, promptTokens, completionTokens, totalTokens *int) error
}

// ChatService orchestrates one chat turn: prompt assembly, the upstream
// call, the relayed stream, and post-stream persistence.
type ChatService struct {
	cfg           *config.Config
	registry      *llm.Registry
	characters    *CharacterService
	conversations *ConversationService
	messages      turnStore
	settings      *SettingsService
	usage         *UsageRecorder
	secrets       secrets.Manager
	httpClient    *http.Client
	breakers      map[string]*resilience.CircuitBreaker
	metrics       *observability.ChatMetrics
	log           *logger.Logger
}

// SetMetrics attaches the chat instruments. Optional; a nil receiver on the
// metrics struct makes recording a no-op.
func (s *ChatService) SetMetrics(metrics *observability.ChatMetrics) {
	s.metrics = metrics
}

func NewChatService(
	cfg *config.Config,
	registry *llm.Registry,
	characters *CharacterService,
	conversations *ConversationService,
	messages turnStore,
	settings *SettingsService,
	usage *UsageRecorder,
	secretsManager secrets.Manager,
	log *logger.Logger,
) *ChatService {
	breakers := make(map[string]*resilience.CircuitBreaker)
	for _, tag := range registry.Tags() {
		breakers[tag] = resilience.NewCircuitBreaker(
			resilience.DefaultCircuitBreakerConfig("llm-"+tag), log)
	}

	return &ChatService{
		cfg:           cfg,
		registry:      registry,
		characters:    characters,
		conversations: conversations,
		messages:      messages,
		settings:      settings,
		usage:         usage,
		secrets:       secretsManager,
		httpClient:    &http.Client{Timeout: cfg.LLM.RequestTimeout},
		breakers:      breakers,
		log:           log,
	}
}

// Prepare validates the turn, assembles the prompt stack, and opens the
// upstream stream. Every failure mode here maps to a status code because
// nothing has been streamed yet: not-found lookups, missing credentials,
// and upstream refusals all surface before the first client byte.
func (s *ChatService) Prepare(ctx context.Context, userID uint, req *TurnRequest) (*Turn, error) {
	character, err := s.characters.GetCharacter(userID, req.CharacterID)
	if err != nil {
		return nil, err
	}

	conversation, err := s.conversations.GetConversation(userID, req.ChatID)
	if err != nil {
		return nil, err
	}
	if conversation.CharacterID != req.CharacterID {
		return nil, ErrConversationNotFound
	}

	history, err := s.messages.ListByConversation(userID, req.ChatID)
	if err != nil {
		return nil, err
	}

	maxHistory := req.Config.MaxHistory
	if s.cfg.Chat.MaxHistoryCap > 0 && maxHistory > s.cfg.Chat.MaxHistoryCap {
		maxHistory = s.cfg.Chat.MaxHistoryCap
	}

	stack := prompt.BuildPromptStack(
		ToPromptCharacter(character),
		ToHistory(history),
		req.UserInput,
		prompt.Config{MaxHistory: maxHistory, IncludeExamples: req.Config.IncludeExamples},
	)

	model, providerTag := s.settings.Resolve(userID, req.Model, req.Provider)
	provider := s.registry.Lookup(providerTag)

	apiKey, err := s.secrets.GetSecret(ctx, provider.CredentialKey())
	if err != nil || apiKey == "" {
		s.log.Error("provider credential unavailable", "provider", provider.Tag())
		return nil, llm.ErrCredentialMissing
	}

	upstreamReq, err := provider.NewStreamRequest(ctx, apiKey, model, stack.Messages, s.cfg.LLM.Temperature)
	if err != nil {
		return nil, err
	}

	var response *http.Response
	breaker := s.breakers[provider.Tag()]
	err = breaker.Execute(func() error {
		resp, doErr := s.httpClient.Do(upstreamReq)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		response = resp
		return nil
	})
	if err != nil {
		s.log.Error("upstream call failed",
			"provider", provider.Tag(),
			"model", model,
			"error", err.Error(),
		)
		return nil, llm.ErrUpstreamFailed
	}

	return &Turn{
		userID:    userID,
		chatID:    req.ChatID,
		userInput: req.UserInput,
		model:     model,
		provider:  provider,
		response:  response,
		DebugInfo: stack.DebugInfo,
	}, nil
}

// Stream relays the prepared turn into the sink, then persists the
// completed exchange. Persistence and usage recording are best effort: the
// client already has the text, so failures are logged and swallowed.
func (s *ChatService) Stream(ctx context.Context, turn *Turn, sink relay.Sink) (relay.Result, error) {
	body := io.ReadCloser(turn.response.Body)
	if s.cfg.LLM.IdleReadTimeout > 0 {
		body = relay.NewIdleTimeoutReader(body, s.cfg.LLM.IdleReadTimeout)
	}
	defer body.Close()

	started := time.Now()
	result, err := relay.New(turn.provider, s.log).Run(ctx, body, sink)

	promptTokens, completionTokens := 0, 0
	if result.Usage != nil {
		promptTokens = result.Usage.PromptTokens
		completionTokens = result.Usage.CompletionTokens
	}
	s.metrics.RecordTurn(context.WithoutCancel(ctx), turn.provider.Tag(), turn.model,
		time.Since(started), promptTokens, completionTokens, err != nil)

	if err != nil {
		s.log.Warn("stream relay interrupted",
			"chat_id", turn.chatID,
			"error", err.Error(),
		)
		return result, err
	}

	s.persistTurn(turn, result)
	s.usage.Record(context.WithoutCancel(ctx), turn.userID, turn.model, result.Usage)
	return result, nil
}

// TestCredential verifies that a working key exists for the provider by
// issuing a minimal non-streaming completion.
func (s *ChatService) TestCredential(ctx context.Context, providerTag, model string) error {
	provider := s.registry.Lookup(providerTag)
	if model == "" {
		model = s.cfg.LLM.DefaultModel
	}

	apiKey, err := s.secrets.GetSecret(ctx, provider.CredentialKey())
	if err != nil || apiKey == "" {
		return llm.ErrCredentialMissing
	}

	probeReq, err := provider.NewProbeRequest(ctx, apiKey, model)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(probeReq)
	if err != nil {
		return llm.ErrUpstreamFailed
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return llm.ErrUpstreamFailed
	}
	return nil
}

// ListModels fetches the provider's model catalog for the client's model
// picker.
func (s *ChatService) ListModels(ctx context.Context, providerTag string) ([]string, error) {
	provider := s.registry.Lookup(providerTag)

	apiKey, err := s.secrets.GetSecret(ctx, provider.CredentialKey())
	if err != nil || apiKey == "" {
		return nil, llm.ErrCredentialMissing
	}

	req, err := provider.NewModelsRequest(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, llm.ErrUpstreamFailed
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, llm.ErrUpstreamFailed
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, llm.ErrUpstreamFailed
	}
	return llm.ParseModelCatalog(body)
}

// persistTurn stores the exchange after a clean stream end. The user's
// message is kept even when the model produced no text, so the transcript
// never loses an input the user already sent.
func (s *ChatService) persistTurn(turn *Turn, result relay.Result) {
	var promptTokens, completionTokens, totalTokens *int
	if result.Usage != nil {
		promptTokens = intPtr(result.Usage.PromptTokens)
		completionTokens = intPtr(result.Usage.CompletionTokens)
		totalTokens = intPtr(result.Usage.TotalTokens)
	}

	err := s.messages.AppendTurn(turn.chatID, turn.userID, turn.userInput, result.Text,
		promptTokens, completionTokens, totalTokens)
	if err != nil {
		s.log.Error("failed to persist chat turn",
			"chat_id", turn.chatID,
			"user_id", turn.userID,
			"error", err.Error(),
		)
	}
}

func intPtr(v int) *int { return &v }
