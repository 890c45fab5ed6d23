package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"lighttavern/backend/internal/prompt"
	"lighttavern/backend/pkg/config"
)

// Provider tags. Unknown tags normalize to the default provider.
const (
	TagOpenRouter = "openrouter"
	TagVolcengine = "volcengine"
)

var (
	// ErrCredentialMissing means no server-held API key exists for the
	// provider; this is a deployment problem, not a transient one.
	ErrCredentialMissing = errors.New("provider credential missing")
	// ErrUpstreamFailed means the provider returned a non-OK response or
	// an empty body before any streaming began.
	ErrUpstreamFailed = errors.New("upstream call failed")
)

// UsageTotals is the normalized token accounting for one completed turn.
type UsageTotals struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// StreamEvent is one normalized upstream frame: an optional text chunk and
// an optional usage snapshot. Either or both may be absent.
type StreamEvent struct {
	Chunk    string
	HasChunk bool
	Usage    *UsageTotals
}

// Provider builds outbound requests for one upstream family and normalizes
// that family's streamed frames into StreamEvents.
type Provider interface {
	// Tag returns the stable identifier used for dispatch and credentials.
	Tag() string
	// CredentialKey names the secret holding this provider's API key.
	CredentialKey() string
	// NewStreamRequest builds the streaming chat-completion request.
	NewStreamRequest(ctx context.Context, apiKey, model string, messages []prompt.Message, temperature float64) (*http.Request, error)
	// NewProbeRequest builds a minimal non-streaming request used to
	// verify that a credential works.
	NewProbeRequest(ctx context.Context, apiKey, model string) (*http.Request, error)
	// NewModelsRequest builds the request for the provider's model
	// catalog.
	NewModelsRequest(ctx context.Context, apiKey string) (*http.Request, error)
	// ParseFrame normalizes one decoded JSON frame from the stream.
	ParseFrame(data []byte) (StreamEvent, error)
}

// Registry holds the configured providers, keyed by tag.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
}

// NewRegistry builds the provider set from configuration.
func NewRegistry(cfg *config.Config) *Registry {
	registry := &Registry{
		providers:       make(map[string]Provider),
		defaultProvider: cfg.LLM.DefaultProvider,
	}
	registry.register(NewOpenRouterProvider(cfg.LLM.OpenRouterBaseURL))
	registry.register(NewVolcengineProvider(cfg.LLM.VolcengineBaseURL))
	if _, ok := registry.providers[registry.defaultProvider]; !ok {
		registry.defaultProvider = TagOpenRouter
	}
	return registry
}

func (r *Registry) register(p Provider) {
	r.providers[p.Tag()] = p
}

// Lookup returns the provider for the given tag, falling back to the
// default provider for unknown or empty tags.
func (r *Registry) Lookup(tag string) Provider {
	if p, ok := r.providers[tag]; ok {
		return p
	}
	return r.providers[r.defaultProvider]
}

// Tags lists the registered provider tags.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	return tags
}

// modelCatalog covers both catalog spellings: the OpenAI-style "data" list
// and the bare "models" list.
type modelCatalog struct {
	Data   []catalogEntry `json:"data"`
	Models []catalogEntry `json:"models"`
}

type catalogEntry struct {
	ID string `json:"id"`
}

// ParseModelCatalog extracts the model identifiers from a /models response,
// dropping blank entries and sorting the rest.
func ParseModelCatalog(data []byte) ([]string, error) {
	var catalog modelCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, err
	}

	source := catalog.Data
	if len(source) == 0 {
		source = catalog.Models
	}

	models := make([]string, 0, len(source))
	for _, entry := range source {
		if id := strings.TrimSpace(entry.ID); id != "" {
			models = append(models, id)
		}
	}
	sort.Strings(models)
	return models, nil
}

// rawUsage covers the field spellings seen across both provider families.
type rawUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
	InputTokens      *int `json:"input_tokens"`
	OutputTokens     *int `json:"output_tokens"`
}

// normalizeUsage prefers primary field names, falls back to aliases, and
// synthesizes the total from the parts when it is missing. Returns nil when
// no count is present at all: absent usage is not zero usage.
func normalizeUsage(raw *rawUsage) *UsageTotals {
	if raw == nil {
		return nil
	}

	promptTokens := firstOf(raw.PromptTokens, raw.InputTokens)
	completionTokens := firstOf(raw.CompletionTokens, raw.OutputTokens)
	totalTokens := raw.TotalTokens

	if promptTokens == nil && completionTokens == nil && totalTokens == nil {
		return nil
	}

	usage := &UsageTotals{}
	if promptTokens != nil {
		usage.PromptTokens = *promptTokens
	}
	if completionTokens != nil {
		usage.CompletionTokens = *completionTokens
	}
	if totalTokens != nil {
		usage.TotalTokens = *totalTokens
	} else {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func firstOf(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
