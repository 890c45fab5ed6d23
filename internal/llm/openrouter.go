package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"lighttavern/backend/internal/prompt"
)

// OpenRouterProvider speaks the chat/completions streaming shape.
type OpenRouterProvider struct {
	baseURL string
}

func NewOpenRouterProvider(baseURL string) *OpenRouterProvider {
	return &OpenRouterProvider{baseURL: baseURL}
}

func (p *OpenRouterProvider) Tag() string { return TagOpenRouter }

func (p *OpenRouterProvider) CredentialKey() string { return "openrouter_api_key" }

type openRouterStreamRequest struct {
	Model         string           `json:"model"`
	Stream        bool             `json:"stream"`
	StreamOptions streamOptions    `json:"stream_options"`
	Messages      []prompt.Message `json:"messages"`
	Temperature   float64          `json:"temperature"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

func (p *OpenRouterProvider) NewStreamRequest(ctx context.Context, apiKey, model string, messages []prompt.Message, temperature float64) (*http.Request, error) {
	body := openRouterStreamRequest{
		Model:         model,
		Stream:        true,
		StreamOptions: streamOptions{IncludeUsage: true},
		Messages:      messages,
		Temperature:   temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	p.setHeaders(req, apiKey)
	return req, nil
}

func (p *OpenRouterProvider) NewProbeRequest(ctx context.Context, apiKey, model string) (*http.Request, error) {
	body := map[string]interface{}{
		"model":       model,
		"messages":    []prompt.Message{{Role: prompt.RoleUser, Content: "Reply with OK."}},
		"temperature": 0.1,
		"max_tokens":  8,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	p.setHeaders(req, apiKey)
	return req, nil
}

func (p *OpenRouterProvider) NewModelsRequest(ctx context.Context, apiKey string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	p.setHeaders(req, apiKey)
	return req, nil
}

func (p *OpenRouterProvider) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("HTTP-Referer", "https://lighttavern.local")
	req.Header.Set("X-Title", "LightTavern")
}

type openRouterFrame struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *rawUsage `json:"usage"`
}

func (p *OpenRouterProvider) ParseFrame(data []byte) (StreamEvent, error) {
	var frame openRouterFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return StreamEvent{}, err
	}

	event := StreamEvent{Usage: normalizeUsage(frame.Usage)}
	if len(frame.Choices) > 0 && frame.Choices[0].Delta.Content != nil {
		event.Chunk = *frame.Choices[0].Delta.Content
		event.HasChunk = true
	}
	return event, nil
}
