package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"lighttavern/backend/internal/prompt"
)

// VolcengineProvider speaks the typed "responses" streaming shape.
type VolcengineProvider struct {
	baseURL string
}

func NewVolcengineProvider(baseURL string) *VolcengineProvider {
	return &VolcengineProvider{baseURL: baseURL}
}

func (p *VolcengineProvider) Tag() string { return TagVolcengine }

func (p *VolcengineProvider) CredentialKey() string { return "volcengine_api_key" }

type responsesInputItem struct {
	Role    string                 `json:"role"`
	Content []responsesContentItem `json:"content"`
}

type responsesContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesStreamRequest struct {
	Model       string               `json:"model"`
	Stream      bool                 `json:"stream"`
	Input       []responsesInputItem `json:"input"`
	Temperature float64              `json:"temperature"`
}

func (p *VolcengineProvider) NewStreamRequest(ctx context.Context, apiKey, model string, messages []prompt.Message, temperature float64) (*http.Request, error) {
	input := make([]responsesInputItem, 0, len(messages))
	for _, m := range messages {
		input = append(input, responsesInputItem{
			Role:    m.Role,
			Content: []responsesContentItem{{Type: "text", Text: m.Content}},
		})
	}

	body := responsesStreamRequest{
		Model:       model,
		Stream:      true,
		Input:       input,
		Temperature: temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/responses", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	p.setHeaders(req, apiKey)
	return req, nil
}

func (p *VolcengineProvider) NewProbeRequest(ctx context.Context, apiKey, model string) (*http.Request, error) {
	body := map[string]interface{}{
		"model":             model,
		"stream":            false,
		"input":             "Reply with OK.",
		"max_output_tokens": 8,
		"temperature":       0.1,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/responses", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	p.setHeaders(req, apiKey)
	return req, nil
}

func (p *VolcengineProvider) NewModelsRequest(ctx context.Context, apiKey string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	p.setHeaders(req, apiKey)
	return req, nil
}

func (p *VolcengineProvider) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

// Frame types emitted by the responses stream.
const (
	frameTypeOutputTextDelta = "response.output_text.delta"
	frameTypeCompleted       = "response.completed"
)

type responsesFrame struct {
	Type     string    `json:"type"`
	Delta    *string   `json:"delta"`
	Usage    *rawUsage `json:"usage"`
	Response *struct {
		Usage *rawUsage `json:"usage"`
	} `json:"response"`
}

func (p *VolcengineProvider) ParseFrame(data []byte) (StreamEvent, error) {
	var frame responsesFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return StreamEvent{}, err
	}

	var event StreamEvent
	switch frame.Type {
	case frameTypeOutputTextDelta:
		if frame.Delta != nil {
			event.Chunk = *frame.Delta
			event.HasChunk = true
		}
	case frameTypeCompleted:
		usage := frame.Usage
		if usage == nil && frame.Response != nil {
			usage = frame.Response.Usage
		}
		event.Usage = normalizeUsage(usage)
	}
	return event, nil
}
