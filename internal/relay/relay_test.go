package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

type recordingSink struct {
	chunks     []string
	usage      *llm.UsageTotals
	usageCalls int
}

func (s *recordingSink) WriteChunk(text string) error {
	s.chunks = append(s.chunks, text)
	return nil
}

func (s *recordingSink) WriteUsage(usage *llm.UsageTotals) error {
	s.usage = usage
	s.usageCalls++
	return nil
}

func openRouterStream(frames ...string) *strings.Reader {
	var b strings.Builder
	for _, frame := range frames {
		b.WriteString("data: " + frame + "\n")
	}
	return strings.NewReader(b.String())
}

func TestRelayFamilyAScenario(t *testing.T) {
	provider := llm.NewOpenRouterProvider("https://openrouter.example")
	upstream := openRouterStream(
		`{"choices":[{"delta":{"content":"Hi"}}]}`,
		`{"choices":[{"delta":{"content":" there"}}]}`,
		`{"usage":{"prompt_tokens":4,"completion_tokens":2}}`,
		`[DONE]`,
	)

	sink := &recordingSink{}
	result, err := New(provider, testLogger()).Run(context.Background(), upstream, sink)
	require.NoError(t, err)

	assert.Equal(t, "Hi there", result.Text)
	require.NotNil(t, result.Usage)
	assert.Equal(t, llm.UsageTotals{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, *result.Usage)
	assert.Equal(t, []string{"Hi", " there"}, sink.chunks)
	assert.Equal(t, 1, sink.usageCalls)
	assert.Equal(t, result.Usage, sink.usage)
}

func TestRelaySkipsMalformedFrames(t *testing.T) {
	provider := llm.NewOpenRouterProvider("https://openrouter.example")
	upstream := openRouterStream(
		`{"choices":[{"delta":{"content":"ok"}}]}`,
		`{broken json`,
		`{"choices":[{"delta":{"content":" still ok"}}]}`,
		`[DONE]`,
	)

	sink := &recordingSink{}
	result, err := New(provider, testLogger()).Run(context.Background(), upstream, sink)
	require.NoError(t, err)
	assert.Equal(t, "ok still ok", result.Text)
	assert.Nil(t, result.Usage)
}

func TestRelayIgnoresNonDataLines(t *testing.T) {
	provider := llm.NewOpenRouterProvider("https://openrouter.example")
	upstream := strings.NewReader(strings.Join([]string{
		`: keep-alive`,
		`event: message`,
		`data: {"choices":[{"delta":{"content":"text"}}]}`,
		``,
		`data: [DONE]`,
	}, "\n"))

	sink := &recordingSink{}
	result, err := New(provider, testLogger()).Run(context.Background(), upstream, sink)
	require.NoError(t, err)
	assert.Equal(t, "text", result.Text)
}

func TestRelayStopsAtDoneSentinel(t *testing.T) {
	provider := llm.NewOpenRouterProvider("https://openrouter.example")
	upstream := openRouterStream(
		`{"choices":[{"delta":{"content":"before"}}]}`,
		`[DONE]`,
		`{"choices":[{"delta":{"content":"after"}}]}`,
	)

	sink := &recordingSink{}
	result, err := New(provider, testLogger()).Run(context.Background(), upstream, sink)
	require.NoError(t, err)
	assert.Equal(t, "before", result.Text)
}

func TestRelayLastUsageWins(t *testing.T) {
	provider := llm.NewOpenRouterProvider("https://openrouter.example")
	upstream := openRouterStream(
		`{"usage":{"prompt_tokens":1,"completion_tokens":1}}`,
		`{"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`,
		`[DONE]`,
	)

	sink := &recordingSink{}
	result, err := New(provider, testLogger()).Run(context.Background(), upstream, sink)
	require.NoError(t, err)
	require.NotNil(t, result.Usage)
	assert.Equal(t, llm.UsageTotals{PromptTokens: 9, CompletionTokens: 3, TotalTokens: 12}, *result.Usage)
}

func TestRelayVolcengineFrames(t *testing.T) {
	provider := llm.NewVolcengineProvider("https://ark.example")
	upstream := openRouterStream(
		`{"type":"response.output_text.delta","delta":"Hello"}`,
		`{"type":"response.output_text.delta","delta":", friend"}`,
		`{"type":"response.completed","response":{"usage":{"input_tokens":7,"output_tokens":4}}}`,
	)

	sink := &recordingSink{}
	result, err := New(provider, testLogger()).Run(context.Background(), upstream, sink)
	require.NoError(t, err)
	assert.Equal(t, "Hello, friend", result.Text)
	require.NotNil(t, result.Usage)
	assert.Equal(t, llm.UsageTotals{PromptTokens: 7, CompletionTokens: 4, TotalTokens: 11}, *result.Usage)
}

func TestHTTPSinkMarkerFraming(t *testing.T) {
	recorder := httptest.NewRecorder()
	sink := NewHTTPSink(recorder)

	require.NoError(t, sink.WriteChunk("Hi"))
	require.NoError(t, sink.WriteChunk(" there"))
	require.NoError(t, sink.WriteUsage(&llm.UsageTotals{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}))

	body := recorder.Body.String()
	assert.Equal(t, "Hi there"+UsageMarker+`{"promptTokens":4,"completionTokens":2,"totalTokens":6}`, body)
	assert.True(t, recorder.Flushed)
}

func TestHTTPSinkOmitsMarkerWithoutUsage(t *testing.T) {
	recorder := httptest.NewRecorder()
	sink := NewHTTPSink(recorder)

	require.NoError(t, sink.WriteChunk("plain text"))
	require.NoError(t, sink.WriteUsage(nil))
	assert.Equal(t, "plain text", recorder.Body.String())
}

type recordingEventWriter struct {
	events []StreamEvent
}

func (w *recordingEventWriter) WriteJSON(v interface{}) error {
	w.events = append(w.events, v.(StreamEvent))
	return nil
}

func TestEventSinkTypedFrames(t *testing.T) {
	writer := &recordingEventWriter{}
	sink := NewEventSink(writer)

	require.NoError(t, sink.WriteChunk("Hi"))
	require.NoError(t, sink.WriteUsage(&llm.UsageTotals{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}))

	require.Len(t, writer.events, 2)
	assert.Equal(t, StreamEvent{Type: EventChunk, Text: "Hi"}, writer.events[0])
	assert.Equal(t, EventDone, writer.events[1].Type)
	require.NotNil(t, writer.events[1].Usage)
	assert.Equal(t, 3, writer.events[1].Usage.TotalTokens)
}

func TestEventSinkDoneAlwaysFires(t *testing.T) {
	writer := &recordingEventWriter{}
	sink := NewEventSink(writer)

	require.NoError(t, sink.WriteUsage(nil))
	require.Len(t, writer.events, 1)
	assert.Equal(t, EventDone, writer.events[0].Type)
	assert.Nil(t, writer.events[0].Usage)
}
