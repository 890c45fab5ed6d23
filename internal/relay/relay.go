package relay

import (
	"bufio"
	"context"
	"io"
	"strings"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/pkg/logger"
)

// UsageMarker separates visible assistant text from the trailing usage
// payload on the client stream. The token sequence is deliberately unnatural
// so it cannot collide with model output.
const UsageMarker = "\n[[LT_TOKEN_USAGE]]"

// framePrefix and doneSentinel follow the SSE-style upstream framing.
const (
	framePrefix  = "data:"
	doneSentinel = "[DONE]"
)

// Sink receives the relayed stream. Implementations exist for chunked HTTP
// (marker-framed plain text) and WebSocket (typed JSON events).
type Sink interface {
	// WriteChunk forwards one incremental text chunk to the client.
	WriteChunk(text string) error
	// WriteUsage closes out the stream with the final usage snapshot.
	// Called exactly once, with nil when no usage was captured.
	WriteUsage(usage *llm.UsageTotals) error
}

// Result summarizes one completed relay pass for persistence and metrics.
type Result struct {
	// Text is the full assistant reply, chunks concatenated in order.
	Text string
	// Usage is the last usage snapshot seen on the stream, nil if none.
	Usage *llm.UsageTotals
}

// Relay pumps upstream frames into a Sink.
type Relay struct {
	provider llm.Provider
	log      *logger.Logger
}

func New(provider llm.Provider, log *logger.Logger) *Relay {
	return &Relay{provider: provider, log: log}
}

// Run reads the upstream body line by line until EOF or the done sentinel,
// forwarding text chunks as they arrive and capturing the last usage
// snapshot. Malformed frames are skipped without disturbing the stream.
// The sink's WriteUsage is invoked exactly once before returning, even when
// the stream ends without a usage frame.
func (r *Relay) Run(ctx context.Context, upstream io.Reader, sink Sink) (Result, error) {
	var builder strings.Builder
	var usage *llm.UsageTotals

	scanner := bufio.NewScanner(upstream)
	// Upstream frames can exceed the default 64K token limit on long
	// completions with usage attached.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return r.finish(builder.String(), usage, sink, err)
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, framePrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, framePrefix))
		if payload == "" {
			continue
		}
		if payload == doneSentinel {
			break
		}

		event, err := r.provider.ParseFrame([]byte(payload))
		if err != nil {
			// Partial or malformed frames happen mid-stream; drop them.
			r.log.Debug("skipping malformed stream frame", "error", err)
			continue
		}

		if event.HasChunk {
			builder.WriteString(event.Chunk)
			if err := sink.WriteChunk(event.Chunk); err != nil {
				return r.finish(builder.String(), usage, sink, err)
			}
		}
		if event.Usage != nil {
			usage = event.Usage
		}
	}

	if err := scanner.Err(); err != nil {
		return r.finish(builder.String(), usage, sink, err)
	}
	return r.finish(builder.String(), usage, sink, nil)
}

func (r *Relay) finish(text string, usage *llm.UsageTotals, sink Sink, runErr error) (Result, error) {
	result := Result{Text: text, Usage: usage}
	if runErr != nil {
		return result, runErr
	}
	if err := sink.WriteUsage(usage); err != nil {
		return result, err
	}
	return result, nil
}
