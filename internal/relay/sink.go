package relay

import (
	"encoding/json"
	"io"
	"net/http"

	"lighttavern/backend/internal/llm"
)

// HTTPSink streams marker-framed plain text to a chunked HTTP response.
type HTTPSink struct {
	writer  io.Writer
	flusher http.Flusher
}

// NewHTTPSink wraps a response writer. Flushing after every chunk is what
// makes the client-side typing effect work; writers that cannot flush are
// still served, just without incremental delivery.
func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	flusher, _ := w.(http.Flusher)
	return &HTTPSink{writer: w, flusher: flusher}
}

func (s *HTTPSink) WriteChunk(text string) error {
	if _, err := io.WriteString(s.writer, text); err != nil {
		return err
	}
	s.flush()
	return nil
}

// WriteUsage appends the out-of-band usage payload. When no usage was
// captured the marker is omitted entirely so the client sees pure text.
func (s *HTTPSink) WriteUsage(usage *llm.UsageTotals) error {
	if usage == nil {
		return nil
	}
	payload, err := json.Marshal(usage)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(s.writer, UsageMarker); err != nil {
		return err
	}
	if _, err := s.writer.Write(payload); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *HTTPSink) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// EventWriter is the transport half of an event sink: it delivers one typed
// JSON payload per call. *websocket.Conn's WriteJSON satisfies it.
type EventWriter interface {
	WriteJSON(v interface{}) error
}

// StreamEvent is one typed frame on the WebSocket chat stream.
type StreamEvent struct {
	Type  string           `json:"type"`
	Text  string           `json:"text,omitempty"`
	Usage *llm.UsageTotals `json:"usage,omitempty"`
	Error string           `json:"error,omitempty"`
}

// Event types on the WebSocket chat stream.
const (
	EventChunk = "chunk"
	EventDone  = "done"
	EventError = "error"
)

// EventSink streams typed JSON events instead of marker-framed text.
type EventSink struct {
	writer EventWriter
}

func NewEventSink(w EventWriter) *EventSink {
	return &EventSink{writer: w}
}

func (s *EventSink) WriteChunk(text string) error {
	return s.writer.WriteJSON(StreamEvent{Type: EventChunk, Text: text})
}

// WriteUsage emits the terminal done event. Unlike the HTTP sink it always
// fires, carrying usage only when one was captured.
func (s *EventSink) WriteUsage(usage *llm.UsageTotals) error {
	return s.writer.WriteJSON(StreamEvent{Type: EventDone, Usage: usage})
}
