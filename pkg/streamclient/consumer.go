// Package streamclient consumes the marker-framed chat stream produced by
// the chat-turn endpoint. It is the Go counterpart of the web client's
// incremental renderer and is importable outside this module.
package streamclient

import (
	"encoding/json"
	"io"
	"strings"
)

// UsageMarker must match the marker the server embeds in the stream.
const UsageMarker = "\n[[LT_TOKEN_USAGE]]"

// Usage is the decoded trailing usage payload.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Result is the fully consumed stream: the visible assistant text and the
// usage totals, nil when the stream carried none or the payload was
// undecodable.
type Result struct {
	Text  string
	Usage *Usage
}

// RenderFunc receives the current visible text after every read, enabling a
// live typing effect. The same text may be delivered more than once.
type RenderFunc func(visible string)

// Consume reads the stream to completion, re-rendering the visible text on
// each chunk. Once the marker appears, everything before it is the final
// text and everything after is decoded as usage JSON. A decode failure
// drops the usage but never the text.
func Consume(r io.Reader, render RenderFunc) (Result, error) {
	var buffer strings.Builder
	chunk := make([]byte, 4096)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buffer.Write(chunk[:n])
			if render != nil {
				render(visibleText(buffer.String()))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return split(buffer.String()), err
		}
	}

	result := split(buffer.String())
	if render != nil {
		render(result.Text)
	}
	return result, nil
}

func visibleText(buffer string) string {
	text, _, _ := strings.Cut(buffer, UsageMarker)
	return text
}

func split(buffer string) Result {
	text, tail, found := strings.Cut(buffer, UsageMarker)
	result := Result{Text: text}
	if !found {
		return result
	}

	var usage Usage
	if err := json.Unmarshal([]byte(strings.TrimSpace(tail)), &usage); err != nil {
		return result
	}
	result.Usage = &usage
	return result
}
