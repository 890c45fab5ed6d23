package streamclient

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drip delivers the payload in fixed-size reads to exercise chunk
// reassembly, including markers split across read boundaries.
type drip struct {
	payload string
	size    int
	offset  int
}

func (d *drip) Read(p []byte) (int, error) {
	if d.offset >= len(d.payload) {
		return 0, io.EOF
	}
	end := d.offset + d.size
	if end > len(d.payload) {
		end = len(d.payload)
	}
	n := copy(p, d.payload[d.offset:end])
	d.offset += n
	return n, nil
}

func TestConsumeMarkerSplit(t *testing.T) {
	stream := "Hello world" + UsageMarker + `{"promptTokens":3,"completionTokens":2,"totalTokens":5}`

	result, err := Consume(strings.NewReader(stream), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", result.Text)
	require.NotNil(t, result.Usage)
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, *result.Usage)
}

func TestConsumeWithoutMarker(t *testing.T) {
	result, err := Consume(strings.NewReader("just plain text"), nil)
	require.NoError(t, err)
	assert.Equal(t, "just plain text", result.Text)
	assert.Nil(t, result.Usage)
}

func TestConsumeToleratesBadUsageJSON(t *testing.T) {
	stream := "visible" + UsageMarker + `{broken`

	result, err := Consume(strings.NewReader(stream), nil)
	require.NoError(t, err)
	assert.Equal(t, "visible", result.Text)
	assert.Nil(t, result.Usage)
}

func TestConsumeRendersIncrementally(t *testing.T) {
	stream := "Hi there" + UsageMarker + `{"promptTokens":4,"completionTokens":2,"totalTokens":6}`
	reader := &drip{payload: stream, size: 3}

	var renders []string
	result, err := Consume(reader, func(visible string) {
		renders = append(renders, visible)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi there", result.Text)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 6, result.Usage.TotalTokens)

	require.NotEmpty(t, renders)
	// Early renders show the partial text; the final render never leaks
	// the marker or the usage payload.
	assert.Equal(t, "Hi ", renders[0])
	assert.Equal(t, "Hi there", renders[len(renders)-1])
}

func TestConsumeMarkerAcrossReadBoundary(t *testing.T) {
	stream := "abc" + UsageMarker + `{"promptTokens":1,"completionTokens":1,"totalTokens":2}`
	// Size 5 guarantees the marker straddles multiple reads.
	reader := &drip{payload: stream, size: 5}

	result, err := Consume(reader, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Text)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 2, result.Usage.TotalTokens)
}
