package relay

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closableReader struct {
	io.Reader
	closed chan struct{}
}

func (r *closableReader) Close() error {
	close(r.closed)
	return nil
}

type blockingReader struct {
	closed chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.closed
	return 0, io.ErrClosedPipe
}

func (r *blockingReader) Close() error {
	close(r.closed)
	return nil
}

func TestIdleTimeoutReaderPassesDataThrough(t *testing.T) {
	inner := &closableReader{Reader: strings.NewReader("hello"), closed: make(chan struct{})}
	r := NewIdleTimeoutReader(inner, time.Minute)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestIdleTimeoutReaderClosesStalledBody(t *testing.T) {
	inner := &blockingReader{closed: make(chan struct{})}
	r := NewIdleTimeoutReader(inner, 10*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 8))
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("stalled read was not unblocked")
	}
}

func TestIdleTimeoutReaderCloseStopsTimer(t *testing.T) {
	inner := &closableReader{Reader: strings.NewReader(""), closed: make(chan struct{})}
	r := NewIdleTimeoutReader(inner, time.Minute)

	require.NoError(t, r.Close())
	select {
	case <-inner.closed:
	default:
		t.Fatal("close was not propagated")
	}
}
