package relay

import (
	"io"
	"time"
)

// IdleTimeoutReader closes the underlying body when no bytes arrive within
// the timeout, unblocking a stalled Read. The overall request timeout still
// bounds total stream duration; this guards against a silent upstream.
type IdleTimeoutReader struct {
	body  io.ReadCloser
	timer *time.Timer
	d     time.Duration
}

func NewIdleTimeoutReader(body io.ReadCloser, d time.Duration) *IdleTimeoutReader {
	r := &IdleTimeoutReader{body: body, d: d}
	r.timer = time.AfterFunc(d, func() { body.Close() })
	return r
}

func (r *IdleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		r.timer.Reset(r.d)
	}
	return n, err
}

func (r *IdleTimeoutReader) Close() error {
	r.timer.Stop()
	return r.body.Close()
}
