package utils

import (
	"github.com/valyala/bytebufferpool"
)

// DefaultStreamBufferLimit caps how much streamed text is kept for caching
const DefaultStreamBufferLimit = 1 << 20

var streamPool bytebufferpool.Pool

// StreamBuffer accumulates streamed deltas in a pooled buffer. Past the limit
// further writes are discarded and Overflowed reports true.
type StreamBuffer struct {
	buf        *bytebufferpool.ByteBuffer
	limit      int
	overflowed bool
}

func NewStreamBuffer(limit int) *StreamBuffer {
	if limit <= 0 {
		limit = DefaultStreamBufferLimit
	}
	return &StreamBuffer{buf: streamPool.Get(), limit: limit}
}

func (b *StreamBuffer) WriteString(s string) {
	if b.overflowed {
		return
	}
	if b.buf.Len()+len(s) > b.limit {
		b.overflowed = true
		return
	}
	_, _ = b.buf.WriteString(s)
}

// String copies the accumulated text out of the pooled buffer
func (b *StreamBuffer) String() string {
	return b.buf.String()
}

func (b *StreamBuffer) Len() int {
	return b.buf.Len()
}

func (b *StreamBuffer) Overflowed() bool {
	return b.overflowed
}

// Release returns the buffer to the pool. The StreamBuffer must not be used afterwards.
func (b *StreamBuffer) Release() {
	if b.buf != nil {
		streamPool.Put(b.buf)
		b.buf = nil
	}
}
