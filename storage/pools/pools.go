// Package pools provides reusable byte buffers for the persistence
// layer's JSON marshal paths, cutting allocations on the hot path of
// persisting event batches (§4.5).
package pools

import (
	"bytes"
	"sync"
)

// BufferPool provides reusable byte buffers sized for a single event's
// JSON encoding.
var BufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a buffer from the pool, already reset for use.
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool, discarding it instead if it
// has grown past a megabyte so a single oversized payload doesn't pin
// that much memory in the pool indefinitely.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 {
		return
	}
	BufferPool.Put(buf)
}
