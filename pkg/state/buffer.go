// Package state implements the stream buffer that backs a plug-in's
// state.save/state.load and webview.get_resource calls: a growable byte
// vector with a read cursor, guarded by a single mutex the outer
// save/load/get_resource call holds across the guest's re-entrant
// istream.read/ostream.write callbacks. Go's sync.Mutex is not reentrant,
// so the istream/ostream trampolines never lock it themselves: they
// trust the caller already holds it, exactly as pkg/event's copy step
// trusts its own single-acquisition discipline.
package state

import "sync"

// Buffer is the shared byte vector istream.read and ostream.write read
// from and append to.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	cursor int
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Lock acquires the buffer for the duration of a save/load/get_resource
// call. Callers must Unlock before returning.
func (b *Buffer) Lock() { b.mu.Lock() }

// Unlock releases the buffer.
func (b *Buffer) Unlock() { b.mu.Unlock() }

// ResetLocked empties the buffer and rewinds the read cursor. The caller
// must already hold the lock.
func (b *Buffer) ResetLocked() {
	b.data = b.data[:0]
	b.cursor = 0
}

// SetBytesLocked replaces the buffer's contents and rewinds the read
// cursor to 0, preparing it to serve a load call. The caller must already
// hold the lock.
func (b *Buffer) SetBytesLocked(data []byte) {
	b.data = append(b.data[:0], data...)
	b.cursor = 0
}

// BytesLocked returns a copy of the buffer's current contents. The caller
// must already hold the lock.
func (b *Buffer) BytesLocked() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// ReadChunkLocked copies up to len(p) unread bytes into p, advancing the
// cursor, and returns the number of bytes copied. It never returns an
// error: an empty buffer simply yields 0, matching clap_istream_t.read's
// "return 0 once exhausted" convention. The caller must already hold the
// lock.
func (b *Buffer) ReadChunkLocked(p []byte) int {
	n := copy(p, b.data[b.cursor:])
	b.cursor += n
	return n
}

// WriteChunkLocked appends p to the buffer, matching
// clap_ostream_t.write's "always succeeds or the plug-in aborts"
// convention. The caller must already hold the lock.
func (b *Buffer) WriteChunkLocked(p []byte) int {
	b.data = append(b.data, p...)
	return len(p)
}
