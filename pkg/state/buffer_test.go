package state

import "testing"

func TestResetLockedEmptiesBuffer(t *testing.T) {
	b := NewBuffer()
	b.Lock()
	b.WriteChunkLocked([]byte("hello"))
	b.ResetLocked()
	got := b.BytesLocked()
	b.Unlock()

	if len(got) != 0 {
		t.Fatalf("expected empty buffer, got %v", got)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	b := NewBuffer()
	b.Lock()
	b.WriteChunkLocked([]byte("preset-bytes"))
	out := b.BytesLocked()
	b.Unlock()

	b.Lock()
	b.SetBytesLocked(out)
	p := make([]byte, len(out))
	n := b.ReadChunkLocked(p)
	b.Unlock()

	if n != len(out) {
		t.Fatalf("expected to read %d bytes, got %d", len(out), n)
	}
	if string(p) != "preset-bytes" {
		t.Fatalf("expected round-tripped bytes, got %q", p)
	}
}

func TestReadChunkLockedExhaustedReturnsZero(t *testing.T) {
	b := NewBuffer()
	b.Lock()
	b.SetBytesLocked([]byte("ab"))
	first := make([]byte, 2)
	n1 := b.ReadChunkLocked(first)
	second := make([]byte, 2)
	n2 := b.ReadChunkLocked(second)
	b.Unlock()

	if n1 != 2 {
		t.Fatalf("expected first read of 2 bytes, got %d", n1)
	}
	if n2 != 0 {
		t.Fatalf("expected exhausted read to return 0, got %d", n2)
	}
}

func TestReadChunkLockedPartial(t *testing.T) {
	b := NewBuffer()
	b.Lock()
	b.SetBytesLocked([]byte("abcdef"))
	p := make([]byte, 3)
	n := b.ReadChunkLocked(p)
	b.Unlock()

	if n != 3 || string(p) != "abc" {
		t.Fatalf("expected partial read of 'abc', got n=%d p=%q", n, p)
	}
}
